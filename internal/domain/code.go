package domain

// CodeMatch is a catalogue entry returned by code search and describe
type CodeMatch struct {
	CodeID      string
	CodeType    string
	CodeName    string
	Description string
}
