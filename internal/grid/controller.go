package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
)

var (
	ErrReadOnly             = errors.New("bill is adjudicated and read-only")
	ErrNoBill               = errors.New("bill ID not available")
	ErrNoGateway            = errors.New("a persistence gateway is required")
	ErrNoValidator          = errors.New("no validation service configured")
	ErrNoStageStore         = errors.New("no stage store configured")
	ErrStageNotSelectable   = errors.New("stage cannot be selected directly")
	ErrTooManyDuplicates    = errors.New("too many duplicates requested")
	ErrConfirmationRequired = errors.New("duplicating this many rows requires confirmation")
	ErrCannotProceed        = errors.New("validation reported errors; bill cannot be adjudicated")
	ErrNotCodeField         = errors.New("field is not a code field")
	ErrClosed               = errors.New("grid controller is closed")
	ErrUnknownAccount       = errors.New("account is not in the configured list")
)

// Gateway is the persistence collaborator for line items
type Gateway interface {
	Load(ctx context.Context, billID string) ([]domain.LineItem, error)
	Create(ctx context.Context, billID string, fields domain.LineFields) (domain.LineItem, error)
	Update(ctx context.Context, billID string, patches []domain.Patch) error
	Delete(ctx context.Context, billID string, ids []string) error
	Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error)
	// PartialUpdates reports whether Update writes only the columns listed
	// in each patch
	PartialUpdates() bool
}

// Validator runs the bill-level rule engine
type Validator interface {
	Validate(ctx context.Context, billID string) (domain.ValidationResult, error)
}

// CodeLookup searches and describes catalogue codes
type CodeLookup interface {
	Describer
	Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error)
}

// StageStore reads and writes the bill's workflow stage
type StageStore interface {
	Stage(ctx context.Context, billID string) (domain.Stage, error)
	SetStage(ctx context.Context, billID string, stage domain.Stage) error
}

// NoticeLevel is the toast variant of a notice
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message
type Notice struct {
	Level   NoticeLevel
	Title   string
	Message string
}

// Notifier displays notices to the user
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Settings tune the controller
type Settings struct {
	CacheSize         int
	SearchDebounce    time.Duration
	SearchMinChars    int
	SearchLimit       int
	FollowingMax      int
	DuplicateMax      int
	DuplicateConfirm  int
	EnrichmentWorkers int
	Accounts          []string // allowed Account values; empty allows any
}

// DefaultSettings returns the stock tuning
func DefaultSettings() Settings {
	return Settings{
		CacheSize:         DefaultCacheSize,
		SearchDebounce:    300 * time.Millisecond,
		SearchMinChars:    2,
		SearchLimit:       10,
		FollowingMax:      100,
		DuplicateMax:      100,
		DuplicateConfirm:  5,
		EnrichmentWorkers: 4,
	}
}

// Options wires the controller's collaborators. Only Gateway is required.
type Options struct {
	Gateway   Gateway
	Validator Validator
	Lookup    CodeLookup
	Stages    StageStore
	Notifier  Notifier
	Logger    *zap.Logger
	Settings  Settings
}

// SearchState is the latest code search for the picker
type SearchState struct {
	Field   domain.Field
	Term    string
	Results []domain.CodeMatch
	Loading bool
	Err     error
}

// Controller is the grid state machine. All state is owned by the caller's
// event loop: operations return commands whose results must be fed back
// through Handle.
type Controller struct {
	billID    string
	gateway   Gateway
	validator Validator
	lookup    CodeLookup
	stages    StageStore
	notifier  Notifier
	logger    *zap.Logger
	settings  Settings

	store  *Store
	cache  *DescriptionCache
	timers *Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	stage domain.Stage

	tickets   uint64
	snapshots map[uint64]domain.LineFields

	// cells with saves still in flight, and the last value known stored
	inflight  map[cellKey]int
	confirmed map[cellKey]any

	lastValidation *domain.ValidationResult
	validations    uint64

	searchSeq uint64
	search    SearchState
}

// New creates a controller for billID. The returned controller holds an
// empty draft row until Load completes.
func New(ctx context.Context, billID string, opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, ErrNoGateway
	}
	settings := opts.Settings
	defaults := DefaultSettings()
	if settings.CacheSize <= 0 {
		settings.CacheSize = defaults.CacheSize
	}
	if settings.SearchDebounce < 0 {
		settings.SearchDebounce = defaults.SearchDebounce
	}
	if settings.SearchMinChars <= 0 {
		settings.SearchMinChars = defaults.SearchMinChars
	}
	if settings.SearchLimit <= 0 {
		settings.SearchLimit = defaults.SearchLimit
	}
	if settings.FollowingMax <= 0 {
		settings.FollowingMax = defaults.FollowingMax
	}
	if settings.DuplicateMax <= 0 {
		settings.DuplicateMax = defaults.DuplicateMax
	}
	if settings.DuplicateConfirm <= 0 {
		settings.DuplicateConfirm = defaults.DuplicateConfirm
	}
	if settings.EnrichmentWorkers <= 0 {
		settings.EnrichmentWorkers = defaults.EnrichmentWorkers
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var describer Describer
	if opts.Lookup != nil {
		describer = opts.Lookup
	}
	cache, err := NewDescriptionCache(describer, settings.CacheSize)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		billID:    billID,
		gateway:   opts.Gateway,
		validator: opts.Validator,
		lookup:    opts.Lookup,
		stages:    opts.Stages,
		notifier:  opts.Notifier,
		logger:    logger.With(zap.String("bill_id", billID)),
		settings:  settings,
		store:     NewStore(billID),
		cache:     cache,
		timers:    NewDebouncer(),
		ctx:       cctx,
		cancel:    cancel,
		stage:     domain.StageKeying,
		snapshots: make(map[uint64]domain.LineFields),
		inflight:  make(map[cellKey]int),
		confirmed: make(map[cellKey]any),
	}
	c.store.SetDeriver(c.derive)
	return c, nil
}

// BillID returns the bill the grid edits
func (c *Controller) BillID() string { return c.billID }

// Rows returns a snapshot of the grid in display order
func (c *Controller) Rows() []domain.LineItem { return c.store.Rows() }

// Version changes whenever the rows change
func (c *Controller) Version() uint64 { return c.store.Version() }

// Footer returns the running totals
func (c *Controller) Footer() Totals { return Footer(c.store.Rows()) }

// Accounts returns the allowed account values, nil when any is accepted
func (c *Controller) Accounts() []string { return c.settings.Accounts }

// checkAccount maps an Account value onto its configured spelling. Other
// fields and blank values pass through.
func (c *Controller) checkAccount(f domain.Field, v any) (any, error) {
	if f != domain.FieldAccount || len(c.settings.Accounts) == 0 {
		return v, nil
	}
	norm, err := f.Spec().Normalize(v)
	if err != nil {
		return nil, err
	}
	s, _ := norm.(string)
	if s == "" {
		return s, nil
	}
	for _, a := range c.settings.Accounts {
		if strings.EqualFold(a, s) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, s)
}

// Duplicates counts the rows flagged as matching lines on other bills
func (c *Controller) Duplicates() domain.DuplicateSummary { return domain.Summarize(c.store.Rows()) }

// Stage returns the bill's current stage
func (c *Controller) Stage() domain.Stage { return c.stage }

// ReadOnly reports whether edits are locked
func (c *Controller) ReadOnly() bool { return c.stage.IsReadOnly() }

// Settings returns the effective tuning
func (c *Controller) Settings() Settings { return c.settings }

// SelectedIDs returns the selected persisted rows in display order
func (c *Controller) SelectedIDs() []string { return c.store.SelectedIDs() }

// LastValidation returns the most recent successful validation result
func (c *Controller) LastValidation() (domain.ValidationResult, bool) {
	if c.lastValidation == nil {
		return domain.ValidationResult{}, false
	}
	return *c.lastValidation, true
}

// ValidationCount increases every time a validation result is applied
func (c *Controller) ValidationCount() uint64 { return c.validations }

// SearchResults returns the current code search state
func (c *Controller) SearchResults() SearchState { return c.search }

// Cache exposes the description cache
func (c *Controller) Cache() *DescriptionCache { return c.cache }

// Close cancels timers and in-flight work. Completions delivered after
// Close are ignored.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.timers.Close()
	c.cancel()
}

// Load fetches the rows and the bill stage
func (c *Controller) Load() tea.Cmd {
	if c.closed {
		return nil
	}
	return c.loadCmd(followNone)
}

// Select toggles one row's selection. Placeholder rows are ignored.
func (c *Controller) Select(id string, on bool) bool {
	return c.store.Select(id, on)
}

// SelectAll toggles every persisted row
func (c *Controller) SelectAll(on bool) {
	c.store.SelectAll(on)
}

// SetField edits one cell. Edits on the draft row may promote it to a new
// line item; edits on persisted rows are saved in the background.
func (c *Controller) SetField(id string, f domain.Field, v any) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if !f.Valid() {
		return nil, domain.ErrUnknownField
	}
	spec := f.Spec()
	if err := spec.Validate(v); err != nil {
		return nil, err
	}
	v, err := c.checkAccount(f, v)
	if err != nil {
		return nil, err
	}

	if id == domain.DraftID {
		return c.editDraft(func(l *domain.LineFields) error {
			return spec.Set(l, v)
		})
	}
	if domain.IsSentinelID(id) {
		return nil, ErrSentinelRow
	}
	return c.saveField(id, f, v)
}

// SelectCode applies a code picked from the search results. A known
// description is cached; for the procedure code it also fills Description.
func (c *Controller) SelectCode(id string, f domain.Field, match domain.CodeMatch) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if !f.IsCode() {
		return nil, fmt.Errorf("%w: %s", ErrNotCodeField, f)
	}
	spec := f.Spec()
	if err := spec.Validate(match.CodeName); err != nil {
		return nil, err
	}
	if match.Description != "" {
		c.cache.Put(f, match.CodeName, match.Description)
	}
	c.timers.Cancel(searchTimer)
	c.search = SearchState{Field: f}

	if id == domain.DraftID {
		return c.editDraft(func(l *domain.LineFields) error {
			if err := spec.Set(l, match.CodeName); err != nil {
				return err
			}
			if f == domain.FieldProcedureCode && match.Description != "" {
				return domain.FieldDescription.Spec().Set(l, match.Description)
			}
			return nil
		})
	}
	if domain.IsSentinelID(id) {
		return nil, ErrSentinelRow
	}
	return c.saveCode(id, f, match)
}

// ApplyBulk assigns value to field across the rows selected by scope.
// anchorID is only used by Following scopes.
func (c *Controller) ApplyBulk(f domain.Field, value any, scope Scope, anchorID string) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if err := scope.validate(c.settings.FollowingMax); err != nil {
		return nil, err
	}
	value, err := c.checkAccount(f, value)
	if err != nil {
		return nil, err
	}
	patches, err := PlanAssignment(c.store.Rows(), f, value, scope, anchorID, c.gateway.PartialUpdates())
	return c.runBulk(patches, err, "bulk "+f.String()+" on "+scope.String())
}

// ApplyPayment runs a percentage or fixed-amount payment operation
func (c *Controller) ApplyPayment(f domain.Field, op PaymentOp, scope Scope, anchorID string) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if err := scope.validate(c.settings.FollowingMax); err != nil {
		return nil, err
	}
	patches, err := PlanPayment(c.store.Rows(), f, op, scope, anchorID, c.gateway.PartialUpdates())
	return c.runBulk(patches, err, "payment "+op.String()+" on "+scope.String())
}

func (c *Controller) runBulk(patches []domain.Patch, err error, reason string) (tea.Cmd, error) {
	if errors.Is(err, ErrNoTargets) {
		c.notify(NoticeWarning, "Warning", "No rows to update")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range patches {
		patches[i].Reason = reason
	}
	gw, ctx, billID := c.gateway, c.ctx, c.billID
	c.logger.Debug("applying bulk update", zap.Int("rows", len(patches)), zap.String("reason", reason))
	return func() tea.Msg {
		err := gw.Update(ctx, billID, patches)
		return bulkAppliedMsg{count: len(patches), err: err}
	}, nil
}

// DeleteSelected removes the selected persisted rows and renumbers the rest
func (c *Controller) DeleteSelected() (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	ids := c.store.SelectedIDs()
	if len(ids) == 0 {
		c.notify(NoticeWarning, "Warning", "No saved items to delete")
		return nil, nil
	}
	gw, ctx, billID := c.gateway, c.ctx, c.billID
	return func() tea.Msg {
		return deletedMsg{ids: ids, err: gw.Delete(ctx, billID, ids)}
	}, nil
}

// DuplicateSelected copies the selected rows. counts maps row id to the
// number of copies; a nil map copies every selected row once. Large
// batches need confirmed set.
func (c *Controller) DuplicateSelected(counts map[string]int, confirmed bool) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if counts == nil {
		counts = make(map[string]int)
		for _, id := range c.store.SelectedIDs() {
			counts[id] = 1
		}
	}

	plan := make(map[string]int, len(counts))
	total := 0
	for id, n := range counts {
		if n <= 0 || domain.IsSentinelID(id) {
			continue
		}
		if _, ok := c.store.Get(id); !ok {
			continue
		}
		plan[id] = n
		total += n
	}
	if total == 0 {
		c.notify(NoticeWarning, "Warning", "No saved items to duplicate")
		return nil, nil
	}
	if total > c.settings.DuplicateMax {
		return nil, fmt.Errorf("%w: %d requested, maximum %d", ErrTooManyDuplicates, total, c.settings.DuplicateMax)
	}
	if total > c.settings.DuplicateConfirm && !confirmed {
		return nil, fmt.Errorf("%w: %d copies", ErrConfirmationRequired, total)
	}

	gw, ctx, billID := c.gateway, c.ctx, c.billID
	return func() tea.Msg {
		n, err := gw.Duplicate(ctx, billID, plan)
		return duplicatedMsg{count: n, err: err}
	}, nil
}

// Validate runs the rule engine and maps its findings onto rows
func (c *Controller) Validate() (tea.Cmd, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.validator == nil {
		return nil, ErrNoValidator
	}
	v, ctx, billID := c.validator, c.ctx, c.billID
	return func() tea.Msg {
		res, err := v.Validate(ctx, billID)
		return validatedMsg{result: res, err: err}
	}, nil
}

// SetStage moves the bill to a user-selectable stage
func (c *Controller) SetStage(stage domain.Stage) (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if !stage.IsSelectable() {
		return nil, fmt.Errorf("%w: %s", ErrStageNotSelectable, stage.Label())
	}
	if c.stages == nil {
		return nil, ErrNoStageStore
	}
	prev := c.stage
	c.stage = stage
	st, ctx, billID := c.stages, c.ctx, c.billID
	return func() tea.Msg {
		return stageSavedMsg{stage: stage, prev: prev, err: st.SetStage(ctx, billID, stage)}
	}, nil
}

// CommitAdjudication revalidates the bill and, when nothing blocks it,
// locks it in the Adjudicated stage
func (c *Controller) CommitAdjudication() (tea.Cmd, error) {
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if c.validator == nil {
		return nil, ErrNoValidator
	}
	if c.stages == nil {
		return nil, ErrNoStageStore
	}
	v, st, ctx, billID := c.validator, c.stages, c.ctx, c.billID
	return func() tea.Msg {
		res, err := v.Validate(ctx, billID)
		if err != nil {
			return adjudicatedMsg{err: err}
		}
		if !res.CanProceed {
			return adjudicatedMsg{result: &res, err: ErrCannotProceed}
		}
		return adjudicatedMsg{result: &res, err: st.SetStage(ctx, billID, domain.StageAdjudicated)}
	}, nil
}

const searchTimer = "code-search"

// Search looks up codes for field after the debounce delay. Terms shorter
// than the minimum clear the results instead.
func (c *Controller) Search(f domain.Field, term string) tea.Cmd {
	if c.closed || c.lookup == nil || !f.IsCode() {
		return nil
	}
	c.searchSeq++
	seq := c.searchSeq
	if len([]rune(term)) < c.settings.SearchMinChars {
		c.timers.Cancel(searchTimer)
		c.search = SearchState{Field: f, Term: term}
		return nil
	}
	c.search = SearchState{Field: f, Term: term, Loading: true}

	h := c.timers.Schedule(searchTimer, c.settings.SearchDebounce)
	lookup, ctx, limit := c.lookup, c.ctx, c.settings.SearchLimit
	types := f.Spec().CodeTypes
	return func() tea.Msg {
		if !h.Wait() {
			return nil
		}
		res, err := lookup.Search(ctx, term, types, limit)
		return searchResultsMsg{seq: seq, field: f, term: term, results: res, err: err}
	}
}

// Handle applies a completion message and returns any follow-up command.
// Messages the controller does not own return nil.
func (c *Controller) Handle(msg tea.Msg) tea.Cmd {
	if c.closed {
		return nil
	}
	switch m := msg.(type) {
	case loadedMsg:
		return c.handleLoaded(m)
	case createdMsg:
		return c.handleCreated(m)
	case fieldSavedMsg:
		return c.handleFieldSaved(m)
	case procedureDescribedMsg:
		return c.handleProcedureDescribed(m)
	case enrichedMsg:
		return c.handleEnriched(m)
	case bulkAppliedMsg:
		return c.handleBulkApplied(m)
	case deletedMsg:
		return c.handleDeleted(m)
	case resequencedMsg:
		return c.handleResequenced(m)
	case duplicatedMsg:
		return c.handleDuplicated(m)
	case validatedMsg:
		return c.handleValidated(m)
	case stageSavedMsg:
		return c.handleStageSaved(m)
	case adjudicatedMsg:
		return c.handleAdjudicated(m)
	case searchResultsMsg:
		return c.handleSearchResults(m)
	}
	return nil
}

// Owns reports whether msg is a controller completion
func (c *Controller) Owns(msg tea.Msg) bool {
	switch msg.(type) {
	case loadedMsg, createdMsg, fieldSavedMsg, procedureDescribedMsg, enrichedMsg,
		bulkAppliedMsg, deletedMsg, resequencedMsg, duplicatedMsg, validatedMsg,
		stageSavedMsg, adjudicatedMsg, searchResultsMsg:
		return true
	}
	return false
}

// Drive runs cmd and every follow-up to completion on the calling
// goroutine. It is meant for callers without a bubbletea program.
func (c *Controller) Drive(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch m := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, m...)
		default:
			if follow := c.Handle(m); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
}

func (c *Controller) checkWritable() error {
	if c.closed {
		return ErrClosed
	}
	if c.stage.IsReadOnly() {
		return ErrReadOnly
	}
	return nil
}

func (c *Controller) notify(level NoticeLevel, title, message string) {
	switch level {
	case NoticeError:
		c.logger.Warn(message)
	default:
		c.logger.Debug(message)
	}
	if c.notifier != nil {
		c.notifier.Notify(Notice{Level: level, Title: title, Message: message})
	}
}

func (c *Controller) derive(r *domain.LineItem) {
	r.Computed = domain.Computed{
		StartDate:     domain.FormatDate(r.Fields.ServiceStartDate),
		EndDate:       domain.FormatDate(r.Fields.ServiceEndDate),
		Charge:        domain.FormatAmount(r.Fields.Charge),
		Approved:      domain.FormatAmount(r.Fields.ApprovedAmount),
		ThirdParty:    domain.FormatAmount(r.Fields.ThirdParty),
		PatientResp:   domain.FormatAmount(r.Fields.PatientResp),
		Tooltip:       Tooltip(r.Fields, c.peek),
		MedicareClass: domain.MedicareClass(r.Fields.MedicareStatus),
		Duplicate:     r.Duplicate.Label(),
	}
}

func (c *Controller) peek(f domain.Field, code string) (string, bool) {
	desc, found, cached := c.cache.Peek(f, code)
	return desc, found && cached
}
