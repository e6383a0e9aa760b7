package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Keyring provides secure key storage abstraction
type Keyring interface {
	GetKey() (string, error)
	SetKey(password string) error
	DeleteKey() error
	IsAvailable() bool
}

const (
	ServiceName = "billgrid"
	KeyName     = "db-encryption-key"
	// EnvKey overrides the platform keyring when set
	EnvKey = "BILLGRID_DB_KEY"
)

// NewKeyring returns the best available keyring implementation for the
// database at dbPath. A set BILLGRID_DB_KEY always wins.
func NewKeyring(dbPath string) Keyring {
	if os.Getenv(EnvKey) != "" {
		return &envKeyring{}
	}
	return newPlatformKeyring(AccountFor(dbPath))
}

// AccountFor names the keychain entry of one database file, so separate
// databases keep separate keys
func AccountFor(dbPath string) string {
	if dbPath == "" {
		return KeyName
	}
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}
	return KeyName + ":" + filepath.Clean(dbPath)
}

// envKeyring reads the key from the BILLGRID_DB_KEY environment variable
type envKeyring struct{}

func (k *envKeyring) GetKey() (string, error) {
	key := os.Getenv(EnvKey)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", EnvKey)
	}

	return key, nil
}

// SetKey returns an error suggesting to set the environment variable
func (k *envKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	return fmt.Errorf("keyring not available on this platform: please set %s environment variable to '%s'", EnvKey, password)
}

// DeleteKey returns an error suggesting to unset the environment variable
func (k *envKeyring) DeleteKey() error {
	return fmt.Errorf("keyring not available on this platform: please unset %s environment variable manually", EnvKey)
}

func (k *envKeyring) IsAvailable() bool {
	return os.Getenv(EnvKey) != ""
}
