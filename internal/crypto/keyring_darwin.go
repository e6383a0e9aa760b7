//go:build darwin

package crypto

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keychain stores one database key per account in the macOS Keychain
type keychain struct {
	account string
}

func newPlatformKeyring(account string) Keyring {
	return &keychain{account: account}
}

func (k *keychain) GetKey() (string, error) {
	key, err := keyring.Get(ServiceName, k.account)
	if errors.Is(err, keyring.ErrNotFound) && k.account != KeyName {
		// keys stored before accounts were scoped to a database path
		key, err = keyring.Get(ServiceName, KeyName)
	}
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("no encryption key in keychain for %s: %w", k.account, err)
	case err != nil:
		return "", fmt.Errorf("failed to read keychain entry %s: %w", k.account, err)
	case key == "":
		return "", fmt.Errorf("keychain entry %s is empty", k.account)
	}
	return key, nil
}

func (k *keychain) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	if err := keyring.Set(ServiceName, k.account, password); err != nil {
		return fmt.Errorf("failed to write keychain entry %s: %w", k.account, err)
	}
	return nil
}

func (k *keychain) DeleteKey() error {
	err := keyring.Delete(ServiceName, k.account)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return fmt.Errorf("no encryption key in keychain for %s: %w", k.account, err)
	case err != nil:
		return fmt.Errorf("failed to delete keychain entry %s: %w", k.account, err)
	}
	return nil
}

// IsAvailable reads the entry; a missing entry still means the keychain
// answered
func (k *keychain) IsAvailable() bool {
	_, err := keyring.Get(ServiceName, k.account)
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
