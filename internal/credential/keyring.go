// Package credential keeps secrets in the system keyring so they do not
// have to live in the config file.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/unibox/internal/model"
)

const serviceName = "unibox"

// Keyring item names for secrets that may be left out of config.yaml.
const (
	KeyAIAPIKey            = "ai-api-key"
	KeyGmailClientSecret   = "gmail-client-secret"
	KeyOutlookClientSecret = "outlook-client-secret"
	KeyStateSecret         = "oauth-state-secret"
	KeyEncryptionKey       = "encryption-key"
	KeyRedisPassword       = "redis-password"
)

// Keys lists every secret name Fill looks up.
var Keys = []string{
	KeyAIAPIKey,
	KeyGmailClientSecret,
	KeyOutlookClientSecret,
	KeyStateSecret,
	KeyEncryptionKey,
	KeyRedisPassword,
}

// ErrNotFound is returned when the keyring has no item for a key.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	dir := filepath.Join(".", "credentials")
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "unibox", "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// filePassword protects the file backend. UNIBOX_KEYRING_PASSWORD
// overrides the built-in passphrase.
func filePassword(string) (string, error) {
	if pw := os.Getenv("UNIBOX_KEYRING_PASSWORD"); pw != "" {
		return pw, nil
	}
	return "unibox-file-key", nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Label: "unibox " + key,
		Data:  []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Getter looks up one secret. Get is the production implementation.
type Getter func(key string) (string, error)

// Fill copies secrets from the keyring into cfg for every field that the
// config file and environment left empty. Missing items are not errors.
func Fill(cfg *model.AppConfig, get Getter) error {
	fields := map[string]*string{
		KeyAIAPIKey:            &cfg.AI.APIKey,
		KeyGmailClientSecret:   &cfg.OAuth.Gmail.ClientSecret,
		KeyOutlookClientSecret: &cfg.OAuth.Outlook.ClientSecret,
		KeyStateSecret:         &cfg.OAuth.StateSecret,
		KeyEncryptionKey:       &cfg.Secrets.EncryptionKey,
		KeyRedisPassword:       &cfg.Redis.Password,
	}

	for _, key := range Keys {
		field := fields[key]
		if *field != "" {
			continue
		}
		value, err := get(key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		*field = value
	}
	return nil
}
