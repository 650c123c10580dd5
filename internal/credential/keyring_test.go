package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/unibox/internal/model"
)

func mapGetter(m map[string]string) Getter {
	return func(key string) (string, error) {
		v, ok := m[key]
		if !ok {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return v, nil
	}
}

func TestFillOnlyEmptyFields(t *testing.T) {
	cfg := &model.AppConfig{}
	cfg.AI.APIKey = "from-env"

	err := Fill(cfg, mapGetter(map[string]string{
		KeyAIAPIKey:          "from-keyring",
		KeyGmailClientSecret: "gmail-secret",
		KeyEncryptionKey:     "key",
	}))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.AI.APIKey)
	require.Equal(t, "gmail-secret", cfg.OAuth.Gmail.ClientSecret)
	require.Equal(t, "key", cfg.Secrets.EncryptionKey)
	require.Empty(t, cfg.OAuth.Outlook.ClientSecret)
}

func TestFillPropagatesKeyringFailures(t *testing.T) {
	boom := errors.New("dbus unavailable")
	err := Fill(&model.AppConfig{}, func(string) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}
