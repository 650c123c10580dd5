package secret

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	b, err := NewBoxFromBase64(key)
	require.NoError(t, err)
	return b
}

func TestSealOpen(t *testing.T) {
	b := newTestBox(t)

	sealed, err := b.Seal("ya29.refresh-token")
	require.NoError(t, err)
	require.NotContains(t, sealed, "refresh-token")

	again, err := b.Seal("ya29.refresh-token")
	require.NoError(t, err)
	require.NotEqual(t, sealed, again)

	plain, err := b.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "ya29.refresh-token", plain)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	sealed, err := newTestBox(t).Seal("secret")
	require.NoError(t, err)

	_, err = newTestBox(t).Open(sealed)
	require.Error(t, err)
}

func TestOpenMalformed(t *testing.T) {
	b := newTestBox(t)
	_, err := b.Open("plaintext")
	require.ErrorIs(t, err, ErrMalformed)
	_, err = b.Open("v1:AA")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNewBoxRejectsShortKey(t *testing.T) {
	_, err := NewBox([]byte("short"))
	require.Error(t, err)
}
