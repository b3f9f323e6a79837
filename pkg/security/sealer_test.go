package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("ab", 32)

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := sealer.Seal("0012345678901")
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "0012345678901")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "0012345678901", opened)
}

func TestSealerUsesFreshNonce(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	a, err := sealer.Seal("same")
	require.NoError(t, err)
	b, err := sealer.Seal("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSealerRejectsTamperingAndForeignKeys(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)
	other, err := NewSealer(strings.Repeat("cd", 32))
	require.NoError(t, err)

	sealed, err := sealer.Seal("0012345678901")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	require.ErrorIs(t, err, ErrOpenFailed)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	require.ErrorIs(t, err, ErrOpenFailed)

	_, err = sealer.Open([]byte("short"))
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestNewSealerValidatesKey(t *testing.T) {
	_, err := NewSealer("not-hex")
	require.Error(t, err)
	_, err = NewSealer("abcd")
	require.Error(t, err)
}

func TestLast4(t *testing.T) {
	require.Equal(t, "8901", Last4("0012 3456 78901"))
	require.Equal(t, "12", Last4("12"))
}
