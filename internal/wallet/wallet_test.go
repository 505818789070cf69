package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// substrate well-known development phrase
const devMnemonic = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

func TestNewAccountFromMnemonic(t *testing.T) {
	account, err := NewAccountFromMnemonic(devMnemonic, "", 42)
	require.NoError(t, err)

	require.Len(t, account.PublicKey(), 32)
	require.NotEmpty(t, account.Address())
	require.True(t, account.Owns(account.PublicKey()))
}

func TestNewAccountDerivation(t *testing.T) {
	base, err := NewAccountFromMnemonic(devMnemonic, "", 42)
	require.NoError(t, err)

	derived, err := NewAccountFromMnemonic(devMnemonic, "//0", 42)
	require.NoError(t, err)

	require.NotEqual(t, base.Address(), derived.Address())
	require.False(t, base.Owns(derived.PublicKey()))
}

func TestNewAccountBadDerivation(t *testing.T) {
	_, err := NewAccountFromMnemonic(devMnemonic, "/0", 42)
	require.ErrorIs(t, err, ErrBadDerivation)

	_, err = NewAccountFromMnemonic(devMnemonic, "0", 42)
	require.ErrorIs(t, err, ErrBadDerivation)
}

func TestNewAccountEmptyMnemonic(t *testing.T) {
	_, err := NewAccountFromMnemonic("   ", "", 42)
	require.Error(t, err)
}
