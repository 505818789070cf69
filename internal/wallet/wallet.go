package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

var ErrBadDerivation = errors.New("derivation path must start with //")

// Account is the single signing identity of the process. It owns balances on
// all three chains and any purchased regions on the coretime chain. Built once
// at startup, immutable afterwards.
type Account struct {
	kp signature.KeyringPair
}

// NewAccountFromMnemonic derives an sr25519 keypair from a mnemonic with an
// optional hard derivation suffix ("//0", "//1", ...). The address is encoded
// with the given SS58 network prefix.
func NewAccountFromMnemonic(mnemonic, derivation string, ss58Prefix uint16) (*Account, error) {
	uri := strings.TrimSpace(mnemonic)
	if uri == "" {
		return nil, errors.New("mnemonic is empty")
	}

	if derivation != "" {
		if !strings.HasPrefix(derivation, "//") {
			return nil, fmt.Errorf("%w: %q", ErrBadDerivation, derivation)
		}
		uri += derivation
	}

	kp, err := signature.KeyringPairFromSecret(uri, ss58Prefix)
	if err != nil {
		return nil, fmt.Errorf("cannot derive keypair: %w", err)
	}

	return &Account{kp: kp}, nil
}

// Address returns the SS58 encoded address.
func (a *Account) Address() string {
	return a.kp.Address
}

// PublicKey returns the raw 32 byte public key, the form account ids take in
// chain storage.
func (a *Account) PublicKey() []byte {
	return a.kp.PublicKey
}

// Keypair exposes the signing keypair for extrinsic submission.
func (a *Account) Keypair() signature.KeyringPair {
	return a.kp
}

// Owns reports whether the given storage account id belongs to this account.
func (a *Account) Owns(accountID []byte) bool {
	return bytes.Equal(a.kp.PublicKey, accountID)
}
