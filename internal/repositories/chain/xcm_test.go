package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/require"
)

// Golden encodings cross-checked against polkadot-js for XCM v4.

func TestXcmDestEncoding(t *testing.T) {
	paraID := uint32(1005)

	fromAssetHub := xcmVersionedLocation{xcmLocation{
		parents:  1,
		interior: xcmJunctions{x1: &xcmJunction{parachain: &paraID}},
	}}
	hex, err := codec.EncodeToHex(fromAssetHub)
	require.NoError(t, err)
	require.Equal(t, "0x04010100b50f", hex)

	fromRelay := xcmVersionedLocation{xcmLocation{
		parents:  0,
		interior: xcmJunctions{x1: &xcmJunction{parachain: &paraID}},
	}}
	hex, err = codec.EncodeToHex(fromRelay)
	require.NoError(t, err)
	require.Equal(t, "0x04000100b50f", hex)
}

func TestXcmBeneficiaryEncoding(t *testing.T) {
	accountID := bytes.Repeat([]byte{0xAA}, 32)

	beneficiary := xcmVersionedLocation{xcmLocation{
		parents:  0,
		interior: xcmJunctions{x1: &xcmJunction{accountID: accountID}},
	}}

	hex, err := codec.EncodeToHex(beneficiary)
	require.NoError(t, err)
	require.Equal(t, "0x0400010100"+
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", hex)
}

func TestXcmAssetsEncoding(t *testing.T) {
	assets := xcmVersionedAssets{[]xcmAsset{{
		id:       xcmLocation{parents: 1}, // native asset relative to a parachain
		fungible: big.NewInt(1_000_000_000_000),
	}}}

	hex, err := codec.EncodeToHex(assets)
	require.NoError(t, err)
	require.Equal(t, "0x0404010000070010a5d4e8", hex)
}

func TestXcmWeightLimitEncoding(t *testing.T) {
	hex, err := codec.EncodeToHex(xcmWeightLimitUnlimited{})
	require.NoError(t, err)
	require.Equal(t, "0x00", hex)
}

func TestNewTransferAssetsCallValidation(t *testing.T) {
	_, err := NewTransferAssetsCall(nil, TransferAssetsRelay, TransferAssetsParams{
		Parents:     0,
		DestParaID:  1005,
		Beneficiary: []byte{0x01, 0x02},
		Amount:      big.NewInt(1),
	})
	require.Error(t, err)

	_, err = NewTransferAssetsCall(nil, TransferAssetsRelay, TransferAssetsParams{
		Parents:     0,
		DestParaID:  1005,
		Beneficiary: bytes.Repeat([]byte{0xAA}, 32),
		Amount:      big.NewInt(0),
	})
	require.Error(t, err)
}
