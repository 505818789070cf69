package chain

import (
	"errors"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// Extrinsic names of the transfer_assets call per chain role. The relay chain
// hosts the XCM pallet under a different name than its parachains.
const (
	TransferAssetsRelay    = "XcmPallet.transfer_assets"
	TransferAssetsParaHost = "PolkadotXcm.transfer_assets"
)

// TransferAssetsParams describes a native-asset teleport/reserve transfer to a
// sibling or child parachain. Parents encode the sender's position in the
// topology: 0 when sending from the relay chain (the root), 1 when sending
// from a parachain such as the asset hub.
type TransferAssetsParams struct {
	Parents     uint8
	DestParaID  uint32
	Beneficiary []byte
	Amount      *big.Int
}

// NewTransferAssetsCall builds the transfer_assets call with XCM v4 locations:
// destination Parachain(id), beneficiary AccountId32(self), one fungible asset
// under the local ("Here") asset location, fee asset 0, unlimited weight.
// gsrpc ships no XCM types, the SCALE encoding is written out below.
func NewTransferAssetsCall(meta *types.Metadata, callName string, p TransferAssetsParams) (types.Call, error) {
	if len(p.Beneficiary) != 32 {
		return types.Call{}, errors.New("beneficiary must be a 32 byte account id")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return types.Call{}, errors.New("transfer amount must be positive")
	}

	paraID := p.DestParaID
	dest := xcmVersionedLocation{xcmLocation{
		parents:  p.Parents,
		interior: xcmJunctions{x1: &xcmJunction{parachain: &paraID}},
	}}
	beneficiary := xcmVersionedLocation{xcmLocation{
		parents:  0,
		interior: xcmJunctions{x1: &xcmJunction{accountID: p.Beneficiary}},
	}}
	assets := xcmVersionedAssets{[]xcmAsset{{
		id:       xcmLocation{parents: p.Parents}, // "Here" relative to the sender
		fungible: p.Amount,
	}}}

	return types.NewCall(meta, callName,
		dest,
		beneficiary,
		assets,
		types.NewU32(0), // fee_asset_item
		xcmWeightLimitUnlimited{},
	)
}

const xcmVersionV4 = 4

type xcmVersionedLocation struct {
	v4 xcmLocation
}

func (l xcmVersionedLocation) Encode(encoder scale.Encoder) error {
	if err := encoder.PushByte(xcmVersionV4); err != nil {
		return err
	}
	return l.v4.Encode(encoder)
}

type xcmLocation struct {
	parents  uint8
	interior xcmJunctions
}

func (l xcmLocation) Encode(encoder scale.Encoder) error {
	if err := encoder.PushByte(l.parents); err != nil {
		return err
	}
	return l.interior.Encode(encoder)
}

// xcmJunctions encodes Here when empty, X1 otherwise.
type xcmJunctions struct {
	x1 *xcmJunction
}

func (j xcmJunctions) Encode(encoder scale.Encoder) error {
	if j.x1 == nil {
		return encoder.PushByte(0) // Here
	}
	if err := encoder.PushByte(1); err != nil { // X1
		return err
	}
	return j.x1.Encode(encoder)
}

type xcmJunction struct {
	parachain *uint32
	accountID []byte
}

func (j xcmJunction) Encode(encoder scale.Encoder) error {
	if j.parachain != nil {
		if err := encoder.PushByte(0); err != nil { // Parachain(compact u32)
			return err
		}
		return encoder.EncodeUintCompact(*new(big.Int).SetUint64(uint64(*j.parachain)))
	}

	if err := encoder.PushByte(1); err != nil { // AccountId32
		return err
	}
	if err := encoder.PushByte(0); err != nil { // network: None
		return err
	}
	return encoder.Write(j.accountID)
}

type xcmVersionedAssets struct {
	v4 []xcmAsset
}

func (a xcmVersionedAssets) Encode(encoder scale.Encoder) error {
	if err := encoder.PushByte(xcmVersionV4); err != nil {
		return err
	}
	if err := encoder.EncodeUintCompact(*big.NewInt(int64(len(a.v4)))); err != nil {
		return err
	}
	for _, asset := range a.v4 {
		if err := asset.Encode(encoder); err != nil {
			return err
		}
	}
	return nil
}

type xcmAsset struct {
	id       xcmLocation
	fungible *big.Int
}

func (a xcmAsset) Encode(encoder scale.Encoder) error {
	if err := a.id.Encode(encoder); err != nil {
		return err
	}
	if err := encoder.PushByte(0); err != nil { // Fungibility::Fungible
		return err
	}
	return encoder.EncodeUintCompact(*new(big.Int).Set(a.fungible))
}

type xcmWeightLimitUnlimited struct{}

func (xcmWeightLimitUnlimited) Encode(encoder scale.Encoder) error {
	return encoder.PushByte(0) // WeightLimit::Unlimited
}
