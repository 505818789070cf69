package broker

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
	"github.com/stretchr/testify/require"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name     string
		message  string
		expected error
	}{
		{"too early", "extrinsic failed: Broker.TooEarly", ErrTooEarly},
		{"sold out", "extrinsic failed: Broker.SoldOut", ErrSoldOut},
		{"overpriced", "extrinsic failed: Broker.Overpriced", ErrOverpriced},
		{"unavailable", "extrinsic failed: Broker.Unavailable", ErrUnavailable},
		{"no sales", "extrinsic failed: Broker.NoSales", ErrNoSales},
		{"unknown module error", "extrinsic failed: module 50 error 12", ErrPurchaseFailed},
		{"transport error", "websocket: connection reset", ErrPurchaseFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifyFailure(errors.New(tc.message))
			require.ErrorIs(t, classified, tc.expected)
			// the original failure reason stays visible
			require.Contains(t, classified.Error(), tc.message)
		})
	}
}

// minimal v14 metadata carrying the Broker.purchase call
type stubMeta struct{}

func (stubMeta) Meta() *types.Metadata {
	callType := &types.Si1Type{Def: types.Si1TypeDef{
		IsVariant: true,
		Variant: types.Si1TypeDefVariant{Variants: []types.Si1Variant{
			{Name: "purchase", Index: 1},
		}},
	}}

	return &types.Metadata{
		Version:       14,
		AsMetadataV14: types.MetadataV14{
			EfficientLookup: map[int64]*types.Si1Type{9: callType},
			Pallets: []types.PalletMetadataV14{{
				Name:     "Broker",
				Index:    50,
				HasCalls: true,
				Calls:    types.FunctionMetadataV14{Type: types.NewSi1LookupTypeIDFromUInt(9)},
			}},
		},
	}
}

type stubSubmitter struct {
	receipt *chain.Receipt
	err     error
	calls   int
}

func (s *stubSubmitter) SubmitAndWait(_ context.Context, _ types.Call) (*chain.Receipt, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func purchasedAt(extrinsicIdx uint32, fields registry.DecodedFields) *parser.Event {
	return &parser.Event{
		Name:   "Broker.Purchased",
		Phase:  &types.Phase{IsApplyExtrinsic: true, AsApplyExtrinsic: extrinsicIdx},
		Fields: fields,
	}
}

func TestPurchaseConfirmed(t *testing.T) {
	fields := registry.DecodedFields{
		&registry.DecodedField{Name: "region_id", Value: registry.DecodedFields{
			&registry.DecodedField{Name: "begin", Value: types.NewU32(100)},
			&registry.DecodedField{Name: "core", Value: types.NewU16(4)},
		}},
		&registry.DecodedField{Name: "price", Value: types.NewU128(*big.NewInt(1_500_000_000_000))},
	}
	submitter := &stubSubmitter{receipt: &chain.Receipt{
		Events: chain.NewEventRecords([]*parser.Event{purchasedAt(0, fields)}, 0),
	}}

	executor := NewExecutor(stubMeta{}, submitter, lib.NewTestLogger())
	result, err := executor.Purchase(context.Background(), big.NewInt(2_000_000_000_000))
	require.NoError(t, err)

	require.Equal(t, 1, submitter.calls)
	require.True(t, result.Confirmed)
	require.NotNil(t, result.RegionID)
	require.Equal(t, types.U32(100), result.RegionID.Begin)
	require.Equal(t, types.U16(4), result.RegionID.Core)
	require.Equal(t, "1500000000000", result.Price.String())
}

func TestPurchaseOtherExtrinsicNotAttributed(t *testing.T) {
	// a confirmation from someone else's extrinsic in the same block
	submitter := &stubSubmitter{receipt: &chain.Receipt{
		Events: chain.NewEventRecords([]*parser.Event{purchasedAt(2, nil)}, 0),
	}}

	executor := NewExecutor(stubMeta{}, submitter, lib.NewTestLogger())
	result, err := executor.Purchase(context.Background(), big.NewInt(1_000_000_000_000))
	require.NoError(t, err)

	require.False(t, result.Confirmed)
	require.Nil(t, result.RegionID)
}

func TestPurchaseFinalizedWithoutEvents(t *testing.T) {
	submitter := &stubSubmitter{receipt: &chain.Receipt{}}

	executor := NewExecutor(stubMeta{}, submitter, lib.NewTestLogger())
	result, err := executor.Purchase(context.Background(), big.NewInt(1_000_000_000_000))
	require.NoError(t, err)
	require.False(t, result.Confirmed)
}

func TestPurchaseClassifiesSubmitFailure(t *testing.T) {
	submitter := &stubSubmitter{err: errors.New("extrinsic failed: Broker.SoldOut")}

	executor := NewExecutor(stubMeta{}, submitter, lib.NewTestLogger())
	_, err := executor.Purchase(context.Background(), big.NewInt(1_000_000_000_000))
	require.ErrorIs(t, err, ErrSoldOut)
	require.Equal(t, 1, submitter.calls)
}

func TestGuidanceForClassifiedErrors(t *testing.T) {
	for _, sentinel := range []error{ErrTooEarly, ErrSoldOut, ErrOverpriced, ErrUnavailable, ErrNoSales, ErrNoActiveSale} {
		require.NotEmpty(t, Guidance(sentinel))
	}
	require.Empty(t, Guidance(errors.New("some transport error")))
}
