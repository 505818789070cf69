package broker

import (
	"context"
	"math/big"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
	"github.com/stretchr/testify/require"
)

func saleFixture(saleStart, leadin, currentBlock uint64, endPrice *big.Int) *SaleInfo {
	return &SaleInfo{
		SaleStart:    saleStart,
		LeadinLength: leadin,
		EndPrice:     endPrice,
		CurrentBlock: currentBlock,
		CoresOffered: 10,
	}
}

func wnd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e12))
}

func TestCurrentPriceHalfwayThroughLeadin(t *testing.T) {
	// 1.0 WND end price, halfway through a 100 block leadin: factor 1.5
	info := saleFixture(0, 100, 50, wnd(1))
	price := CurrentPrice(info)

	require.NotNil(t, price)
	require.Equal(t, "1500000000000", price.String())
}

func TestCurrentPriceInterlude(t *testing.T) {
	info := saleFixture(100, 50, 99, wnd(1))
	require.Nil(t, CurrentPrice(info))
}

func TestCurrentPriceBounds(t *testing.T) {
	endPrice := wnd(3)

	atStart := CurrentPrice(saleFixture(10, 100, 10, endPrice))
	require.Equal(t, new(big.Int).Mul(endPrice, big.NewInt(2)), atStart)

	atEnd := CurrentPrice(saleFixture(10, 100, 110, endPrice))
	require.Equal(t, endPrice, atEnd)

	afterEnd := CurrentPrice(saleFixture(10, 100, 10_000, endPrice))
	require.Equal(t, endPrice, afterEnd)
}

func TestCurrentPriceNonIncreasing(t *testing.T) {
	info := saleFixture(0, 997, 0, big.NewInt(123_456_789_012_345))

	prev := CurrentPrice(info)
	require.NotNil(t, prev)

	for block := uint64(1); block <= info.LeadinLength; block++ {
		info.CurrentBlock = block
		price := CurrentPrice(info)
		require.NotNil(t, price)
		require.LessOrEqual(t, price.Cmp(prev), 0, "price increased at block %d", block)
		prev = price
	}

	require.Equal(t, info.EndPrice, prev)
}

func TestCurrentPriceBeyondFloat64SafeRange(t *testing.T) {
	// 10^18 planck, far above 2^53: float arithmetic would lose precision here
	endPrice, ok := new(big.Int).SetString("1000000000000000003", 10)
	require.True(t, ok)

	price := CurrentPrice(saleFixture(0, 2, 1, endPrice))

	// floor(endPrice * 3 / 2)
	expected, ok := new(big.Int).SetString("1500000000000000004", 10)
	require.True(t, ok)
	require.Equal(t, expected, price)
}

func TestCurrentPriceZeroLeadin(t *testing.T) {
	info := saleFixture(5, 0, 5, wnd(2))
	require.Equal(t, wnd(2), CurrentPrice(info))
}

type stubSaleStorage struct {
	record *saleInfoRecord
	err    error
}

func (s *stubSaleStorage) GetStorage(_ context.Context, _, _ string, target interface{}, _ ...[]byte) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.record == nil {
		return false, nil
	}
	*target.(*saleInfoRecord) = *s.record
	return true, nil
}

type stubBlockReader struct {
	block uint64
}

func (s *stubBlockReader) BlockNumber(_ context.Context) (uint64, error) {
	return s.block, nil
}

func TestSaleInfoFetch(t *testing.T) {
	storage := &stubSaleStorage{record: &saleInfoRecord{
		SaleStart:      types.NewU32(1000),
		LeadinLength:   types.NewU32(100),
		EndPrice:       types.NewU128(*big.NewInt(1_000_000_000_000)),
		RegionBegin:    types.NewU32(5000),
		RegionEnd:      types.NewU32(6000),
		IdealCoresSold: types.NewU16(3),
		CoresOffered:   types.NewU16(5),
		FirstCore:      types.NewU16(40),
		SelloutPrice:   chain.OptionU128{HasValue: true, Value: types.NewU128(*big.NewInt(2_000_000_000_000))},
		CoresSold:      types.NewU16(2),
	}}

	reader := NewSaleReader(storage, &stubBlockReader{block: 1050}, lib.NewTestLogger())
	info, err := reader.SaleInfo(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(1000), info.SaleStart)
	require.Equal(t, uint64(100), info.LeadinLength)
	require.Equal(t, "1000000000000", info.EndPrice.String())
	require.Equal(t, uint64(5000), info.RegionBegin)
	require.Equal(t, uint64(6000), info.RegionEnd)
	require.Equal(t, uint16(3), info.CoresAvailable())
	require.Equal(t, "2000000000000", info.SelloutPrice.String())
	require.Equal(t, uint64(1050), info.CurrentBlock)
}

func TestSaleInfoMissing(t *testing.T) {
	reader := NewSaleReader(&stubSaleStorage{}, &stubBlockReader{block: 1}, lib.NewTestLogger())
	_, err := reader.SaleInfo(context.Background())
	require.ErrorIs(t, err, ErrNoActiveSale)
}

func TestCoresAvailable(t *testing.T) {
	info := &SaleInfo{CoresOffered: 10, CoresSold: 4}
	require.Equal(t, uint16(6), info.CoresAvailable())

	info.CoresSold = 10
	require.Equal(t, uint16(0), info.CoresAvailable())
}
