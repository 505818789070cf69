package broker

import (
	"context"
	"errors"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
)

var ErrNoActiveSale = errors.New("no active sale")

// SaleInfo is a snapshot of the coretime auction, fetched fresh per purchase
// attempt. CurrentBlock comes from the relay chain, the trusted timing
// reference for the leadin.
type SaleInfo struct {
	SaleStart    uint64
	LeadinLength uint64
	EndPrice     *big.Int
	RegionBegin  uint64
	RegionEnd    uint64

	IdealCoresSold uint16
	CoresOffered   uint16
	FirstCore      uint16
	CoresSold      uint16
	SelloutPrice   *big.Int // nil until the ideal core count sells

	CurrentBlock uint64
}

func (s *SaleInfo) CoresAvailable() uint16 {
	if s.CoresSold >= s.CoresOffered {
		return 0
	}
	return s.CoresOffered - s.CoresSold
}

// saleInfoRecord mirrors the Broker pallet's SaleInfoRecord storage layout.
type saleInfoRecord struct {
	SaleStart      types.U32
	LeadinLength   types.U32
	EndPrice       types.U128
	RegionBegin    types.U32
	RegionEnd      types.U32
	IdealCoresSold types.U16
	CoresOffered   types.U16
	FirstCore      types.U16
	SelloutPrice   chain.OptionU128
	CoresSold      types.U16
}

// BlockReader supplies the current height of the pricing reference chain.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// SaleStorage reads the sale descriptor from the coretime chain.
type SaleStorage interface {
	GetStorage(ctx context.Context, pallet, item string, target interface{}, args ...[]byte) (bool, error)
}

type SaleReader struct {
	coretime SaleStorage
	clock    BlockReader
	log      interfaces.ILogger
}

func NewSaleReader(coretime SaleStorage, clock BlockReader, log interfaces.ILogger) *SaleReader {
	return &SaleReader{coretime: coretime, clock: clock, log: log.Named("SALE")}
}

// SaleInfo fetches the active sale descriptor, failing with ErrNoActiveSale
// when the broker has none.
func (r *SaleReader) SaleInfo(ctx context.Context) (*SaleInfo, error) {
	var record saleInfoRecord
	ok, err := r.coretime.GetStorage(ctx, "Broker", "SaleInfo", &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveSale
	}

	currentBlock, err := r.clock.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	info := &SaleInfo{
		SaleStart:      uint64(record.SaleStart),
		LeadinLength:   uint64(record.LeadinLength),
		EndPrice:       new(big.Int).Set(record.EndPrice.Int),
		RegionBegin:    uint64(record.RegionBegin),
		RegionEnd:      uint64(record.RegionEnd),
		IdealCoresSold: uint16(record.IdealCoresSold),
		CoresOffered:   uint16(record.CoresOffered),
		FirstCore:      uint16(record.FirstCore),
		CoresSold:      uint16(record.CoresSold),
		CurrentBlock:   currentBlock,
	}
	if record.SelloutPrice.HasValue {
		info.SelloutPrice = new(big.Int).Set(record.SelloutPrice.Value.Int)
	}

	r.log.Infof("sale: start=%d leadin=%d endPrice=%s WND cores=%d/%d region=%d-%d currentBlock=%d",
		info.SaleStart, info.LeadinLength, lib.FormatWND(info.EndPrice),
		info.CoresAvailable(), info.CoresOffered, info.RegionBegin, info.RegionEnd, info.CurrentBlock)

	return info, nil
}

// CurrentPrice computes the clearing price of the linear leadin auction. It
// returns nil while the sale is still in its interlude (currentBlock before
// saleStart). The price starts at 2x the end price and decays linearly to the
// end price over leadinLength blocks:
//
//	price = floor(endPrice * (2*leadin - elapsed) / leadin)
//
// Planck amounts exceed the float64-safe integer range, so the whole
// computation stays in big.Int.
func CurrentPrice(info *SaleInfo) *big.Int {
	if info.CurrentBlock < info.SaleStart {
		return nil
	}
	if info.LeadinLength == 0 {
		return new(big.Int).Set(info.EndPrice)
	}

	elapsed := info.CurrentBlock - info.SaleStart
	if elapsed > info.LeadinLength {
		elapsed = info.LeadinLength
	}

	num := new(big.Int).SetUint64(2*info.LeadinLength - elapsed)
	price := new(big.Int).Mul(info.EndPrice, num)
	return price.Quo(price, new(big.Int).SetUint64(info.LeadinLength))
}
