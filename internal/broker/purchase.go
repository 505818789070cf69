package broker

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
)

// Sale rule violations, classified from the chain's failure reason. None of
// them is retried automatically: without a state change on chain (new sale,
// lower price, freed core) a retry cannot succeed.
var (
	ErrTooEarly       = errors.New("sale has not started yet")
	ErrSoldOut        = errors.New("all cores have been sold")
	ErrOverpriced     = errors.New("current price exceeds the price limit")
	ErrUnavailable    = errors.New("no cores available for sale")
	ErrNoSales        = errors.New("no active sale period")
	ErrPurchaseFailed = errors.New("purchase failed")
)

// PurchaseResult carries the finalized purchase and, when the confirmation
// event could be attributed, the purchased region.
type PurchaseResult struct {
	BlockHash types.Hash
	RegionID  *chain.RegionID
	Price     *big.Int // actual clearing price paid, from the confirmation event
	Confirmed bool
}

// Metadata narrows the coretime connection to what call construction needs.
type Metadata interface {
	Meta() *types.Metadata
}

type Executor struct {
	coretime  Metadata
	submitter chain.Submitter
	log       interfaces.ILogger
}

func NewExecutor(coretime Metadata, submitter chain.Submitter, log interfaces.ILogger) *Executor {
	return &Executor{coretime: coretime, submitter: submitter, log: log.Named("PURCHASE")}
}

// Purchase submits Broker.purchase with the given price ceiling. The chain
// enforces atomically that the clearing price at execution does not exceed
// the limit, so a price move between quote and inclusion cannot overspend.
func (e *Executor) Purchase(ctx context.Context, priceLimit *big.Int) (*PurchaseResult, error) {
	e.log.Infof("purchasing coretime with price limit %s WND", lib.FormatWND(priceLimit))

	call, err := types.NewCall(e.coretime.Meta(), "Broker.purchase", types.NewU128(*priceLimit))
	if err != nil {
		return nil, err
	}

	receipt, err := e.submitter.SubmitAndWait(ctx, call)
	if err != nil {
		classified := classifyFailure(err)
		if errors.Is(classified, ErrPurchaseFailed) {
			// unrecognized reason, keep the full detail visible
			e.log.Errorf("purchase failed with unclassified error: %s", err)
		}
		return nil, classified
	}

	result := &PurchaseResult{BlockHash: receipt.BlockHash}

	if receipt.Events != nil {
		for _, ev := range receipt.Events.Purchased() {
			result.Confirmed = true
			if ev.RegionID != nil {
				regionID := *ev.RegionID
				result.RegionID = &regionID
			}
			if ev.Price != nil {
				result.Price = new(big.Int).Set(ev.Price)
			}
			if result.RegionID != nil {
				e.log.Infof("region purchased: begin=%d core=%d mask=%s price=%s WND",
					uint32(result.RegionID.Begin), uint16(result.RegionID.Core), result.RegionID.Mask, lib.FormatWND(result.Price))
			} else {
				e.log.Infof("region purchased, price=%s WND", lib.FormatWND(result.Price))
			}
		}
	}

	if !result.Confirmed {
		e.log.Warnf("purchase finalized in block %#x but no confirmation event was attributed to this extrinsic", receipt.BlockHash)
	}

	return result, nil
}

// classifyFailure maps the chain's failure reason onto the sale rule
// taxonomy. Unrecognized reasons surface as ErrPurchaseFailed with the cause
// preserved.
func classifyFailure(err error) error {
	msg := err.Error()

	rules := []struct {
		needle   string
		sentinel error
	}{
		{"TooEarly", ErrTooEarly},
		{"SoldOut", ErrSoldOut},
		{"Overpriced", ErrOverpriced},
		{"Unavailable", ErrUnavailable},
		{"NoSales", ErrNoSales},
	}

	for _, r := range rules {
		if strings.Contains(msg, r.needle) {
			return lib.WrapError(r.sentinel, err)
		}
	}
	return lib.WrapError(ErrPurchaseFailed, err)
}

// Guidance returns the actionable hint for a classified purchase failure,
// empty string when there is none.
func Guidance(err error) string {
	switch {
	case errors.Is(err, ErrTooEarly):
		return "the sale is still in its interlude phase, try again after the leadin starts"
	case errors.Is(err, ErrSoldOut):
		return "all cores of this sale period are gone, wait for the next sale"
	case errors.Is(err, ErrOverpriced):
		return "the price moved above your limit between quote and inclusion, raise the limit or wait for decay"
	case errors.Is(err, ErrUnavailable):
		return "no cores are on offer right now"
	case errors.Is(err, ErrNoSales):
		return "there is no active sale period"
	case errors.Is(err, ErrNoActiveSale):
		return "there may be no active sale period right now"
	default:
		return ""
	}
}
