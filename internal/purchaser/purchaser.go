package purchaser

import (
	"context"
	"math/big"

	"github.com/coretime-tools/coretime-purchaser/internal/broker"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/wallet"
	"golang.org/x/sync/errgroup"
)

// State of the purchase attempt. Unfunded, Interlude and Overpriced are
// terminal for the invocation: the caller should retry later rather than poll
// within the same run.
type State string

const (
	StateInit           State = "init"
	StateBalanceChecked State = "balance_checked"
	StateBridging       State = "bridging"
	StateFunded         State = "funded"
	StateUnfunded       State = "unfunded"
	StatePriceChecked   State = "price_checked"
	StateInterlude      State = "interlude"
	StateOverpriced     State = "overpriced"
	StateReadyToBuy     State = "ready_to_buy"
	StatePurchased      State = "purchased"
	StatePurchaseFailed State = "purchase_failed"
)

// Params are the per-invocation knobs. PriceLimit is in planck.
type Params struct {
	PriceLimit *big.Int
	DryRun     bool
	SkipBridge bool

	SafetyMarginPercent uint64
	TopupPercent        uint64
}

// Result reports where the attempt ended up and what it decided.
type Result struct {
	State     State
	Price     *big.Int // current clearing price, nil during interlude
	Simulated bool     // dry run, no transaction was submitted
	Purchase  *broker.PurchaseResult
}

// Driver walks the purchase state machine: balance check, top-up decision,
// bridging with fallback, price check, buy/skip decision, purchase. Each step
// awaits the finalized effect of the previous one; nothing mutating runs
// concurrently.
type Driver struct {
	account *wallet.Account

	relay    BalanceReader
	assetHub BalanceReader
	coretime BalanceReader

	funder Funder
	sales  SaleReader
	buyer  Buyer

	log interfaces.ILogger
}

func NewDriver(
	account *wallet.Account,
	relay, assetHub, coretime BalanceReader,
	funder Funder,
	sales SaleReader,
	buyer Buyer,
	log interfaces.ILogger,
) *Driver {
	return &Driver{
		account:  account,
		relay:    relay,
		assetHub: assetHub,
		coretime: coretime,
		funder:   funder,
		sales:    sales,
		buyer:    buyer,
		log:      log.Named("DRIVER"),
	}
}

func (d *Driver) Run(ctx context.Context, params Params) (*Result, error) {
	result := &Result{State: StateInit}

	if params.DryRun {
		d.log.Infof("dry run: no transactions will be submitted")
	}

	if err := d.checkBalances(ctx, params); err != nil {
		return result, err
	}
	d.setState(result, StateBalanceChecked)

	target := lib.MulPercent(params.PriceLimit, params.SafetyMarginPercent)
	topup := lib.MulPercent(params.PriceLimit, params.TopupPercent)

	if err := d.ensureFunded(ctx, params, result, target, topup); err != nil || result.State == StateUnfunded {
		return result, err
	}

	info, err := d.sales.SaleInfo(ctx)
	if err != nil {
		return result, err
	}

	price := broker.CurrentPrice(info)
	d.setState(result, StatePriceChecked)
	result.Price = price

	if price == nil {
		d.log.Infof("sale has not started yet: sale starts at block %d, current block is %d",
			info.SaleStart, info.CurrentBlock)
		d.setState(result, StateInterlude)
		return result, nil
	}

	d.log.Infof("current price is %s WND, limit is %s WND", lib.FormatWND(price), lib.FormatWND(params.PriceLimit))

	if price.Cmp(params.PriceLimit) > 0 {
		// no extrinsic is submitted: the chain would reject it and the fee
		// would be wasted
		d.log.Warnf("current price exceeds the limit, wait for the price to decrease or raise the limit")
		d.setState(result, StateOverpriced)
		return result, nil
	}

	d.setState(result, StateReadyToBuy)

	if params.DryRun {
		d.log.Infof("dry run: would purchase coretime with limit %s WND, expected price %s WND",
			lib.FormatWND(params.PriceLimit), lib.FormatWND(price))
		result.Simulated = true
		d.setState(result, StatePurchased)
		return result, nil
	}

	purchase, err := d.buyer.Purchase(ctx, params.PriceLimit)
	if err != nil {
		d.setState(result, StatePurchaseFailed)
		return result, err
	}

	result.Purchase = purchase
	d.setState(result, StatePurchased)
	return result, nil
}

// checkBalances reports the source-chain balances. Reporting only, so the two
// queries run concurrently; the coretime balance gates a transition and is
// read separately in ensureFunded.
func (d *Driver) checkBalances(ctx context.Context, params Params) error {
	if params.SkipBridge {
		d.log.Infof("skipping source balance check, assuming sufficient funds on the coretime chain")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	report := func(name string, reader BalanceReader) func() error {
		return func() error {
			balance, err := reader.Balance(gctx, d.account.PublicKey())
			if err != nil {
				return err
			}
			d.log.Infof("%s balance: free=%s WND existential deposit=%s WND",
				name, lib.FormatWND(balance.Free), lib.FormatWND(balance.ExistentialDeposit))
			return nil
		}
	}

	g.Go(report("relay", d.relay))
	g.Go(report("asset hub", d.assetHub))

	return g.Wait()
}

func (d *Driver) ensureFunded(ctx context.Context, params Params, result *Result, target, topup *big.Int) error {
	if params.SkipBridge {
		d.setState(result, StateFunded)
		return nil
	}

	free := d.coretimeFree(ctx)
	if free.Cmp(target) >= 0 {
		d.setState(result, StateFunded)
		return nil
	}

	if params.DryRun {
		d.log.Infof("dry run: would bridge %s WND to the coretime chain", lib.FormatWND(topup))
		result.Simulated = true
		d.setState(result, StateFunded)
		return nil
	}

	d.setState(result, StateBridging)
	funded, err := d.funder.EnsureFunded(ctx, target, topup)
	if err != nil {
		return err
	}
	if !funded {
		d.log.Warnf("could not fund the coretime chain account, not attempting a purchase")
		d.setState(result, StateUnfunded)
		return nil
	}

	d.setState(result, StateFunded)
	return nil
}

func (d *Driver) coretimeFree(ctx context.Context) *big.Int {
	balance, err := d.coretime.Balance(ctx, d.account.PublicKey())
	if err != nil {
		d.log.Warnf("could not fetch coretime balance (chain may be connecting): %s", err)
		return big.NewInt(0)
	}
	d.log.Infof("coretime balance: free=%s WND", lib.FormatWND(balance.Free))
	return balance.Free
}

func (d *Driver) setState(result *Result, state State) {
	d.log.Debugf("state: %s -> %s", result.State, state)
	result.State = state
}
