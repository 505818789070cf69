package bridge

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
	"github.com/coretime-tools/coretime-purchaser/internal/wallet"
)

var errNotSettled = errors.New("bridged funds not yet arrived")

// BalanceReader is the pre-check surface a funding path needs.
type BalanceReader interface {
	Balance(ctx context.Context, accountID []byte) (*chain.Balance, error)
}

// Path is one way of moving the native asset onto the coretime chain. Paths
// are tried in order; a failing path is logged and the next one attempted.
type Path struct {
	Name          string
	Source        BalanceReader
	Submitter     chain.Submitter
	BuildTransfer func(amount *big.Int) (types.Call, error)
}

// Orchestrator tops up the coretime-chain balance by bridging funds from the
// asset hub first and the relay chain as fallback.
type Orchestrator struct {
	coretime BalanceReader
	paths    []Path
	account  *wallet.Account

	settleTimeout  time.Duration
	settleInterval time.Duration

	log interfaces.ILogger
}

func NewOrchestrator(
	coretime BalanceReader,
	paths []Path,
	account *wallet.Account,
	settleTimeout, settleInterval time.Duration,
	log interfaces.ILogger,
) *Orchestrator {
	return &Orchestrator{
		coretime:       coretime,
		paths:          paths,
		account:        account,
		settleTimeout:  settleTimeout,
		settleInterval: settleInterval,
		log:            log.Named("BRIDGE"),
	}
}

// EnsureFunded makes sure the coretime-chain free balance reaches target,
// bridging topup from one of the configured paths when it does not. Path
// failures (insufficient source balance, submission errors, settle timeouts)
// trigger the next path; only both paths exhausted yields funded=false.
// No transfer is submitted when the balance already meets the target.
func (o *Orchestrator) EnsureFunded(ctx context.Context, target, topup *big.Int) (bool, error) {
	free := o.coretimeFree(ctx)
	if free.Cmp(target) >= 0 {
		o.log.Infof("coretime balance %s WND already meets target %s WND", lib.FormatWND(free), lib.FormatWND(target))
		return true, nil
	}

	o.log.Infof("coretime balance %s WND below target %s WND, bridging %s WND",
		lib.FormatWND(free), lib.FormatWND(target), lib.FormatWND(topup))

	for _, path := range o.paths {
		if o.tryPath(ctx, path, topup, target) {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}

	// bridging may have partially landed, the final balance decides
	free = o.coretimeFree(ctx)
	if free.Cmp(target) >= 0 {
		return true, nil
	}

	o.log.Warnf("all funding paths exhausted, coretime balance %s WND still below target %s WND",
		lib.FormatWND(free), lib.FormatWND(target))
	return false, nil
}

func (o *Orchestrator) tryPath(ctx context.Context, path Path, amount, target *big.Int) bool {
	log := o.log.Named(path.Name)
	log.Infof("transferring %s WND to the coretime chain", lib.FormatWND(amount))

	source, err := path.Source.Balance(ctx, o.account.PublicKey())
	if err != nil {
		log.Warnf("cannot check source balance: %s", err)
		return false
	}

	// the transfer must not reap the source account
	required := new(big.Int).Add(amount, source.ExistentialDeposit)
	if source.Free.Cmp(required) < 0 {
		log.Warnf("insufficient balance: need %s WND, have %s WND, fund the account first",
			lib.FormatWND(required), lib.FormatWND(source.Free))
		return false
	}

	call, err := path.BuildTransfer(amount)
	if err != nil {
		log.Warnf("cannot build transfer: %s", err)
		return false
	}

	if _, err := path.Submitter.SubmitAndWait(ctx, call); err != nil {
		log.Warnf("transfer failed: %s", err)
		return false
	}

	// the message finalizes on the source chain before the destination
	// processes it, poll the destination balance until it reflects the funds
	log.Infof("transfer finalized, waiting for funds to settle on the coretime chain")
	err = lib.Poll(ctx, o.settleTimeout, o.settleInterval, func() error {
		balance, err := o.coretime.Balance(ctx, o.account.PublicKey())
		if err != nil {
			return err
		}
		if balance.Free.Cmp(target) < 0 {
			return errNotSettled
		}
		return nil
	})
	if err != nil {
		log.Warnf("funds did not settle in %s: %s", o.settleTimeout, err)
		return false
	}

	log.Infof("funds settled on the coretime chain")
	return true
}

// coretimeFree reads the coretime-chain free balance, degrading to zero with
// a warning while the chain is unreachable or still syncing.
func (o *Orchestrator) coretimeFree(ctx context.Context) *big.Int {
	balance, err := o.coretime.Balance(ctx, o.account.PublicKey())
	if err != nil {
		o.log.Warnf("could not fetch coretime balance (chain may be connecting): %s", err)
		return big.NewInt(0)
	}
	return balance.Free
}
