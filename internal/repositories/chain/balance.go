package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Balance is a read-only snapshot of an account on one chain. It is re-fetched
// on demand and never cached across orchestration steps: cross-chain finality
// delay makes staleness likely.
type Balance struct {
	Free               *big.Int
	ExistentialDeposit *big.Int
}

// Balance queries the free balance and existential deposit for an account.
// A missing account is a valid zero-balance result, not an error.
func (c *Conn) Balance(ctx context.Context, accountID []byte) (*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := types.CreateStorageKey(c.meta, "System", "Account", accountID)
	if err != nil {
		return nil, fmt.Errorf("cannot build %s account storage key: %w", c.role, err)
	}

	var info types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return nil, fmt.Errorf("cannot query %s account balance: %w", c.role, err)
	}

	free := big.NewInt(0)
	if ok && info.Data.Free.Int != nil {
		free = info.Data.Free.Int
	}

	ed, err := c.existentialDeposit()
	if err != nil {
		return nil, err
	}

	return &Balance{Free: free, ExistentialDeposit: ed}, nil
}

func (c *Conn) existentialDeposit() (*big.Int, error) {
	raw, err := c.meta.FindConstantValue("Balances", "ExistentialDeposit")
	if err != nil {
		// chains without the Balances pallet constant report zero
		c.log.Debugf("%s chain exposes no existential deposit: %s", c.role, err)
		return big.NewInt(0), nil
	}

	var ed types.U128
	if err := codec.Decode(raw, &ed); err != nil {
		return nil, fmt.Errorf("cannot decode %s existential deposit: %w", c.role, err)
	}
	return ed.Int, nil
}
