package purchaser

import (
	"context"
	"math/big"

	"github.com/coretime-tools/coretime-purchaser/internal/broker"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
)

type SaleReader interface {
	SaleInfo(ctx context.Context) (*broker.SaleInfo, error)
}

type Funder interface {
	EnsureFunded(ctx context.Context, target, topup *big.Int) (bool, error)
}

type Buyer interface {
	Purchase(ctx context.Context, priceLimit *big.Int) (*broker.PurchaseResult, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, accountID []byte) (*chain.Balance, error)
}
