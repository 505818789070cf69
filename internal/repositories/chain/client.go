package chain

import (
	"context"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"go.uber.org/atomic"
)

// Role identifies the position of a chain in the fixed three-chain topology.
type Role string

const (
	RoleRelay    Role = "relay"
	RoleAssetHub Role = "assethub"
	RoleCoretime Role = "coretime"
)

// Conn is a single websocket connection to a substrate chain. Metadata and
// genesis hash are fetched once at dial time; the runtime version is re-read
// per submission because it can change on upgrade.
type Conn struct {
	role        Role
	url         string
	api         *gsrpc.SubstrateAPI
	meta        *types.Metadata
	genesisHash types.Hash

	closed atomic.Bool
	log    interfaces.ILogger
}

func Dial(ctx context.Context, role Role, url string, log interfaces.ILogger) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s chain at %s: %w", role, url, err)
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("cannot fetch %s chain metadata: %w", role, err)
	}

	genesisHash, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch %s chain genesis hash: %w", role, err)
	}

	log.Infof("connected to %s chain: %s", role, url)

	return &Conn{
		role:        role,
		url:         url,
		api:         api,
		meta:        meta,
		genesisHash: genesisHash,
		log:         log,
	}, nil
}

func (c *Conn) Role() Role            { return c.role }
func (c *Conn) Meta() *types.Metadata { return c.meta }

// BlockNumber returns the latest block height of the chain.
func (c *Conn) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	header, err := c.api.RPC.Chain.GetHeaderLatest()
	if err != nil {
		return 0, fmt.Errorf("cannot fetch %s chain header: %w", c.role, err)
	}
	return uint64(header.Number), nil
}

// Close tears down the underlying websocket. Idempotent.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if closer, ok := c.api.Client.(interface{ Close() }); ok {
		closer.Close()
	}
	c.log.Infof("disconnected from %s chain", c.role)
}

// Clients groups the three connections of the topology.
type Clients struct {
	Relay    *Conn
	AssetHub *Conn
	Coretime *Conn
}

// Connect dials all three chains. On partial failure the already established
// connections are closed before returning.
func Connect(ctx context.Context, relayURL, assetHubURL, coretimeURL string, log interfaces.ILogger) (*Clients, error) {
	clients := &Clients{}

	dials := []struct {
		role Role
		url  string
		dst  **Conn
	}{
		{RoleRelay, relayURL, &clients.Relay},
		{RoleAssetHub, assetHubURL, &clients.AssetHub},
		{RoleCoretime, coretimeURL, &clients.Coretime},
	}

	for _, d := range dials {
		conn, err := Dial(ctx, d.role, d.url, log)
		if err != nil {
			clients.Close()
			return nil, err
		}
		*d.dst = conn
	}

	return clients, nil
}

func (c *Clients) Close() {
	for _, conn := range []*Conn{c.Relay, c.AssetHub, c.Coretime} {
		if conn != nil {
			conn.Close()
		}
	}
}
