package chain

import (
	"context"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// GetStorage reads a storage item at the latest block into target. Returns
// false when the item is absent.
func (c *Conn) GetStorage(ctx context.Context, pallet, item string, target interface{}, args ...[]byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key, err := types.CreateStorageKey(c.meta, pallet, item, args...)
	if err != nil {
		return false, fmt.Errorf("cannot build %s.%s storage key: %w", pallet, item, err)
	}

	ok, err := c.api.RPC.State.GetStorageLatest(key, target)
	if err != nil {
		return false, fmt.Errorf("cannot query %s.%s on %s chain: %w", pallet, item, c.role, err)
	}
	return ok, nil
}

// GetStorageByKey reads a raw storage key at the latest block into target.
func (c *Conn) GetStorageByKey(ctx context.Context, key types.StorageKey, target interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.api.RPC.State.GetStorageLatest(key, target)
}

// StorageKeysPaged lists keys under a map prefix one page at a time, via the
// state_getKeysPaged RPC which gsrpc does not wrap.
func (c *Conn) StorageKeysPaged(ctx context.Context, prefix types.StorageKey, pageSize uint32, startKey types.StorageKey) ([]types.StorageKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var start interface{}
	if len(startKey) > 0 {
		start = startKey.Hex()
	}

	var rawKeys []string
	err := c.api.Client.Call(&rawKeys, "state_getKeysPaged", prefix.Hex(), pageSize, start)
	if err != nil {
		return nil, fmt.Errorf("cannot list storage keys on %s chain: %w", c.role, err)
	}

	keys := make([]types.StorageKey, 0, len(rawKeys))
	for _, raw := range rawKeys {
		b, err := codec.HexDecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed storage key %q: %w", raw, err)
		}
		keys = append(keys, types.StorageKey(b))
	}
	return keys, nil
}
