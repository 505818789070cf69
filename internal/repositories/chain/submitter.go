package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
)

var (
	ErrTxDropped  = errors.New("transaction dropped from the pool")
	ErrTxInvalid  = errors.New("transaction invalid")
	ErrTxUsurped  = errors.New("transaction usurped")
	ErrTxTimedOut = errors.New("transaction finality timeout")
)

// Receipt is the terminal outcome of a watched submission.
type Receipt struct {
	BlockHash types.Hash
	// Events are the decoded events attributed to the submitted extrinsic.
	// Populated by the broker submitter only.
	Events *EventRecords
}

// Submitter signs a call, submits it and blocks until a terminal notification
// arrives: finalized success, finalized failure, or a stream error. Exactly
// one of receipt/error is returned per submission and the underlying status
// subscription is released on every path.
type Submitter interface {
	SubmitAndWait(ctx context.Context, call types.Call) (*Receipt, error)
}

// TransferSubmitter is the watch style used on the relay chain and the asset
// hub. It resolves on the first finalization notification; the effect of a
// cross-chain transfer is verified by the caller on the destination chain, so
// no event decoding happens here.
type TransferSubmitter struct {
	conn *Conn
	kp   signature.KeyringPair
	log  interfaces.ILogger
}

func NewTransferSubmitter(conn *Conn, kp signature.KeyringPair, log interfaces.ILogger) *TransferSubmitter {
	return &TransferSubmitter{conn: conn, kp: kp, log: log.Named(string(conn.Role()))}
}

func (s *TransferSubmitter) SubmitAndWait(ctx context.Context, call types.Call) (*Receipt, error) {
	_, sub, err := s.conn.signAndSubmit(ctx, call, s.kp)
	if err != nil {
		return nil, err
	}

	blockHash, err := waitFinalized(ctx, sub, s.log)
	if err != nil {
		return nil, err
	}

	return &Receipt{BlockHash: blockHash}, nil
}

// BrokerSubmitter is the watch style used on the coretime chain. After
// finalization it locates the extrinsic in the block and decodes the events
// attributed to it; a System.ExtrinsicFailed event turns into an error
// carrying the resolved module error name.
type BrokerSubmitter struct {
	conn *Conn
	kp   signature.KeyringPair
	log  interfaces.ILogger
}

func NewBrokerSubmitter(conn *Conn, kp signature.KeyringPair, log interfaces.ILogger) *BrokerSubmitter {
	return &BrokerSubmitter{conn: conn, kp: kp, log: log.Named(string(conn.Role()))}
}

func (s *BrokerSubmitter) SubmitAndWait(ctx context.Context, call types.Call) (*Receipt, error) {
	ext, sub, err := s.conn.signAndSubmit(ctx, call, s.kp)
	if err != nil {
		return nil, err
	}

	blockHash, err := waitFinalized(ctx, sub, s.log)
	if err != nil {
		return nil, err
	}

	events, err := s.conn.extrinsicEvents(blockHash, ext)
	if err != nil {
		return nil, err
	}

	if failure := events.ExtrinsicFailure(s.conn.meta); failure != nil {
		return nil, failure
	}

	return &Receipt{BlockHash: blockHash, Events: events}, nil
}

func (c *Conn) signAndSubmit(ctx context.Context, call types.Call, kp signature.KeyringPair) (types.Extrinsic, *author.ExtrinsicStatusSubscription, error) {
	if err := ctx.Err(); err != nil {
		return types.Extrinsic{}, nil, err
	}

	ext := types.NewExtrinsic(call)

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return ext, nil, fmt.Errorf("cannot fetch %s runtime version: %w", c.role, err)
	}

	key, err := types.CreateStorageKey(c.meta, "System", "Account", kp.PublicKey)
	if err != nil {
		return ext, nil, err
	}
	var info types.AccountInfo
	if _, err := c.api.RPC.State.GetStorageLatest(key, &info); err != nil {
		return ext, nil, fmt.Errorf("cannot fetch %s account nonce: %w", c.role, err)
	}

	opts := types.SignatureOptions{
		BlockHash:          c.genesisHash,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        c.genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(info.Nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}

	if err := ext.Sign(kp, opts); err != nil {
		return ext, nil, fmt.Errorf("cannot sign %s extrinsic: %w", c.role, err)
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return ext, nil, fmt.Errorf("cannot submit %s extrinsic: %w", c.role, err)
	}

	return ext, sub, nil
}

// waitFinalized drains the status subscription until a terminal status. It
// unsubscribes on every return path so the stream is never leaked.
func waitFinalized(ctx context.Context, sub *author.ExtrinsicStatusSubscription, log interfaces.ILogger) (types.Hash, error) {
	defer sub.Unsubscribe()

	for {
		select {
		case status := <-sub.Chan():
			switch {
			case status.IsInBlock:
				log.Debugf("extrinsic included in block %#x", status.AsInBlock)
			case status.IsFinalized:
				log.Infof("extrinsic finalized in block %#x", status.AsFinalized)
				return status.AsFinalized, nil
			case status.IsDropped:
				return types.Hash{}, ErrTxDropped
			case status.IsInvalid:
				return types.Hash{}, ErrTxInvalid
			case status.IsUsurped:
				return types.Hash{}, ErrTxUsurped
			case status.IsFinalityTimeout:
				return types.Hash{}, ErrTxTimedOut
			}
		case err := <-sub.Err():
			return types.Hash{}, fmt.Errorf("extrinsic watch failed: %w", err)
		case <-ctx.Done():
			return types.Hash{}, ctx.Err()
		}
	}
}

// extrinsicIndex locates the submitted extrinsic inside the finalized block so
// events can be attributed to it.
func (c *Conn) extrinsicIndex(blockHash types.Hash, ext types.Extrinsic) (uint32, error) {
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return 0, fmt.Errorf("cannot fetch block %#x: %w", blockHash, err)
	}

	target, err := codec.EncodeToHex(ext)
	if err != nil {
		return 0, err
	}

	for i, e := range block.Block.Extrinsics {
		enc, err := codec.EncodeToHex(e)
		if err != nil {
			continue
		}
		if enc == target {
			return uint32(i), nil
		}
	}

	return 0, fmt.Errorf("extrinsic not found in finalized block %#x", blockHash)
}
