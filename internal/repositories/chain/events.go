package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	regstate "github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
)

var ErrExtrinsicFailed = errors.New("extrinsic failed")

const (
	eventExtrinsicFailed = "System.ExtrinsicFailed"
	eventBrokerPurchased = "Broker.Purchased"
)

// PurchasedEvent is a Broker purchase confirmation with whatever detail could
// be recovered from the dynamically decoded fields.
type PurchasedEvent struct {
	RegionID *RegionID
	Price    *big.Int
}

// EventRecords holds the dynamically decoded events of one finalized block,
// scoped to a single extrinsic. A block carries many events this program does
// not model (XCM queue processing, broker sale ticks, other users'
// extrinsics), so decoding goes through the metadata-driven registry instead
// of a closed struct that would reject the whole block over one unknown event.
type EventRecords struct {
	events       []*parser.Event
	extrinsicIdx uint32
}

func NewEventRecords(events []*parser.Event, extrinsicIdx uint32) *EventRecords {
	return &EventRecords{events: events, extrinsicIdx: extrinsicIdx}
}

// extrinsicEvents fetches and decodes the events of the given block, scoped to
// the submitted extrinsic.
func (c *Conn) extrinsicEvents(blockHash types.Hash, ext types.Extrinsic) (*EventRecords, error) {
	idx, err := c.extrinsicIndex(blockHash, ext)
	if err != nil {
		return nil, err
	}

	ret, err := retriever.NewDefaultEventRetriever(regstate.NewEventProvider(c.api.RPC.State), c.api.RPC.State)
	if err != nil {
		return nil, fmt.Errorf("cannot build %s chain event decoder: %w", c.role, err)
	}

	events, err := ret.GetEvents(blockHash)
	if err != nil {
		return nil, fmt.Errorf("cannot decode events of block %#x: %w", blockHash, err)
	}

	return NewEventRecords(events, idx), nil
}

// forExtrinsic returns the events with the given name emitted by the watched
// extrinsic.
func (e *EventRecords) forExtrinsic(name string) []*parser.Event {
	var out []*parser.Event
	for _, ev := range e.events {
		if ev == nil || ev.Name != name || ev.Phase == nil {
			continue
		}
		if !ev.Phase.IsApplyExtrinsic || uint32(ev.Phase.AsApplyExtrinsic) != e.extrinsicIdx {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ExtrinsicFailure returns a classified error if the watched extrinsic
// finished with System.ExtrinsicFailed, nil otherwise. Module errors are
// resolved to their metadata name so callers can pattern-match the reason.
func (e *EventRecords) ExtrinsicFailure(meta *types.Metadata) error {
	for _, ev := range e.forExtrinsic(eventExtrinsicFailed) {
		return lib.WrapError(ErrExtrinsicFailed, errors.New(dispatchErrorReason(meta, ev.Fields)))
	}
	return nil
}

// Purchased returns the purchase confirmations emitted by the watched
// extrinsic. Detail fields degrade to nil when their decoded shape is not
// recognized; the confirmation itself only needs name and phase.
func (e *EventRecords) Purchased() []PurchasedEvent {
	var out []PurchasedEvent
	for _, ev := range e.forExtrinsic(eventBrokerPurchased) {
		out = append(out, PurchasedEvent{
			RegionID: regionIDFromFields(findField(ev.Fields, "region_id")),
			Price:    asBig(findField(ev.Fields, "price")),
		})
	}
	return out
}

func dispatchErrorReason(meta *types.Metadata, fields registry.DecodedFields) string {
	scope := findField(fields, "dispatch_error")
	if scope == nil {
		scope = any(fields)
	}

	palletIndex, okPallet := asUint(findField(scope, "index"))
	errorIndex, okError := firstByte(findField(scope, "error"))
	if !okPallet || !okError {
		return "unknown reason"
	}
	return moduleErrorName(meta, uint8(palletIndex), errorIndex)
}

// moduleErrorName resolves a (pallet index, error index) pair to the error
// variant name through metadata v14 type information. Falls back to the raw
// indices so no failure reason is ever dropped.
func moduleErrorName(meta *types.Metadata, palletIndex, errorIndex uint8) string {
	fallback := fmt.Sprintf("module %d error %d", palletIndex, errorIndex)

	if meta.Version != 14 {
		return fallback
	}

	for _, pallet := range meta.AsMetadataV14.Pallets {
		if uint8(pallet.Index) != palletIndex || !pallet.HasErrors {
			continue
		}
		typ, ok := meta.AsMetadataV14.EfficientLookup[pallet.Errors.Type.Int64()]
		if !ok || !typ.Def.IsVariant {
			return fallback
		}
		for _, variant := range typ.Def.Variant.Variants {
			if uint8(variant.Index) == errorIndex {
				return fmt.Sprintf("%s.%s", pallet.Name, variant.Name)
			}
		}
		return fallback
	}

	return fallback
}

func regionIDFromFields(v any) *RegionID {
	begin, okBegin := asUint(findField(v, "begin"))
	core, okCore := asUint(findField(v, "core"))
	if !okBegin || !okCore {
		return nil
	}

	id := &RegionID{Begin: types.U32(begin), Core: types.U16(core)}
	for i, b := range asBytes(findField(v, "mask")) {
		if i >= len(id.Mask) {
			break
		}
		id.Mask[i] = types.U8(b)
	}
	return id
}

// findField walks a decoded field tree depth first and returns the value of
// the first field with the given name, nil when absent.
func findField(v any, name string) any {
	fields, ok := v.(registry.DecodedFields)
	if !ok {
		return nil
	}
	for _, f := range fields {
		if f != nil && strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	for _, f := range fields {
		if f == nil {
			continue
		}
		if found := findField(f.Value, name); found != nil {
			return found
		}
	}
	return nil
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case types.U8:
		return uint64(x), true
	case types.U16:
		return uint64(x), true
	case types.U32:
		return uint64(x), true
	case types.U64:
		return uint64(x), true
	case types.UCompact:
		return (*big.Int)(&x).Uint64(), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}

func asBig(v any) *big.Int {
	switch x := v.(type) {
	case types.U128:
		return x.Int
	case types.U64:
		return new(big.Int).SetUint64(uint64(x))
	case types.UCompact:
		return (*big.Int)(&x)
	case *big.Int:
		return x
	}
	return nil
}

func asBytes(v any) []byte {
	switch x := v.(type) {
	case types.Bytes:
		return x
	case []byte:
		return x
	case []types.U8:
		out := make([]byte, len(x))
		for i, b := range x {
			out[i] = byte(b)
		}
		return out
	case []any:
		out := make([]byte, 0, len(x))
		for _, item := range x {
			b, ok := firstByte(item)
			if !ok {
				return nil
			}
			out = append(out, b)
		}
		return out
	}
	return nil
}

func firstByte(v any) (uint8, bool) {
	switch x := v.(type) {
	case types.U8:
		return uint8(x), true
	case uint8:
		return x, true
	}
	if b := asBytes(v); len(b) > 0 {
		return b[0], true
	}
	return 0, false
}
