package broker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
	"github.com/coretime-tools/coretime-purchaser/internal/wallet"
	"github.com/centrifuge/go-substrate-rpc-client/v4/xxhash"
	"golang.org/x/exp/slices"
)

// createStorageKeyPrefix builds twox128(pallet) ++ twox128(item), the key
// prefix of a storage map. Mirrors types.CreateStorageKeyPrefix, which is
// not available in the pinned gsrpc release.
func createStorageKeyPrefix(prefix, method string) []byte {
	return append(xxhash.New128([]byte(prefix)).Sum(nil), xxhash.New128([]byte(method)).Sum(nil)...)
}

// Storage map key layout: twox128(pallet) ++ twox128(item) ++ hasher(key) ++
// scale(key). Regions hashes its RegionId with blake2_128_concat, Workplan
// its (timeslice, core) tuple with twox64_concat.
const (
	storagePrefixLen  = 32
	regionsKeyOffset  = storagePrefixLen + 16
	workplanKeyOffset = storagePrefixLen + 8

	keyPageSize = 100
)

// Region is an owned slice of compute time, read back from chain storage
// after purchase.
type Region struct {
	ID    chain.RegionID
	End   uint32
	Owner types.AccountID
	Paid  *big.Int // nil for regions granted rather than bought
}

// Assignment is one workplan entry relevant to the account's regions.
type Assignment struct {
	Timeslice uint32
	Core      uint16
	Kind      string // "Idle", "Pool" or "Task"
	Task      uint32 // set when Kind == "Task"
	Mask      chain.CoreMask
}

// regionRecord mirrors the Broker pallet's RegionRecord storage value.
type regionRecord struct {
	End   types.U32
	Owner types.AccountID
	Paid  chain.OptionU128
}

type scheduleItem struct {
	Mask       chain.CoreMask
	Assignment coreAssignment
}

type coreAssignment struct {
	IsIdle bool
	IsPool bool
	IsTask bool
	Task   types.U32
}

func (a *coreAssignment) Decode(decoder scale.Decoder) error {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	switch b {
	case 0:
		a.IsIdle = true
	case 1:
		a.IsPool = true
	case 2:
		a.IsTask = true
		return decoder.Decode(&a.Task)
	default:
		return fmt.Errorf("unknown core assignment variant %d", b)
	}
	return nil
}

func (a coreAssignment) Kind() string {
	switch {
	case a.IsPool:
		return "Pool"
	case a.IsTask:
		return "Task"
	default:
		return "Idle"
	}
}

// RegionStorage narrows the coretime connection to the paged scan surface.
type RegionStorage interface {
	StorageKeysPaged(ctx context.Context, prefix types.StorageKey, pageSize uint32, startKey types.StorageKey) ([]types.StorageKey, error)
	GetStorageByKey(ctx context.Context, key types.StorageKey, target interface{}) (bool, error)
}

type RegionReader struct {
	coretime RegionStorage
	account  *wallet.Account
	log      interfaces.ILogger
}

func NewRegionReader(coretime RegionStorage, account *wallet.Account, log interfaces.ILogger) *RegionReader {
	return &RegionReader{coretime: coretime, account: account, log: log.Named("REGIONS")}
}

// Regions scans Broker.Regions and returns the entries owned by the account,
// ordered by (begin, core). An unreachable or not-yet-synced coretime chain
// degrades to an empty result with a warning.
func (r *RegionReader) Regions(ctx context.Context) ([]Region, error) {
	regions, err := r.scanRegions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.log.Warnf("could not fetch regions: %s", err)
		return nil, nil
	}
	return regions, nil
}

func (r *RegionReader) scanRegions(ctx context.Context) ([]Region, error) {
	prefix := createStorageKeyPrefix("Broker", "Regions")

	var out []Region
	var startKey types.StorageKey
	for {
		keys, err := r.coretime.StorageKeysPaged(ctx, types.StorageKey(prefix), keyPageSize, startKey)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			break
		}

		for _, key := range keys {
			regionID, err := decodeRegionKey(key)
			if err != nil {
				return nil, err
			}

			var record regionRecord
			ok, err := r.coretime.GetStorageByKey(ctx, key, &record)
			if err != nil {
				return nil, err
			}
			if !ok || !r.account.Owns(record.Owner.ToBytes()) {
				continue
			}

			region := Region{ID: regionID, End: uint32(record.End), Owner: record.Owner}
			if record.Paid.HasValue {
				region.Paid = new(big.Int).Set(record.Paid.Value.Int)
			}
			out = append(out, region)
		}

		if len(keys) < keyPageSize {
			break
		}
		startKey = keys[len(keys)-1]
	}

	slices.SortFunc(out, func(a, b Region) int {
		if a.ID.Begin != b.ID.Begin {
			return int(a.ID.Begin) - int(b.ID.Begin)
		}
		return int(a.ID.Core) - int(b.ID.Core)
	})

	r.log.Infof("found %d owned region(s)", len(out))
	for _, region := range out {
		r.log.Infof("region: begin=%d core=%d mask=%s end=%d paid=%s WND",
			uint32(region.ID.Begin), uint16(region.ID.Core), region.ID.Mask, region.End, lib.FormatWND(region.Paid))
	}

	return out, nil
}

// Workplan scans Broker.Workplan and returns the schedule entries for the
// given cores. Workplan values reference task ids, never account addresses,
// so ownership filtering happens through the cores of owned regions.
func (r *RegionReader) Workplan(ctx context.Context, cores []uint16) ([]Assignment, error) {
	assignments, err := r.scanWorkplan(ctx, cores)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.log.Warnf("could not fetch workplan: %s", err)
		return nil, nil
	}
	return assignments, nil
}

func (r *RegionReader) scanWorkplan(ctx context.Context, cores []uint16) ([]Assignment, error) {
	wanted := make(map[uint16]bool, len(cores))
	for _, c := range cores {
		wanted[c] = true
	}

	prefix := createStorageKeyPrefix("Broker", "Workplan")

	var out []Assignment
	var startKey types.StorageKey
	for {
		keys, err := r.coretime.StorageKeysPaged(ctx, types.StorageKey(prefix), keyPageSize, startKey)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			break
		}

		for _, key := range keys {
			timeslice, core, err := decodeWorkplanKey(key)
			if err != nil {
				return nil, err
			}
			if !wanted[core] {
				continue
			}

			var schedule []scheduleItem
			ok, err := r.coretime.GetStorageByKey(ctx, key, &schedule)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			for _, item := range schedule {
				out = append(out, Assignment{
					Timeslice: timeslice,
					Core:      core,
					Kind:      item.Assignment.Kind(),
					Task:      uint32(item.Assignment.Task),
					Mask:      item.Mask,
				})
			}
		}

		if len(keys) < keyPageSize {
			break
		}
		startKey = keys[len(keys)-1]
	}

	r.log.Infof("found %d workplan assignment(s)", len(out))
	for _, a := range out {
		r.log.Infof("assignment: timeslice=%d core=%d %s", a.Timeslice, a.Core, a.Kind)
	}

	return out, nil
}

func decodeRegionKey(key types.StorageKey) (chain.RegionID, error) {
	var regionID chain.RegionID
	if len(key) <= regionsKeyOffset {
		return regionID, fmt.Errorf("region storage key too short: %d bytes", len(key))
	}
	if err := codec.Decode(key[regionsKeyOffset:], &regionID); err != nil {
		return regionID, fmt.Errorf("cannot decode region id: %w", err)
	}
	return regionID, nil
}

func decodeWorkplanKey(key types.StorageKey) (uint32, uint16, error) {
	if len(key) <= workplanKeyOffset {
		return 0, 0, fmt.Errorf("workplan storage key too short: %d bytes", len(key))
	}
	var tuple struct {
		Timeslice types.U32
		Core      types.U16
	}
	if err := codec.Decode(key[workplanKeyOffset:], &tuple); err != nil {
		return 0, 0, fmt.Errorf("cannot decode workplan key: %w", err)
	}
	return uint32(tuple.Timeslice), uint16(tuple.Core), nil
}
