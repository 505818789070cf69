package chain

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// CoreMask is the 80-bit coverage mask of a region, one bit per core part.
type CoreMask [10]types.U8

func (m CoreMask) String() string {
	out := "0x"
	for _, b := range m {
		out += fmt.Sprintf("%02x", uint8(b))
	}
	return out
}

// RegionID identifies a slice of purchased compute time in Broker.Regions
// storage and in purchase events.
type RegionID struct {
	Begin types.U32
	Core  types.U16
	Mask  CoreMask
}

// OptionU128 decodes an Option<u128>, which gsrpc does not ship.
type OptionU128 struct {
	HasValue bool
	Value    types.U128
}

func (o *OptionU128) Decode(decoder scale.Decoder) error {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	if b == 0 {
		o.HasValue = false
		return nil
	}
	o.HasValue = true
	return decoder.Decode(&o.Value)
}

func (o OptionU128) Encode(encoder scale.Encoder) error {
	if !o.HasValue {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return encoder.Encode(o.Value)
}
