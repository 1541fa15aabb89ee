// services/hal/types.go
package hal

import (
	"context"

	"tinygo.org/x/drivers"

	"sensorcode-go/types"
)

// ChannelSet is a bitmask over a device's scan indexes: bit n selects the
// channel with scan index n. Supplied per capture session; read-only here.
type ChannelSet uint8

// Has reports whether scan index bit is selected.
func (s ChannelSet) Has(bit int) bool { return s&(1<<uint(bit)) != 0 }

// Count returns the number of selected channels (explicit bit loop; frame
// slot counts must match it exactly).
func (s ChannelSet) Count() int {
	n := 0
	for b := 0; b < 8; b++ {
		if s.Has(b) {
			n++
		}
	}
	return n
}

// FullSet returns the mask selecting every one of n channels.
func FullSet(n int) ChannelSet { return ChannelSet(1<<uint(n)) - 1 }

// InfoSelector picks what a direct read returns for a channel.
type InfoSelector uint8

const (
	// InfoRaw performs one sampling transaction and returns the decoded
	// fixed-point value.
	InfoRaw InfoSelector = iota
	// InfoScale returns the channel's constant scale factor; no bus traffic.
	InfoScale
)

// SelectorFromString maps the wire names used on the read plane.
func SelectorFromString(s string) (InfoSelector, bool) {
	switch s {
	case "raw":
		return InfoRaw, true
	case "scale":
		return InfoScale, true
	default:
		return 0, false
	}
}

// Adaptor owns a concrete sensor driver and exposes the generic hooks the
// service needs. Adaptors must not touch the message bus or spawn
// goroutines; blocking bus transactions are fine (the service calls them
// from worker contexts).
//
// Errors returned from ReadRaw and Capture must carry an errcode (directly
// or via errcode.E) so the service can report them on the wire.
type Adaptor interface {
	ID() string
	// Static channel table, ascending scan index. Published retained.
	Channels() []types.ChannelDesc
	// Direct read accessor for one channel and selector.
	ReadRaw(ctx context.Context, scanIndex int, sel InfoSelector) (int32, error)
	// Triggered-capture read: sample, then project onto the mask's set bits
	// in ascending order. len(result) == mask.Count().
	Capture(ctx context.Context, mask ChannelSet) ([]int16, error)
}

// I2CBusFactory injects configured I²C instances by id.
// Uses the TinyGo drivers.I2C interface to remain compatible on MCU builds.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}
