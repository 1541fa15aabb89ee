// Package dht12dev binds the DHT12 driver into the HAL: two fixed channels
// (relative humidity and temperature, both raw signed 16-bit with a scale of
// 100), a direct-read accessor, and the triggered-capture path with channel
// projection.
package dht12dev

import (
	"context"
	"errors"

	"sensorcode-go/drivers/dht12"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal"
	"sensorcode-go/types"
)

// Scan indexes (mask bit positions).
const (
	ScanHumidity    = 0
	ScanTemperature = 1
)

// FullChannelMask selects both channels.
const FullChannelMask hal.ChannelSet = 0b11

// Scale converts raw fixed-point values to physical units.
const Scale int32 = 100

type Adaptor struct {
	id  string
	dev *dht12.Device
}

func NewAdaptor(id string, dev *dht12.Device) *Adaptor {
	return &Adaptor{id: id, dev: dev}
}

func (a *Adaptor) ID() string { return a.id }

func (a *Adaptor) Channels() []types.ChannelDesc {
	return []types.ChannelDesc{
		{Kind: "humidity", ScanIndex: ScanHumidity, Scale: Scale, RealBits: 16, Signed: true},
		{Kind: "temperature", ScanIndex: ScanTemperature, Scale: Scale, RealBits: 16, Signed: true},
	}
}

// ReadRaw services the direct read plane. InfoRaw costs one bus transaction;
// InfoScale is answered from the channel table without touching the bus.
func (a *Adaptor) ReadRaw(ctx context.Context, scanIndex int, sel hal.InfoSelector) (int32, error) {
	if scanIndex != ScanHumidity && scanIndex != ScanTemperature {
		return 0, &errcode.E{C: errcode.UnknownChannel, Op: "dht12.read"}
	}
	switch sel {
	case hal.InfoRaw:
		m, err := a.dev.Read()
		if err != nil {
			return 0, wrapErr("dht12.read", err)
		}
		if scanIndex == ScanHumidity {
			return int32(m.Humidity), nil
		}
		return int32(m.Temperature), nil
	case hal.InfoScale:
		return Scale, nil
	default:
		return 0, &errcode.E{C: errcode.UnsupportedSelect, Op: "dht12.read"}
	}
}

// Capture runs the double-read capture cycle and projects the measurement
// onto the session's active channels.
func (a *Adaptor) Capture(ctx context.Context, mask hal.ChannelSet) ([]int16, error) {
	m, err := a.dev.CaptureRead()
	if err != nil {
		return nil, wrapErr("dht12.capture", err)
	}
	return project(m, mask), nil
}

// project maps a measurement onto the mask's set bits. The full two-channel
// mask takes the fixed-order fast path; otherwise the bits are walked in
// ascending order, appending one slot per set bit (bit 0 is humidity, any
// other set bit is temperature). Slot count always equals the popcount.
func project(m dht12.Measurement, mask hal.ChannelSet) []int16 {
	if mask == FullChannelMask {
		return []int16{m.Humidity, m.Temperature}
	}
	slots := make([]int16, 0, mask.Count())
	for bit := 0; bit < 8; bit++ {
		if !mask.Has(bit) {
			continue
		}
		if bit == ScanHumidity {
			slots = append(slots, m.Humidity)
		} else {
			slots = append(slots, m.Temperature)
		}
	}
	return slots
}

// wrapErr maps driver sentinels onto wire error codes, keeping the cause.
func wrapErr(op string, err error) error {
	var c errcode.Code
	switch {
	case errors.Is(err, dht12.ErrChecksum):
		c = errcode.ChecksumMismatch
	case errors.Is(err, dht12.ErrSend):
		c = errcode.BusSendFailed
	case errors.Is(err, dht12.ErrRecv):
		c = errcode.BusRecvFailed
	default:
		c = errcode.Error
	}
	return &errcode.E{C: c, Op: op, Err: err}
}
