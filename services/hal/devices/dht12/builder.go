package dht12dev

import (
	"errors"
	"time"

	"sensorcode-go/drivers/dht12"
	"sensorcode-go/services/hal"
	"sensorcode-go/x/mathx"
)

// Enumeration tables used for device matching. Pure data: the bus address
// the part answers on and the platform/firmware identifiers that map to it.
var (
	i2cAddrTable = map[string]uint16{
		"dht12": dht12.Address,
	}
	acpiMatchTable = map[string]string{
		"AOS0012": "dht12",
	}
)

type builder struct{}

func init() {
	hal.RegisterBuilder("dht12", builder{})
}

func (builder) Build(in hal.BuildInput) (hal.BuildOutput, error) {
	if in.BusRef.Type != "i2c" || in.BusRef.ID == "" {
		return hal.BuildOutput{}, errors.New("dht12: missing or invalid i2c bus reference")
	}
	i2c, ok := in.Buses.ByID(in.BusRef.ID)
	if !ok {
		return hal.BuildOutput{}, errors.New("dht12: unknown i2c bus " + in.BusRef.ID)
	}

	var p struct {
		Addr           int    `json:"addr"`
		ACPIID         string `json:"acpi_id"`
		ScanMask       uint8  `json:"scan_mask"`
		CaptureEveryMS int    `json:"capture_every_ms"`
		JitterMS       int    `json:"jitter_ms"`
	}
	_ = hal.DecodeJSON(in.ParamsJSON, &p)

	if p.ACPIID != "" {
		if _, ok := acpiMatchTable[p.ACPIID]; !ok {
			return hal.BuildOutput{}, errors.New("dht12: no match for platform id " + p.ACPIID)
		}
	}
	if p.Addr == 0 {
		p.Addr = int(i2cAddrTable["dht12"])
	}

	dev := dht12.New(i2c)
	dev.Configure(dht12.Config{Address: uint16(p.Addr)})

	every := 2 * time.Second
	if p.CaptureEveryMS > 0 {
		every = time.Duration(mathx.Clamp(p.CaptureEveryMS, 100, 3_600_000)) * time.Millisecond
	}
	var jitter time.Duration
	if p.JitterMS > 0 {
		jitter = time.Duration(mathx.Clamp(p.JitterMS, 0, 1000)) * time.Millisecond
	}

	return hal.BuildOutput{
		Adaptor:      NewAdaptor(in.DeviceID, dev),
		BusID:        in.BusRef.ID,
		CaptureEvery: every,
		Jitter:       jitter,
		ScanMask:     hal.ChannelSet(p.ScanMask),
	}, nil
}
