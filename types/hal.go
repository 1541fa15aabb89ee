// Package types holds the public, bus-facing payload shapes shared by
// services and their clients. Everything here is JSON-serialisable.
package types

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ns"`  // publish Unix ns
}

// DeviceStatus is retained per device on hal/device/<id>/status.
// Captures counts frames pushed so far; Skipped counts capture cycles
// abandoned on error; Error is the last errcode observed, if any.
type DeviceStatus struct {
	Link     string `json:"link"` // "up" | "down"
	TS       int64  `json:"ts_ns"`
	Captures uint32 `json:"captures"`
	Skipped  uint32 `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// ------------------------
// HAL configuration (JSON on config/hal)
// ------------------------

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
}

type HALDevice struct {
	ID     string    `json:"id"`   // logical device id, e.g. "dht12-0"
	Type   string    `json:"type"` // builder key, e.g. "dht12"
	BusRef DevBusRef `json:"bus_ref"`
	Params any       `json:"params,omitempty"` // device-specific shape
}

type DevBusRef struct {
	ID   string `json:"id"`   // "i2c0"
	Type string `json:"type"` // "i2c"
}

// ------------------------
// Channel descriptors (retained per device)
// ------------------------

type ChannelDesc struct {
	Kind      string `json:"kind"`       // "humidityrelative" | "temp"
	ScanIndex int    `json:"scan_index"` // slot order inside a capture frame
	Scale     int32  `json:"scale"`      // divide raw by this for physical units
	RealBits  int    `json:"real_bits"`  // 16
	Signed    bool   `json:"signed"`
}

type ChannelsDoc struct {
	Device    string        `json:"device"`
	Channels  []ChannelDesc `json:"channels"`
	Timestamp bool          `json:"timestamp"` // frames carry a soft timestamp
}

// ------------------------
// Direct read plane (request/reply on hal/device/<id>/read)
// ------------------------

type ReadRequest struct {
	Channel int    `json:"channel"` // scan index
	Info    string `json:"info"`    // "raw" | "scale"
}

type ReadReply struct {
	OK    bool   `json:"ok"`
	Value int32  `json:"value,omitempty"`
	Error string `json:"error,omitempty"` // errcode on failure
}

// ------------------------
// Control plane (hal/device/<id>/control/<verb>)
// ------------------------

type ScanMaskControl struct {
	Mask uint8 `json:"mask"` // bit per scan index
}

type OKReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ------------------------
// Capture stream (hal/device/<id>/capture)
// ------------------------

// CaptureFrame is one triggered capture: one slot per active channel in
// ascending scan order, plus the trigger timestamp. Assembled once per
// trigger firing; ownership passes to the consumer on publish.
type CaptureFrame struct {
	Device string  `json:"device"`
	Slots  []int16 `json:"slots"`
	TS     int64   `json:"ts_ns"`
}
