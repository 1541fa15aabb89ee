package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Sampling pipeline
	BusSendFailed     Code = "bus_send_failed"
	BusRecvFailed     Code = "bus_recv_failed"
	ChecksumMismatch  Code = "checksum_mismatch"
	UnsupportedSelect Code = "unsupported_selector"

	// Framework surface
	NoMem           Code = "no_mem"
	InvalidParams   Code = "invalid_params"
	InvalidScanMask Code = "invalid_scan_mask"
	UnknownDevice   Code = "unknown_device"
	UnknownChannel  Code = "unknown_channel"
	UnknownBus      Code = "unknown_bus"
	Unsupported     Code = "unsupported"
	HALNotReady     Code = "hal_not_ready"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
