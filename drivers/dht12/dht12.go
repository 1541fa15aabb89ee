// Package dht12 provides a driver for the DHT12 relative humidity and
// temperature sensor on its two-wire (I²C) interface.
//
// The sensor exchange is a two-phase transaction: write the register-select
// command, wait for the part to settle, then read the five data bytes and
// wait again. Both settle delays are mandatory; dropping either makes the
// sensor return garbage because the measurement has not finished. The delay
// is drawn from [SettleMin, SettleMax] per step to tolerate sensor jitter.
//
// Values are fixed-point, scaled by 100 (2345 means 23.45 %RH or °C).
//
// Two read paths exist:
//
//	m, err := d.Read()        // single transaction, for on-demand reads
//	m, err := d.CaptureRead() // double transaction, for triggered capture
//
// CaptureRead performs the full transaction twice and unconditionally
// discards the first result (errors included): immediately after a trigger
// the DHT12 tends to serve the previous, latched conversion, and only the
// second poll is current. Do not collapse this into a single read.
package dht12

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x5C

// cmdRead selects register 0, the start of the measurement block.
const cmdRead = 0x00

// frameLen is the measurement block: humidity MSB/LSB, temperature MSB/LSB,
// checksum.
const frameLen = 5

// Mandated settle window around each bus step.
const (
	defaultSettleMin = 10 * time.Millisecond
	defaultSettleMax = 20 * time.Millisecond
)

// Errors returned by the driver.
var (
	ErrSend     = errors.New("dht12: read request failed")
	ErrRecv     = errors.New("dht12: sensor data read failed")
	ErrChecksum = errors.New("dht12: checksum mismatch")
)

// Error pairs a driver sentinel with the underlying bus cause.
type Error struct {
	Kind  error // ErrSend or ErrRecv
	Cause error
}

func (e *Error) Error() string        { return e.Kind.Error() + ": " + e.Cause.Error() }
func (e *Error) Unwrap() error        { return e.Cause }
func (e *Error) Is(target error) bool { return target == e.Kind }

// Measurement is one decoded sensor reading, scaled by 100.
type Measurement struct {
	Humidity    int16
	Temperature int16
}

// RelHumidity returns %RH as a float. Prefer the fixed-point field.
func (m Measurement) RelHumidity() float32 { return float32(m.Humidity) / 100 }

// Celsius returns °C as a float. Prefer the fixed-point field.
func (m Measurement) Celsius() float32 { return float32(m.Temperature) / 100 }

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x5C if zero.
	Address uint16
	// SettleMin/SettleMax bound the per-step settle delay.
	// Defaults 10 ms / 20 ms. Shorten only against a simulated bus.
	SettleMin time.Duration
	SettleMax time.Duration
}

// Device wraps an I2C connection to a DHT12.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config

	// mu serialises the bus exchange: at most one transaction in flight.
	// Checksum and decode run outside it on purpose.
	mu  sync.Mutex
	rnd *rand.Rand // settle jitter; guarded by mu
}

// New creates a new DHT12 connection. The I2C bus must already be
// configured. This only creates the Device object; it does not touch the
// device.
func New(bus drivers.I2C) *Device {
	return &Device{
		bus:     bus,
		Address: Address,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Configure applies optional config. It may be called with no cfg.
func (d *Device) Configure(cfgs ...Config) {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.SettleMin <= 0 {
		c.SettleMin = defaultSettleMin
	}
	if c.SettleMax < c.SettleMin {
		c.SettleMax = c.SettleMin
	}
	d.cfg = c
}

// Read performs one on-demand measurement: a single bus transaction,
// checksum-validated and decoded.
func (d *Device) Read() (Measurement, error) {
	var frame [frameLen]byte
	if err := d.transact(&frame); err != nil {
		return Measurement{}, err
	}
	if !checksumOK(&frame) {
		return Measurement{}, ErrChecksum
	}
	return decode(&frame), nil
}

// CaptureRead performs the triggered-capture measurement: two full
// transactions back to back, keeping only the second. The first poll after
// a trigger returns the sensor's latched previous conversion, so its result
// and any error it produced are discarded without inspection. A failure of
// the second transaction fails the capture.
func (d *Device) CaptureRead() (Measurement, error) {
	var stale [frameLen]byte
	_ = d.transact(&stale)
	return d.Read()
}

// transact runs the two-phase exchange under the transaction lock:
// send the register-select command, settle, receive the frame, settle.
// The sensor is not addressable again until the trailing delay has passed,
// so both delays sit inside the lock.
func (d *Device) transact(frame *[frameLen]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.bus.Tx(d.Address, []byte{cmdRead}, nil); err != nil {
		return &Error{Kind: ErrSend, Cause: err}
	}
	d.settle()
	if err := d.bus.Tx(d.Address, nil, frame[:]); err != nil {
		return &Error{Kind: ErrRecv, Cause: err}
	}
	d.settle()
	return nil
}

// settle blocks for a value in [SettleMin, SettleMax]. Caller holds mu.
func (d *Device) settle() {
	min, max := d.cfg.SettleMin, d.cfg.SettleMax
	if min <= 0 {
		min, max = defaultSettleMin, defaultSettleMax
	}
	delay := min
	if span := int64(max - min); span > 0 {
		delay += time.Duration(d.rnd.Int63n(span + 1))
	}
	time.Sleep(delay)
}

// checksumOK verifies frame integrity: the fifth byte is the sum of the
// first four modulo 256. A failing frame must never be decoded.
func checksumOK(frame *[frameLen]byte) bool {
	return frame[4] == frame[0]+frame[1]+frame[2]+frame[3]
}

// decode converts a validated frame to fixed-point values. Plain arithmetic;
// the byte ranges are the sensor's contract, not validated here.
func decode(frame *[frameLen]byte) Measurement {
	return Measurement{
		Humidity:    int16(frame[0])*100 + int16(frame[1]),
		Temperature: int16(frame[2])*100 + int16(frame[3]),
	}
}
