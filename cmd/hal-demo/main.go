// Command hal-demo: host bring-up for the HAL with a simulated DHT12.
//
// Run:
//   go run ./cmd/hal-demo
//
// A fake I2C bus stands in for the sensor, so the full path is exercised:
// embedded config -> HAL -> periodic triggered captures -> capture frames on
// the bus, plus a direct read via request-reply.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/heartbeat"
	"sensorcode-go/types"

	"tinygo.org/x/drivers"

	// Register device adaptors.
	_ "sensorcode-go/services/hal/devices/dht12"
)

func main() {
	fmt.Println("== sensorcode: host demo (HAL + simulated DHT12) ==")

	b := bus.NewBus(64)
	conn := b.NewConnection("main")

	stateSub := conn.Subscribe(bus.T("hal", "state"))
	defer conn.Unsubscribe(stateSub)
	capSub := conn.Subscribe(bus.T("hal", "device", "+", "capture"))
	defer conn.Unsubscribe(capSub)
	statusSub := conn.Subscribe(bus.T("hal", "device", "+", "status"))
	defer conn.Unsubscribe(statusSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Services.
	go hal.Run(ctx, b.NewConnection("hal"), simBuses{})
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	waitForAwaitingConfig(stateSub)

	// Embedded config for the "host" profile wires up one dht12 on i2c0.
	cfgCtx := context.WithValue(ctx, config.CtxDeviceKey, "host")
	config.NewConfigService().Start(cfgCtx, b.NewConnection("config"))

	fmt.Println("Config sent. Streaming telemetry...")

	// One direct read once the device is up, then stream.
	go func() {
		time.Sleep(500 * time.Millisecond)
		demoDirectRead(ctx, conn, "dht12-0")
	}()

	for {
		select {
		case m := <-stateSub.Channel():
			printHALState(m)
		case m := <-capSub.Channel():
			printCapture(m)
		case m := <-statusSub.Channel():
			printStatus(m)
		}
	}
}

// ---------------- Direct read demo ----------------

func demoDirectRead(ctx context.Context, conn *bus.Connection, devID string) {
	for _, ch := range []int{0, 1} {
		req := conn.NewMessage(
			bus.T("hal", "device", devID, "read"),
			types.ReadRequest{Channel: ch, Info: "raw"},
			false,
		)
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		reply, err := conn.RequestWait(cctx, req)
		cancel()
		if err != nil {
			fmt.Printf("direct read ch%d: %v\n", ch, err)
			continue
		}
		if rep, ok := reply.Payload.(types.ReadReply); ok {
			if rep.OK {
				fmt.Printf("direct read ch%d: raw=%d\n", ch, rep.Value)
			} else {
				fmt.Printf("direct read ch%d: error=%s\n", ch, rep.Error)
			}
		}
	}
}

// ---------------- Printing helpers ----------------

func waitForAwaitingConfig(sub *bus.Subscription) {
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				fmt.Printf("[HAL] state=%s status=%s\n", st.Level, st.Status)
				if st.Status == "awaiting_config" {
					return
				}
			}
		case <-timer.C:
			return
		}
	}
}

func printHALState(m *bus.Message) {
	if st, ok := m.Payload.(types.HALState); ok {
		fmt.Printf("[HAL] state=%s status=%s\n", st.Level, st.Status)
	}
}

func printCapture(m *bus.Message) {
	f, ok := m.Payload.(types.CaptureFrame)
	if !ok {
		return
	}
	if len(f.Slots) == 2 {
		fmt.Printf("[%s] capture: %.2f %%RH  %.2f °C\n",
			f.Device, float64(f.Slots[0])/100.0, float64(f.Slots[1])/100.0)
		return
	}
	fmt.Printf("[%s] capture: slots=%v\n", f.Device, f.Slots)
}

func printStatus(m *bus.Message) {
	st, ok := m.Payload.(types.DeviceStatus)
	if !ok {
		return
	}
	if st.Error != "" {
		fmt.Printf("[%s] status: link=%s captures=%d skipped=%d error=%s\n",
			m.Topic.At(2), st.Link, st.Captures, st.Skipped, st.Error)
	}
}

// ---------------- Simulated I2C bus ----------------

type simBuses struct{}

func (simBuses) ByID(id string) (drivers.I2C, bool) {
	if id != "i2c0" {
		return nil, false
	}
	return newSimDHT12(), true
}

// simDHT12 answers the DHT12 wire protocol with a slowly drifting reading.
type simDHT12 struct {
	mu   sync.Mutex
	rnd  *rand.Rand
	hum  int16 // centi-%RH
	temp int16 // centi-degC
}

func newSimDHT12() *simDHT12 {
	return &simDHT12{
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		hum:  4820,
		temp: 2210,
	}
}

func (s *simDHT12) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) > 0 {
		// Sample command; drift the reading a little per cycle.
		s.hum += int16(s.rnd.Intn(21) - 10)
		s.temp += int16(s.rnd.Intn(11) - 5)
		return nil
	}
	if len(r) >= 5 {
		r[0] = byte(s.hum / 100)
		r[1] = byte(s.hum % 100)
		r[2] = byte(s.temp / 100)
		r[3] = byte(s.temp % 100)
		r[4] = r[0] + r[1] + r[2] + r[3]
	}
	return nil
}
