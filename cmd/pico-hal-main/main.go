//go:build rp2040

// Command pico-hal-main: HAL bring-up for RP2040/Pico with a DHT12 on I2C0
// and capture forwarding over UART0.
//
// Build/flash (TinyGo):
//   tinygo flash -target pico ./cmd/pico-hal-main
//
// Wiring assumptions (edit the "pico" embedded config as needed):
// - I2C0 @ 100 kHz on Pico defaults: SDA=GP4, SCL=GP5; DHT12 on 0x5C.
// - UART0 on GP0/GP1 @ 115200 for the bridge link.

package main

import (
	"context"
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"sensorcode-go/bus"
	"sensorcode-go/services/bridge"
	"sensorcode-go/services/config"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/heartbeat"
	"sensorcode-go/types"

	// Register device adaptors.
	_ "sensorcode-go/services/hal/devices/dht12"
)

type picoBuses struct{}

func (picoBuses) ByID(id string) (drivers.I2C, bool) {
	switch id {
	case "i2c0":
		return machine.I2C0, true
	case "i2c1":
		return machine.I2C1, true
	default:
		return nil, false
	}
}

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.Background()

	println("[main] configuring i2c0 …")
	if err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       machine.GP4,
		SCL:       machine.GP5,
		Frequency: 100_000,
	}); err != nil {
		println("[main] i2c0 configure failed:", err.Error())
	}

	println("[main] bootstrapping bus …")
	b := bus.NewBus(8)

	println("[main] subscribing to hal/# for diagnostics …")
	mon := b.NewConnection("monitor").Subscribe(bus.T("hal", "#"))
	go func() {
		for m := range mon.Channel() {
			printTopicWith("[monitor] <-", m.Topic)
			if f, ok := m.Payload.(types.CaptureFrame); ok && len(f.Slots) == 2 {
				println("[monitor] hum(c%RH):", int(f.Slots[0]), "temp(cC):", int(f.Slots[1]))
			}
		}
	}()

	println("[main] starting services …")
	go hal.Run(ctx, b.NewConnection("hal"), picoBuses{})
	go bridge.Start(ctx, b.NewConnection("bridge"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	println("[main] publishing embedded config …")
	cfgCtx := context.WithValue(ctx, config.CtxDeviceKey, "pico")
	config.NewConfigService().Start(cfgCtx, b.NewConnection("config"))

	for {
		time.Sleep(10 * time.Second)
	}
}

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		print(t.At(i))
	}
	println()
}
