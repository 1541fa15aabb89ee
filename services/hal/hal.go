// services/hal/hal.go
package hal

import (
	"context"
	"sync"

	"sensorcode-go/bus"
	"sensorcode-go/errcode"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
	"sensorcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the HAL service and blocks until ctx is cancelled. It listens
// for JSON config on {"config","hal"}, answers direct reads on
// hal/device/<id>/read, accepts control verbs on
// hal/device/<id>/control/<verb>, and pushes one capture frame per trigger
// firing to hal/device/<id>/capture.
func Run(ctx context.Context, conn *bus.Connection, buses I2CBusFactory) {
	s := &service{
		conn:    conn,
		buses:   buses,
		devices: map[string]*devEntry{},
		results: make(chan captureResult, 16),
	}
	s.worker = newCaptureWorker(16, s.results, s.resolveCapture)
	s.worker.Start(ctx)
	s.poller = NewPoller(s.worker.Events())
	go s.poller.Run(ctx)
	s.loop(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type devEntry struct {
	adaptor  Adaptor
	busID    string
	fullMask ChannelSet
	scanMask ChannelSet

	captures uint32
	skipped  uint32
	lastErr  string
}

type service struct {
	conn  *bus.Connection
	buses I2CBusFactory

	mu      sync.RWMutex // guards devices and per-entry mutable fields
	devices map[string]*devEntry

	poller  *Poller
	worker  *captureWorker
	results chan captureResult
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "hal"))
	readSub := s.conn.Subscribe(bus.T("hal", "device", "+", "read"))
	ctrlSub := s.conn.Subscribe(bus.T("hal", "device", "+", "control", "+"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(readSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config")

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled")
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("idle", "bad_config")
				continue
			}
			s.applyConfig(ctx, cfg)

		case msg := <-readSub.Channel():
			// Direct reads block on the sensor's settle delays; service them
			// off-loop so captures and controls keep flowing.
			go s.handleRead(ctx, msg)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case res := <-s.results:
			s.handleResult(res)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg types.HALConfig) {
	// Full replace: stop schedules for everything we had.
	s.mu.Lock()
	for id := range s.devices {
		s.poller.Stop(id)
	}
	s.devices = map[string]*devEntry{}
	s.mu.Unlock()

	for _, d := range cfg.Devices {
		b, ok := findBuilder(d.Type)
		if !ok {
			s.publishDeviceStatus(d.ID, &devEntry{lastErr: string(errcode.UnknownDevice)}, false)
			continue
		}
		in := BuildInput{
			Ctx:        ctx,
			Buses:      s.buses,
			DeviceID:   d.ID,
			Type:       d.Type,
			ParamsJSON: d.Params,
		}
		in.BusRef.Type = d.BusRef.Type
		in.BusRef.ID = d.BusRef.ID

		out, err := b.Build(in)
		if err != nil || out.Adaptor == nil {
			s.publishDeviceStatus(d.ID, &devEntry{lastErr: string(errcode.Of(err))}, false)
			continue
		}

		channels := out.Adaptor.Channels()
		entry := &devEntry{
			adaptor:  out.Adaptor,
			busID:    out.BusID,
			fullMask: FullSet(len(channels)),
		}
		entry.scanMask = entry.fullMask
		if out.ScanMask != 0 && mathx.Between(out.ScanMask, 1, entry.fullMask) {
			entry.scanMask = out.ScanMask
		}

		s.mu.Lock()
		s.devices[d.ID] = entry
		s.mu.Unlock()

		s.conn.Publish(s.conn.NewMessage(
			bus.T("hal", "device", d.ID, "channels"),
			types.ChannelsDoc{Device: d.ID, Channels: channels, Timestamp: true},
			true,
		))
		s.publishDeviceStatus(d.ID, entry, true)

		if out.CaptureEvery > 0 {
			s.poller.Upsert(d.ID, out.CaptureEvery, out.Jitter)
		}
	}

	s.publishState("ready", "configured")
}

// -----------------------------------------------------------------------------
// Direct read plane
// -----------------------------------------------------------------------------

func (s *service) handleRead(ctx context.Context, msg *bus.Message) {
	devID := msg.Topic.At(2)

	var req types.ReadRequest
	if err := DecodeJSON(msg.Payload, &req); err != nil {
		s.conn.Reply(msg, types.ReadReply{Error: string(errcode.InvalidParams)}, false)
		return
	}

	s.mu.RLock()
	entry, ok := s.devices[devID]
	s.mu.RUnlock()
	if !ok {
		s.conn.Reply(msg, types.ReadReply{Error: string(errcode.UnknownDevice)}, false)
		return
	}

	sel, ok := SelectorFromString(req.Info)
	if !ok {
		s.conn.Reply(msg, types.ReadReply{Error: string(errcode.UnsupportedSelect)}, false)
		return
	}

	v, err := entry.adaptor.ReadRaw(ctx, req.Channel, sel)
	if err != nil {
		s.conn.Reply(msg, types.ReadReply{Error: string(errcode.Of(err))}, false)
		return
	}
	s.conn.Reply(msg, types.ReadReply{OK: true, Value: v}, false)
}

// -----------------------------------------------------------------------------
// Control plane
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	devID := msg.Topic.At(2)
	verb := msg.Topic.At(4)

	s.mu.RLock()
	entry, ok := s.devices[devID]
	s.mu.RUnlock()
	if !ok {
		s.conn.Reply(msg, types.OKReply{Error: string(errcode.UnknownDevice)}, false)
		return
	}

	switch verb {
	case "capture_now":
		if !s.poller.FireNow(devID) {
			s.conn.Reply(msg, types.OKReply{Error: string(errcode.NoMem)}, false)
			return
		}
		s.conn.Reply(msg, types.OKReply{OK: true}, false)

	case "set_scan_mask":
		var ctl types.ScanMaskControl
		if err := DecodeJSON(msg.Payload, &ctl); err != nil {
			s.conn.Reply(msg, types.OKReply{Error: string(errcode.InvalidParams)}, false)
			return
		}
		mask := ChannelSet(ctl.Mask)
		// fullMask is 2^n-1, so subset-of-full is exactly the range check.
		if !mathx.Between(mask, 1, entry.fullMask) {
			s.conn.Reply(msg, types.OKReply{Error: string(errcode.InvalidScanMask)}, false)
			return
		}
		s.mu.Lock()
		entry.scanMask = mask
		s.mu.Unlock()
		s.conn.Reply(msg, types.OKReply{OK: true}, false)

	default:
		s.conn.Reply(msg, types.OKReply{Error: string(errcode.Unsupported)}, false)
	}
}

// -----------------------------------------------------------------------------
// Capture results
// -----------------------------------------------------------------------------

func (s *service) resolveCapture(devID string) (Adaptor, ChannelSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.devices[devID]
	if !ok {
		return nil, 0, false
	}
	return entry.adaptor, entry.scanMask, true
}

func (s *service) handleResult(res captureResult) {
	s.mu.Lock()
	entry, ok := s.devices[res.DevID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if res.Err != nil {
		entry.skipped++
		entry.lastErr = string(errcode.Of(res.Err))
	} else {
		entry.captures++
		entry.lastErr = ""
	}
	s.mu.Unlock()

	if res.Err == nil {
		s.conn.Publish(s.conn.NewMessage(
			bus.T("hal", "device", res.DevID, "capture"),
			types.CaptureFrame{Device: res.DevID, Slots: res.Slots, TS: res.TsNs},
			false,
		))
	}
	s.publishDeviceStatus(res.DevID, entry, true)
}

// -----------------------------------------------------------------------------
// Status plane
// -----------------------------------------------------------------------------

func (s *service) publishState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(
		bus.T("hal", "state"),
		types.HALState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func (s *service) publishDeviceStatus(devID string, entry *devEntry, up bool) {
	link := "down"
	if up {
		link = "up"
	}
	s.mu.RLock()
	doc := types.DeviceStatus{
		Link:     link,
		TS:       timex.NowNs(),
		Captures: entry.captures,
		Skipped:  entry.skipped,
		Error:    entry.lastErr,
	}
	s.mu.RUnlock()
	s.conn.Publish(s.conn.NewMessage(bus.T("hal", "device", devID, "status"), doc, true))
}
