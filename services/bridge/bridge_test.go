// bridge/bridge_test.go
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/types"
)

func TestBridge_ForwardsCaptureFrames(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	// Inject a UART dialler backed by a net.Pipe; keep the remote end.
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	remoteCh := make(chan io.ReadWriteCloser, 1)
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remoteCh <- rc
		return lc, nil
	}

	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))

	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")
	remote := <-remoteCh

	// Publish a capture frame locally and expect it on the wire as one JSON line.
	pub := b.NewConnection("hal_sim")
	pub.Publish(pub.NewMessage(
		bus.T("hal", "device", "dht12-0", "capture"),
		types.CaptureFrame{Device: "dht12-0", Slots: []int16{2345, 2650}, TS: 42},
		false,
	))

	line := readLine(t, remote, time.Second)
	var frame struct {
		Topic   []string `json:"topic"`
		Payload struct {
			Device string  `json:"device"`
			Slots  []int16 `json:"slots"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(line, &frame); err != nil {
		t.Fatalf("wire frame is not JSON: %v (%q)", err, line)
	}
	if frame.Payload.Device != "dht12-0" {
		t.Fatalf("wrong device on wire: %q", frame.Payload.Device)
	}
	if len(frame.Payload.Slots) != 2 || frame.Payload.Slots[0] != 2345 || frame.Payload.Slots[1] != 2650 {
		t.Fatalf("wrong slots on wire: %v", frame.Payload.Slots)
	}
	if len(frame.Topic) != 4 || frame.Topic[2] != "dht12-0" {
		t.Fatalf("wrong topic on wire: %v", frame.Topic)
	}

	// Close the remote to force link loss; expect degraded state.
	_ = remote.Close()
	degraded := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, degraded, "degraded", "link_lost_retrying")
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)

	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))

	errState := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")
}

func TestBackoffSeq_DoublesAndCaps(t *testing.T) {
	next := backoffSeq(100*time.Millisecond, 400*time.Millisecond)
	want := []time.Duration{100, 200, 400, 400}
	for i, w := range want {
		if got := next(); got != w*time.Millisecond {
			t.Fatalf("step %d: got %v, want %v", i, got, w*time.Millisecond)
		}
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func readLine(t *testing.T, r io.Reader, d time.Duration) []byte {
	t.Helper()
	type res struct {
		line []byte
		err  error
	}
	ch := make(chan res, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadBytes('\n')
		ch <- res{line, err}
	}()
	select {
	case v := <-ch:
		if v.err != nil {
			t.Fatalf("reading wire frame: %v", v.err)
		}
		return v.line
	case <-time.After(d):
		t.Fatalf("timeout waiting for wire frame")
		return nil
	}
}

func nextStatePayload(t *testing.T, sub *bus.Subscription, d time.Duration) map[string]any {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type: got %T, want map[string]any", m.Payload)
		}
		return p
	case <-timer.C:
		t.Fatalf("timeout waiting for bridge/state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, wantLevel, wantStatus string) {
	t.Helper()
	gotLevel, _ := payload["level"].(string)
	gotStatus, _ := payload["status"].(string)
	if gotLevel != wantLevel || gotStatus != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q (payload=%v)",
			gotLevel, gotStatus, wantLevel, wantStatus, payload)
	}
}
