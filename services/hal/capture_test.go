// services/hal/capture_test.go
package hal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

// stubAdaptor answers captures from a fixed slot table, or fails.
type stubAdaptor struct {
	id    string
	slots []int16
	err   error
	calls atomic.Int32
}

func (s *stubAdaptor) ID() string { return s.id }

func (s *stubAdaptor) Channels() []types.ChannelDesc { return nil }

func (s *stubAdaptor) ReadRaw(ctx context.Context, scanIndex int, sel InfoSelector) (int32, error) {
	return 0, errcode.Unsupported
}
func (s *stubAdaptor) Capture(ctx context.Context, mask ChannelSet) ([]int16, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]int16, 0, mask.Count())
	for b := 0; b < 8; b++ {
		if mask.Has(b) && b < len(s.slots) {
			out = append(out, s.slots[b])
		}
	}
	return out, nil
}

func startWorker(t *testing.T, resolve captureTarget) (*captureWorker, chan captureResult) {
	t.Helper()
	sink := make(chan captureResult, 4)
	w := newCaptureWorker(4, sink, resolve)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w.Start(ctx)
	return w, sink
}

func sendTrigger(t *testing.T, w *captureWorker, devID string, acked *atomic.Int32) {
	t.Helper()
	w.Events() <- TriggerEvent{
		DevID: devID,
		TsNs:  time.Now().UnixNano(),
		Done:  func() { acked.Add(1) },
	}
}

func waitAck(t *testing.T, acked *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for acked.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("trigger not acknowledged (%d/%d)", acked.Load(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCaptureWorker_SuccessEmitsFrame(t *testing.T) {
	ad := &stubAdaptor{id: "dev0", slots: []int16{2345, 2650}}
	w, sink := startWorker(t, func(devID string) (Adaptor, ChannelSet, bool) {
		return ad, 0b11, true
	})

	var acked atomic.Int32
	sendTrigger(t, w, "dev0", &acked)

	res := <-sink
	if res.Err != nil {
		t.Fatalf("unexpected capture error: %v", res.Err)
	}
	if len(res.Slots) != 2 || res.Slots[0] != 2345 || res.Slots[1] != 2650 {
		t.Fatalf("slots = %v, want [2345 2650]", res.Slots)
	}
	waitAck(t, &acked, 1)
}

func TestCaptureWorker_ErrorStillAcks(t *testing.T) {
	ad := &stubAdaptor{id: "dev0", err: errcode.ChecksumMismatch}
	w, sink := startWorker(t, func(devID string) (Adaptor, ChannelSet, bool) {
		return ad, 0b11, true
	})

	var acked atomic.Int32
	sendTrigger(t, w, "dev0", &acked)

	res := <-sink
	if errcode.Of(res.Err) != errcode.ChecksumMismatch {
		t.Fatalf("result error = %v, want checksum_mismatch", res.Err)
	}
	if res.Slots != nil {
		t.Fatalf("abandoned cycle must not carry slots, got %v", res.Slots)
	}
	waitAck(t, &acked, 1)
}

func TestCaptureWorker_UnknownDeviceAcksSilently(t *testing.T) {
	w, sink := startWorker(t, func(devID string) (Adaptor, ChannelSet, bool) {
		return nil, 0, false
	})

	var acked atomic.Int32
	sendTrigger(t, w, "ghost", &acked)
	waitAck(t, &acked, 1)

	select {
	case res := <-sink:
		t.Fatalf("unknown device must not emit a result, got %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCaptureWorker_MaskReachesAdaptor(t *testing.T) {
	ad := &stubAdaptor{id: "dev0", slots: []int16{10, 20}}
	w, sink := startWorker(t, func(devID string) (Adaptor, ChannelSet, bool) {
		return ad, 0b10, true
	})

	var acked atomic.Int32
	sendTrigger(t, w, "dev0", &acked)

	res := <-sink
	if len(res.Slots) != 1 || res.Slots[0] != 20 {
		t.Fatalf("slots = %v, want [20]", res.Slots)
	}
	waitAck(t, &acked, 1)
}
