// services/hal/capture.go
package hal

import (
	"context"
)

// captureResult is the fan-in record handed back to the service loop, which
// owns all bus publishing.
type captureResult struct {
	DevID string
	Slots []int16
	TsNs  int64
	Err   error // nil means Slots is a complete frame
}

// captureTarget resolves a trigger's device to its adaptor and the capture
// session's active channels. ok=false when the device is gone.
type captureTarget func(devID string) (a Adaptor, mask ChannelSet, ok bool)

// captureWorker runs capture cycles on its own goroutine so the settle
// delays inside the bus transaction never stall the service loop or a
// concurrent direct read.
type captureWorker struct {
	events  chan TriggerEvent
	sink    chan<- captureResult
	resolve captureTarget
}

func newCaptureWorker(queue int, sink chan<- captureResult, resolve captureTarget) *captureWorker {
	if queue <= 0 {
		queue = 8
	}
	return &captureWorker{
		events:  make(chan TriggerEvent, queue),
		sink:    sink,
		resolve: resolve,
	}
}

// Events is the trigger input; the poller publishes into it.
func (w *captureWorker) Events() chan TriggerEvent { return w.events }

func (w *captureWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.events:
				w.handle(ctx, ev)
			}
		}
	}()
}

// handle runs one capture cycle. Every path acknowledges the trigger,
// including abandoned cycles, so the trigger source is never starved.
func (w *captureWorker) handle(ctx context.Context, ev TriggerEvent) {
	defer ev.Done()

	a, mask, ok := w.resolve(ev.DevID)
	if !ok {
		return
	}

	slots, err := a.Capture(ctx, mask)
	if err != nil {
		// Abandon this cycle: nothing is pushed, the failure is recorded in
		// the device status and goes no further.
		w.emit(captureResult{DevID: ev.DevID, TsNs: ev.TsNs, Err: err})
		return
	}
	w.emit(captureResult{DevID: ev.DevID, Slots: slots, TsNs: ev.TsNs})
}

func (w *captureWorker) emit(r captureResult) {
	w.sink <- r
}
