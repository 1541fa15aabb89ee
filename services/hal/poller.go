// services/hal/poller.go
package hal

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"
)

// TriggerEvent asks the capture worker to run one capture cycle for a
// device. Done MUST be called exactly once on every handling path — success,
// abandoned capture, unknown device — or the trigger is never re-armed.
type TriggerEvent struct {
	DevID string
	TsNs  int64  // trigger timestamp, stamped at firing
	Done  func() // acknowledge; re-arms the periodic schedule
}

type trigItem struct {
	devID    string
	due      int64
	every    time.Duration
	jitter   time.Duration
	inflight bool // fired, awaiting Done
	index    int
}

type trigHeap []*trigItem

func (h trigHeap) Len() int           { return len(h) }
func (h trigHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h trigHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *trigHeap) Push(x any)        { it := x.(*trigItem); it.index = len(*h); *h = append(*h, it) }
func (h *trigHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}
func (h trigHeap) Top() *trigItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Poller is the trigger source for periodic captures. Unlike a free-running
// ticker it re-arms a device's schedule only when the previous firing is
// acknowledged, so a slow capture path can never pile up triggers.
type Poller struct {
	mu    sync.Mutex
	wake  chan struct{}
	items map[string]*trigItem
	h     trigHeap
	rand  *rand.Rand
	out   chan<- TriggerEvent
}

func NewPoller(out chan<- TriggerEvent) *Poller {
	return &Poller{
		wake:  make(chan struct{}, 1),
		items: make(map[string]*trigItem),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Upsert adds or updates a device's periodic trigger.
// The first firing occurs after interval plus a random jitter in [0..jitter];
// jitter is also applied on each re-arm.
func (p *Poller) Upsert(devID string, interval, jitter time.Duration) {
	if interval <= 0 || devID == "" {
		return
	}
	p.mu.Lock()
	if jitter < 0 {
		jitter = 0
	}
	nextDue := time.Now().Add(p.jittered(interval, jitter)).UnixNano()
	if it := p.items[devID]; it == nil {
		it2 := &trigItem{
			devID:  devID,
			due:    nextDue,
			every:  interval,
			jitter: jitter,
			index:  -1,
		}
		p.items[devID] = it2
		heap.Push(&p.h, it2)
	} else {
		it.every = interval
		it.jitter = jitter
		if !it.inflight {
			it.due = nextDue
			heap.Fix(&p.h, it.index)
		}
	}
	p.mu.Unlock()
	p.wakeup()
}

// Stop removes a device's schedule. An in-flight firing's Done becomes a
// no-op.
func (p *Poller) Stop(devID string) {
	p.mu.Lock()
	if it := p.items[devID]; it != nil {
		if !it.inflight {
			heap.Remove(&p.h, it.index)
		}
		delete(p.items, devID)
	}
	p.mu.Unlock()
	p.wakeup()
}

// FireNow emits one immediate trigger for the device, independent of any
// periodic schedule. Its Done only acknowledges this firing.
func (p *Poller) FireNow(devID string) bool {
	ev := TriggerEvent{DevID: devID, TsNs: time.Now().UnixNano(), Done: func() {}}
	select {
	case p.out <- ev:
		return true
	default:
		return false
	}
}

// ack re-arms a fired schedule.
func (p *Poller) ack(devID string) {
	p.mu.Lock()
	if it := p.items[devID]; it != nil && it.inflight {
		it.inflight = false
		it.due = time.Now().Add(p.jittered(it.every, it.jitter)).UnixNano()
		heap.Push(&p.h, it)
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := p.nextWait()
		if wait < 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}
		if wait == 0 {
			var fire *trigItem

			p.mu.Lock()
			now := time.Now().UnixNano()
			top := p.h.Top()
			if top != nil && top.due <= now {
				fire = heap.Pop(&p.h).(*trigItem)
				fire.inflight = true
			}
			p.mu.Unlock()

			if fire != nil {
				devID := fire.devID
				var once sync.Once
				ev := TriggerEvent{
					DevID: devID,
					TsNs:  time.Now().UnixNano(),
					Done:  func() { once.Do(func() { p.ack(devID) }) },
				}
				select {
				case p.out <- ev:
				default:
					// Consumer is saturated; skip this firing but keep the
					// schedule alive.
					ev.Done()
				}
			}
			continue
		}

		resetTimer(timer, time.Duration(wait))
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			if !timer.Stop() {
				drainTimer(timer)
			}
		case <-timer.C:
		}
	}
}

func (p *Poller) nextWait() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	top := p.h.Top()
	if top == nil {
		return -1
	}
	now := time.Now().UnixNano()
	if top.due <= now {
		return 0
	}
	return top.due - now
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	extra := time.Duration(p.rand.Int63n(int64(jitter) + 1)) // [0..jitter]
	return interval + extra
}
