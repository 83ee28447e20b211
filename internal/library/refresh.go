package library

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultDebounce        = 300 * time.Millisecond
	DefaultRefreshInterval = 5 * time.Minute
)

// Debouncer runs only the last of a burst of calls, once the burst has been
// quiet for the delay.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, replacing anything still pending.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop drops the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Refresher reloads a State on an interval until its context ends. A slow
// load may overlap the next tick; loads are read-only.
type Refresher struct {
	state    *State
	source   Source
	interval time.Duration
	// OnLoad, when set, is called after every load with its result.
	OnLoad func(error)
}

func NewRefresher(state *State, source Source, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{state: state, source: source, interval: interval}
}

// Start runs the refresh loop in the background.
func (r *Refresher) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	err := r.state.Load(ctx, r.source)
	if r.OnLoad != nil {
		r.OnLoad(err)
	}
}
