package radio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
)

type SchedulerOptions struct {
	// Background sweep listens for Window out of every Interval. A Window of
	// at least Interval listens without pause.
	Window   time.Duration
	Interval time.Duration
	// RSSI samples kept per address for smoothing.
	SmoothingSamples int
}

// Scheduler shares one radio session between the background duty cycle and
// an optional fast scan. The session runs while either needs it and the
// hardware is ready; when the hardware is not ready nothing is delivered and
// no error is raised. Every state change re-evaluates the session, so a
// radio that comes back is picked up on the next window or HardwareChanged.
type Scheduler struct {
	radio Radio
	clock clock.Clock
	opts  SchedulerOptions
	cache *RecordCache
	sink  Sink

	startedAt time.Time
	logger    *zap.Logger

	mu         sync.Mutex
	bgStop     chan struct{}
	bgDone     chan struct{}
	windowOpen bool
	fast       *Target
	session    *scanSession
	// cancelled session whose radio.Scan has not returned yet; no new session
	// opens until it has
	draining *scanSession
}

type scanSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Status struct {
	HardwareReady   bool      `json:"hardware_ready"`
	Background      bool      `json:"background"`
	WindowOpen      bool      `json:"window_open"`
	FastScan        *Target   `json:"fast_scan,omitempty"`
	SessionActive   bool      `json:"session_active"`
	StartedAt       time.Time `json:"started_at"`
	CachedAddresses int       `json:"cached_addresses"`
}

func NewScheduler(r Radio, c clock.Clock, opts SchedulerOptions, sink Sink) *Scheduler {
	if opts.SmoothingSamples == 0 {
		opts.SmoothingSamples = 5
	}
	return &Scheduler{
		radio:     r,
		clock:     c,
		opts:      opts,
		cache:     NewRecordCache(opts.SmoothingSamples),
		sink:      sink,
		startedAt: c.Now(),
		logger: common.GetLoggerWith(
			common.LoggerNameRadio,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryScan),
		),
	}
}

func (s *Scheduler) Records() *RecordCache {
	return s.cache
}

// StartedAt is when the scheduler was built; readers use it to tell "nothing
// found yet" from "still searching".
func (s *Scheduler) StartedAt() time.Time {
	return s.startedAt
}

func (s *Scheduler) StartBackgroundScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bgStop != nil {
		return
	}
	s.bgStop = make(chan struct{})
	s.bgDone = make(chan struct{})
	go s.dutyCycle(s.bgStop, s.bgDone)
	s.logger.Info("Background scan started",
		zap.Duration("window", s.opts.Window), zap.Duration("interval", s.opts.Interval))
}

func (s *Scheduler) StopBackgroundScan() {
	s.mu.Lock()
	stop, done := s.bgStop, s.bgDone
	s.bgStop, s.bgDone = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	s.mu.Lock()
	s.windowOpen = false
	s.reconcileLocked()
	s.mu.Unlock()
	s.logger.Info("Background scan stopped")
}

// StartFastScan replaces any running fast scan with one for target.
func (s *Scheduler) StartFastScan(target Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := target
	s.fast = &t
	s.reconcileLocked()
	s.logger.Info("Fast scan started", zap.Any("target", target))
}

// StopFastScan drops the fast filter at once. The background sweep is left
// as it was.
func (s *Scheduler) StopFastScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fast == nil {
		return
	}
	s.fast = nil
	s.reconcileLocked()
	s.logger.Info("Fast scan stopped")
}

// HardwareChanged is called whenever the radio's power or permission state
// may have changed.
func (s *Scheduler) HardwareChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		HardwareReady: HardwareReady(s.radio),
		Background:    s.bgStop != nil,
		WindowOpen:    s.windowOpen,
		SessionActive: s.session != nil,
		StartedAt:     s.startedAt,
	}
	if s.fast != nil {
		t := *s.fast
		st.FastScan = &t
	}
	st.CachedAddresses = s.cache.Len()
	return st
}

// Close stops everything and waits for the radio session to end.
func (s *Scheduler) Close() {
	s.StopBackgroundScan()

	s.mu.Lock()
	s.fast = nil
	sess, draining := s.session, s.draining
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.cancel()
		<-sess.done
	}
	if draining != nil {
		<-draining.done
	}
}

func (s *Scheduler) dutyCycle(stop, done chan struct{}) {
	defer close(done)

	if s.opts.Window >= s.opts.Interval {
		// no quiet part left: listen until stopped
		s.setWindow(true)
		<-stop
		return
	}

	timer := s.clock.NewTimer(s.opts.Window)
	defer timer.Stop()

	open := true
	s.setWindow(open)
	for {
		select {
		case <-stop:
			return
		case <-timer.C():
		}
		open = !open
		// re-arm before the window change becomes visible
		if open {
			timer.Reset(s.opts.Window)
		} else {
			timer.Reset(s.opts.Interval - s.opts.Window)
		}
		s.setWindow(open)
	}
}

func (s *Scheduler) setWindow(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowOpen = open
	s.reconcileLocked()
}

func (s *Scheduler) reconcileLocked() {
	want := (s.windowOpen || s.fast != nil) && HardwareReady(s.radio)

	switch {
	case want && s.session == nil && s.draining == nil:
		ctx, cancel := context.WithCancel(context.Background())
		sess := &scanSession{cancel: cancel, done: make(chan struct{})}
		s.session = sess
		go s.run(ctx, sess)
	case !want && s.session != nil:
		s.session.cancel()
		s.draining = s.session
		s.session = nil
	}
}

func (s *Scheduler) run(ctx context.Context, sess *scanSession) {
	defer close(sess.done)

	err := s.radio.Scan(ctx, s.onAdvertisement)

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	if s.draining == sess {
		s.draining = nil
		// pick up a start that came in while the radio was letting go
		s.reconcileLocked()
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		// the next window or HardwareChanged starts a new session
		s.logger.Warn("Radio session ended", zap.Error(err))
	}
}

func (s *Scheduler) onAdvertisement(adv catalog.Advertisement) {
	if adv.Address == "" {
		return
	}

	s.mu.Lock()
	windowOpen := s.windowOpen
	var fast Target
	hasFast := s.fast != nil
	if hasFast {
		fast = *s.fast
	}
	s.mu.Unlock()

	var mode Mode
	switch {
	case hasFast && fast.Matches(adv):
		mode = ModeFast
	case windowOpen:
		mode = ModeBackground
	default:
		return
	}

	sighting := Sighting{
		EphemeralID:   adv.Address,
		Advertisement: adv,
		Time:          s.clock.Now(),
		Mode:          mode,
	}
	s.cache.Update(sighting)
	if s.sink != nil {
		s.sink(sighting)
	}
}
