package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	"liyu1981.xyz/proximity-tracker/pkg/identity"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
)

type PipelineOptions struct {
	Workers int
	// per worker
	QueueSize int
	// how often every device is re-evaluated for alerts; 0 disables
	EvaluateEvery time.Duration
	// cached radio records older than this are collected on each evaluation
	RecordStale time.Duration
}

type PipelineStats struct {
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pipeline moves sightings off the radio goroutine. Each ephemeral id always
// lands on the same worker, so sightings of one address are handled in order.
type Pipeline struct {
	tracker *Tracker
	opts    PipelineOptions
	queues  []chan radio.Sighting
	logger  *zap.Logger

	submitted atomic.Int64
	dropped   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(t *Tracker, opts PipelineOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	p := &Pipeline{
		tracker: t,
		opts:    opts,
		queues:  make([]chan radio.Sighting, opts.Workers),
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryPipeline),
		),
	}
	for i := range p.queues {
		p.queues[i] = make(chan radio.Sighting, opts.QueueSize)
	}
	return p
}

// Sink adapts Submit for radio.NewScheduler.
func (p *Pipeline) Sink() radio.Sink {
	return func(s radio.Sighting) { p.Submit(s) }
}

// Submit enqueues s without blocking. A full queue drops the sighting; the
// next advertisement from the same tracker will carry the same information.
func (p *Pipeline) Submit(s radio.Sighting) bool {
	p.submitted.Add(1)
	q := p.queues[common.Shard(s.EphemeralID, len(p.queues))]
	select {
	case q <- s:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Debug("Queue full, dropping sighting", zap.String("radio_id", s.EphemeralID))
		return false
	}
}

func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	for _, q := range p.queues {
		p.wg.Add(1)
		go p.work(ctx, q)
	}
	if p.opts.EvaluateEvery > 0 {
		p.wg.Add(1)
		go p.evaluate(ctx)
	}
	p.logger.Info("Pipeline started", zap.Int("workers", len(p.queues)))
}

// Stop cancels the workers and waits for them. Queued sightings are dropped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("Pipeline stopped", zap.Reflect("stats", p.Stats()))
}

func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pipeline) work(ctx context.Context, q <-chan radio.Sighting) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-q:
			if err := p.Handle(ctx, s); err != nil {
				p.failed.Add(1)
				p.logger.Warn("Sighting failed", zap.String("radio_id", s.EphemeralID), zap.Error(err))
			}
			p.processed.Add(1)
		}
	}
}

func (p *Pipeline) evaluate(ctx context.Context) {
	defer p.wg.Done()
	ticker := p.tracker.Clock.NewTicker(p.opts.EvaluateEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs one alert pass and collects stale radio records.
func (p *Pipeline) EvaluateOnce(ctx context.Context) {
	t := p.tracker
	if t.Alert != nil {
		created, err := t.Alert.EvaluateAll(ctx)
		if err != nil {
			p.logger.Warn("Evaluation pass had errors", zap.Error(err))
		}
		if len(created) > 0 {
			p.logger.Info("Evaluation pass raised notifications", zap.Int("count", len(created)))
		}
	}
	if rc := t.records(); rc != nil && p.opts.RecordStale > 0 {
		if n := rc.Collect(t.Clock.Now(), p.opts.RecordStale); n > 0 {
			p.logger.Debug("Collected stale records", zap.Int("count", n))
		}
	}
}

// Handle runs one sighting through resolve, record and evaluate.
func (p *Pipeline) Handle(ctx context.Context, s radio.Sighting) error {
	t := p.tracker
	if s.Time.IsZero() {
		s.Time = t.Clock.Now()
	}

	res, err := t.Identity.Resolve(ctx, s, s.Time)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.EphemeralID, err)
	}
	if res.Outcome == identity.Transient {
		return nil
	}
	if res.Outcome == identity.Rebound && res.PreviousRadioID != "" {
		if rc := t.records(); rc != nil {
			rc.Forget(res.PreviousRadioID)
		}
	}

	profile, _ := catalog.Lookup(res.DeviceType)
	rec, err := t.Detection.Record(ctx, res.DeviceID, detection.Sighting{
		Time:    s.Time,
		RSSI:    s.Advertisement.RSSI,
		Fix:     t.currentFix(ctx),
		Status:  profile.StatusOf(s.Advertisement),
		Payload: signaturePayload(profile, s.Advertisement),
	})
	if err != nil {
		return err
	}
	if rec.Event == nil || t.Alert == nil {
		return nil
	}

	if _, err := t.Alert.EvaluateDevice(ctx, res.DeviceID, s.Time); err != nil {
		return err
	}
	return nil
}

// signaturePayload is the hex of the bytes that identified the device type.
func signaturePayload(p catalog.Profile, adv catalog.Advertisement) string {
	if p.Signature.ServiceUUID != "" {
		if b, ok := adv.ServiceDataFor(p.Signature.ServiceUUID); ok {
			return catalog.HexEncode(b)
		}
	}
	if p.Signature.CompanyID != 0 {
		if b, ok := adv.ManufacturerData[p.Signature.CompanyID]; ok {
			return catalog.HexEncode(b)
		}
	}
	return ""
}
