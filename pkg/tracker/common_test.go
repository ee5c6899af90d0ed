package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"liyu1981.xyz/proximity-tracker/pkg/alert"
	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	"liyu1981.xyz/proximity-tracker/pkg/identity"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
	"liyu1981.xyz/proximity-tracker/pkg/tracker/mocks"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// feedRadio delivers advertisements pushed with emit while a session is open.
type feedRadio struct {
	mu    sync.Mutex
	found func(catalog.Advertisement)
	open  chan struct{}
}

func newFeedRadio() *feedRadio {
	return &feedRadio{open: make(chan struct{}, 1)}
}

func (r *feedRadio) PoweredOn() bool  { return true }
func (r *feedRadio) Authorized() bool { return true }

func (r *feedRadio) Scan(ctx context.Context, found func(catalog.Advertisement)) error {
	r.mu.Lock()
	r.found = found
	r.mu.Unlock()
	select {
	case r.open <- struct{}{}:
	default:
	}
	<-ctx.Done()
	r.mu.Lock()
	r.found = nil
	r.mu.Unlock()
	return nil
}

func (r *feedRadio) emit(adv catalog.Advertisement) bool {
	r.mu.Lock()
	found := r.found
	r.mu.Unlock()
	if found == nil {
		return false
	}
	found(adv)
	return true
}

type testParts struct {
	clock    *clock.Mock
	radio    *feedRadio
	sched    *radio.Scheduler
	latest   *location.Latest
	pipeline *Pipeline
}

var testAlertConfig = alert.Config{
	MinDistinctLocations: 3,
	MinElapsed:           30 * time.Minute,
	DedupWindow:          8 * time.Hour,
	Lookback:             6 * time.Hour,
	ObservationPeriod:    time.Hour,
}

func GetMockTrackerWithMemorySqliteDialector(t *testing.T, useMockIdentity, useMockDetection, useMockAlert bool) (
	*gomock.Controller,
	*Tracker,
	*testParts,
	*mocks.MockIIdentity,
	*mocks.MockIDetection,
	*mocks.MockIAlert,
) {
	t.Helper()
	ctrl := gomock.NewController(t)

	mockIdentity := mocks.NewMockIIdentity(ctrl)
	mockDetection := mocks.NewMockIDetection(ctrl)
	mockAlert := mocks.NewMockIAlert(ctrl)

	dbInstance, err := db.Open(db.UseMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })
	writer := db.NewWriter(dbInstance)

	mc := clock.NewMock(t0)
	latest := location.NewLatest(mc, 5*time.Minute)
	throttle := NewRateLimiterStore(1000, 1000)

	trackerInstance := &Tracker{
		Db:               dbInstance,
		Writer:           writer,
		Clock:            mc,
		Location:         latest,
		Timeouts:         reachability.Timeouts{StillNearby: time.Minute, PrecisionFinding: 5 * time.Second},
		ManualScanBuffer: time.Minute,
		Throttle:         throttle,
	}

	var identityService IIdentity = identity.NewResolver(dbInstance, writer, identity.Policy{
		RenewalGrace: 20 * time.Minute,
		ActiveWindow: 30 * time.Second,
	})
	if useMockIdentity {
		identityService = mockIdentity
	}

	recorder := detection.NewRecorder(dbInstance, writer, mc, detection.Options{
		MergeRadius:        20,
		BackgroundScanning: true,
		Throttle:           throttle,
	})
	var detectionService IDetection = recorder
	if useMockDetection {
		detectionService = mockDetection
	}

	heuristic, err := alert.New(dbInstance, writer, mc, testAlertConfig, alert.Options{
		Background:  recorder,
		StillNearby: time.Minute,
	})
	require.NoError(t, err)
	var alertService IAlert = heuristic
	if useMockAlert {
		alertService = mockAlert
	}

	pipeline := NewPipeline(trackerInstance, PipelineOptions{Workers: 2, QueueSize: 64, RecordStale: 2 * time.Minute})
	fr := newFeedRadio()
	sched := radio.NewScheduler(fr, mc, radio.SchedulerOptions{Window: 10 * time.Second, Interval: time.Minute}, pipeline.Sink())
	t.Cleanup(sched.Close)
	t.Cleanup(pipeline.Stop)

	trackerInstance.WithServices(ServiceOpts{
		Identity:  identityService,
		Detection: detectionService,
		Alert:     alertService,
		Scanner:   sched,
	})

	parts := &testParts{clock: mc, radio: fr, sched: sched, latest: latest, pipeline: pipeline}
	return ctrl, trackerInstance, parts, mockIdentity, mockDetection, mockAlert
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

func tileAdv(addr string, rssi int) catalog.Advertisement {
	return catalog.Advertisement{Address: addr, RSSI: rssi, ServiceData: map[string][]byte{"FEED": {0x02, 0x00}}}
}

func airTagAdv(addr string, rssi int) catalog.Advertisement {
	return catalog.Advertisement{
		Address:          addr,
		RSSI:             rssi,
		ManufacturerData: map[uint16][]byte{0x004C: {0x12, 0x19, 0x10, 0x00}},
	}
}
