package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "liyu1981.xyz/proximity-tracker/pkg/testing"

	"liyu1981.xyz/proximity-tracker/pkg/alert"
	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	"liyu1981.xyz/proximity-tracker/pkg/identity"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) *RestfulServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbInstance, err := db.Open(db.UseMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })
	writer := db.NewWriter(dbInstance)
	mc := clock.NewMock(now)
	latest := location.NewLatest(mc, 5*time.Minute)

	recorder := detection.NewRecorder(dbInstance, writer, mc, detection.Options{MergeRadius: 20, BackgroundScanning: true})
	heuristic, err := alert.New(dbInstance, writer, mc, alert.Config{
		MinDistinctLocations: 3,
		MinElapsed:           30 * time.Minute,
		DedupWindow:          8 * time.Hour,
		Lookback:             6 * time.Hour,
		ObservationPeriod:    time.Hour,
	}, alert.Options{Background: recorder, StillNearby: time.Minute})
	require.NoError(t, err)

	// no radio: the scheduler keeps state but never opens a session
	sched := radio.NewScheduler(nil, mc, radio.SchedulerOptions{Window: 10 * time.Second, Interval: time.Minute}, nil)
	t.Cleanup(sched.Close)

	tr := (&tracker.Tracker{
		Db:               dbInstance,
		Writer:           writer,
		Clock:            mc,
		Location:         latest,
		Timeouts:         reachability.Timeouts{StillNearby: time.Minute, PrecisionFinding: 5 * time.Second},
		ManualScanBuffer: time.Minute,
	}).WithServices(tracker.ServiceOpts{
		Identity:  identity.NewResolver(dbInstance, writer, identity.Policy{RenewalGrace: 20 * time.Minute, ActiveWindow: 30 * time.Second}),
		Detection: recorder,
		Alert:     heuristic,
		Scanner:   sched,
	})

	rs := &RestfulServer{
		Server:  gin.New(),
		Tracker: tr,
		Latest:  latest,
		// default we use no limiter, if need, later assign it rs.RateLimiterStore = tracker.NewRateLimiterStore(...)
	}
	rs.Setup()
	return rs
}

func seed(t *testing.T, rs *RestfulServer, id string, typ catalog.DeviceType, radioID string) {
	t.Helper()
	seen := now.Add(-10 * time.Second)
	require.NoError(t, rs.Tracker.Db.Conn.Create(&models.TrackedDevice{
		ID: id, DeviceType: typ, FirstSeen: &seen, LastSeen: &seen, CurrentRadioID: &radioID,
	}).Error)
}

func do(rs *RestfulServer, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	rs := setupTestServer(t)

	w := do(rs, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListAndGetDevices(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")
	seed(t, rs, "thing", catalog.TypeUnknown, "r2")

	w := do(rs, "GET", "/devices?scope=recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []tracker.DeviceSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "tile-1", list[0].Device.ID)
	assert.True(t, list[0].Reachable)

	w = do(rs, "GET", "/devices?scope=history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(rs, "GET", "/devices?scope=forever", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(rs, "GET", "/devices/tile-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary tracker.DeviceSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "Tile", summary.Name)

	w = do(rs, "GET", "/devices/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDevicesBySafety(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")
	seed(t, rs, "tile-2", catalog.TypeTile, "r2")
	require.NoError(t, rs.Tracker.Db.Conn.Model(&models.TrackedDevice{}).
		Where("id = ?", "tile-2").Update("owned", true).Error)

	ids := func(path string) []string {
		w := do(rs, "GET", path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var list []tracker.DeviceSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		var out []string
		for _, d := range list {
			out = append(out, d.Device.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"tile-1", "tile-2"}, ids("/devices"))
	assert.Equal(t, []string{"tile-1"}, ids("/devices?safe=false"))
	assert.Equal(t, []string{"tile-2"}, ids("/devices?scope=recent&safe=true"))
	assert.Equal(t, http.StatusBadRequest, do(rs, "GET", "/devices?safe=maybe", nil).Code)
}

func TestIgnoreAndOwned(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")
	seed(t, rs, "thing", catalog.TypeUnknown, "r2")

	assert.Equal(t, http.StatusOK, do(rs, "POST", "/devices/tile-1/ignore", gin.H{"ignore": true}).Code)
	assert.Equal(t, http.StatusOK, do(rs, "POST", "/devices/tile-1/owned", gin.H{"owned": true}).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/devices/thing/ignore", gin.H{"ignore": true}).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "POST", "/devices/missing/ignore", gin.H{"ignore": true}).Code)

	var dev models.TrackedDevice
	require.NoError(t, rs.Tracker.Db.Conn.First(&dev, "id = ?", "tile-1").Error)
	assert.True(t, dev.Ignore)
	assert.True(t, dev.Owned)
}

func TestPrecisionFindingEndpoints(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")

	w := do(rs, "POST", "/devices/tile-1/precision", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service_uuid":"FEED"}`, w.Body.String())

	w = do(rs, "GET", "/hardware", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hw struct {
		Radio radio.Status `json:"radio"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hw))
	require.NotNil(t, hw.Radio.FastScan)
	assert.False(t, hw.Radio.HardwareReady)

	assert.Equal(t, http.StatusNoContent, do(rs, "DELETE", "/scan/precision", nil).Code)
	assert.Nil(t, rs.Tracker.Hardware().FastScan)

	assert.Equal(t, http.StatusNotFound, do(rs, "POST", "/devices/missing/precision", nil).Code)
}

func TestDeviceTypeIgnore(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	assert.Equal(t, http.StatusOK, do(rs, "POST", "/device-types/tile/ignore", gin.H{"ignore": true}).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/device-types/unknown/ignore", gin.H{"ignore": true}).Code)

	w := do(rs, "GET", "/device-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"device_type":"tile","ignore":true}]`, w.Body.String())
}

func TestObserveEndpoint(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")

	w := do(rs, "POST", "/devices/tile-1/observe", gin.H{"observe": true})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ObservingStart *time.Time `json:"observing_start"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ObservingStart)
	assert.True(t, resp.ObservingStart.Equal(now))

	w = do(rs, "POST", "/devices/tile-1/observe", gin.H{"observe": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"observing_start":null}`, w.Body.String())

	// background scanning off refuses new observations
	w = do(rs, "POST", "/scan/background", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/devices/tile-1/observe", gin.H{"observe": true}).Code)
}

func TestNotificationsAndFalseAlarm(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")
	n := models.TrackerNotification{Time: now, DeviceID: "tile-1", Reason: models.ReasonTracking}
	require.NoError(t, rs.Tracker.Db.Conn.Create(&n).Error)

	w := do(rs, "POST", "/notifications/1/false-alarm", gin.H{"false_alarm": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(rs, "GET", "/devices/tile-1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.TrackerNotification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].FalseAlarm)

	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/notifications/abc/false-alarm", gin.H{"false_alarm": true}).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "POST", "/notifications/99/false-alarm", gin.H{"false_alarm": true}).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/devices/missing/notifications", nil).Code)
}

func TestLocationsEndpoint(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")

	w := do(rs, "GET", "/devices/tile-1/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	loc := models.Location{Latitude: 48.1, Longitude: 11.5, Accuracy: 10, RecordedAt: now.Add(-30 * time.Minute)}
	require.NoError(t, rs.Tracker.Db.Conn.Create(&loc).Error)
	require.NoError(t, rs.Tracker.Db.Conn.Create(&models.DetectionEvent{
		Time: now.Add(-30 * time.Minute), DeviceID: "tile-1", LocationID: &loc.ID, RSSI: -60,
	}).Error)

	for _, since := range []string{"2026-03-01T07:15:00Z", "2026-03-01T08:15:00%2B01:00", "2026-03-01T02:15:00-05:00"} {
		w = do(rs, "GET", "/devices/tile-1/locations?since="+since, nil)
		require.Equal(t, http.StatusOK, w.Code, since)
		var clusters []models.ClusteredLocation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clusters))
		assert.Len(t, clusters, 1, since)
	}
	w = do(rs, "GET", "/devices/tile-1/locations?since=2026-03-01T08:45:00%2B01:00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(rs, "GET", "/devices/tile-1/locations?since=yesterday", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/devices/missing/locations", nil).Code)
}

func TestPostLocation(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	w := do(rs, "POST", "/location", gin.H{"latitude": 48.137, "longitude": 11.575, "accuracy": 12.5})
	require.Equal(t, http.StatusOK, w.Code)

	fix, ok := rs.Latest.Current(t.Context())
	require.True(t, ok)
	assert.InDelta(t, 48.137, fix.Latitude, 1e-9)
	assert.True(t, fix.Time.Equal(now))

	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/location", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/location", gin.H{"latitude": 123.0, "longitude": 11.5}).Code)
}

func TestDeleteDevice(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")

	assert.Equal(t, http.StatusNoContent, do(rs, "DELETE", "/devices/tile-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "DELETE", "/devices/tile-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/devices/tile-1", nil).Code)
}

func TestDeviceLimiter(t *testing.T) {
	common.SetTestLoggerNop()
	rs := setupTestServer(t)
	rs.RateLimiterStore = tracker.NewRateLimiterStore(0.001, 1)

	seed(t, rs, "tile-1", catalog.TypeTile, "r1")

	assert.Equal(t, http.StatusOK, do(rs, "GET", "/devices/tile-1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(rs, "GET", "/devices/tile-1", nil).Code)

	assert.Equal(t, http.StatusBadRequest, do(rs, "POST", "/devices/tile-1/limiter", gin.H{}).Code)
	require.Equal(t, http.StatusOK, do(rs, "POST", "/devices/tile-1/limiter", gin.H{"rate": 100.0, "burst": 5}).Code)
	assert.Equal(t, http.StatusOK, do(rs, "GET", "/devices/tile-1", nil).Code)
}
