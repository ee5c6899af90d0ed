package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

var scopeValidator = z.String().OneOf([]string{string(tracker.ScopeRecent), string(tracker.ScopeHistory)})

func (rs *RestfulServer) ListDevices(c *gin.Context) {
	scope := c.DefaultQuery("scope", string(tracker.ScopeRecent))
	if err := scopeValidator.Validate(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	var safe *bool
	if raw := c.Query("safe"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "safe must be true or false"})
			return
		}
		safe = &v
	}

	devices, err := rs.Tracker.ListDevices(c.Request.Context(), tracker.Scope(scope))
	if err != nil {
		fail(c, err)
		return
	}
	if safe != nil {
		devices = tracker.Partition(devices, *safe)
	}
	c.JSON(http.StatusOK, devices)
}

func (rs *RestfulServer) GetDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	summary, err := rs.Tracker.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (rs *RestfulServer) DeleteDevice(c *gin.Context) {
	deviceID := c.Param("device_id")

	if err := rs.Tracker.RemoveDevice(c.Request.Context(), deviceID); err != nil {
		fail(c, err)
		return
	}
	if rs.RateLimiterStore != nil {
		rs.RateLimiterStore.Forget(deviceID)
	}
	c.Status(http.StatusNoContent)
}

func (rs *RestfulServer) GetLocations(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = since.UTC()
	}

	clusters, err := rs.Tracker.Locations(c.Request.Context(), deviceID, since)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (rs *RestfulServer) GetNotifications(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	notifications, err := rs.Tracker.Notifications(c.Request.Context(), deviceID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

type IgnoreRequest struct {
	Ignore bool `json:"ignore"`
}

var ignoreRequestSchema = z.Struct(z.Shape{
	"ignore": z.Bool(),
})

func (rs *RestfulServer) PostIgnore(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req IgnoreRequest
	if err := ignoreRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Tracker.SetIgnore(c.Request.Context(), deviceID, req.Ignore); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type OwnedRequest struct {
	Owned bool `json:"owned"`
}

var ownedRequestSchema = z.Struct(z.Shape{
	"owned": z.Bool(),
})

func (rs *RestfulServer) PostOwned(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req OwnedRequest
	if err := ownedRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Tracker.SetOwned(c.Request.Context(), deviceID, req.Owned); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type ObserveRequest struct {
	Observe bool `json:"observe"`
}

var observeRequestSchema = z.Struct(z.Shape{
	"observe": z.Bool(),
})

func (rs *RestfulServer) PostObserve(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req ObserveRequest
	if err := observeRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	started, err := rs.Tracker.Observe(c.Request.Context(), deviceID, req.Observe)
	if err != nil {
		fail(c, err)
		return
	}
	if started.IsZero() {
		c.JSON(http.StatusOK, gin.H{"observing_start": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"observing_start": started})
}

func (rs *RestfulServer) PostPrecision(c *gin.Context) {
	deviceID := c.Param("device_id")

	target, err := rs.Tracker.StartPrecisionFinding(c.Request.Context(), deviceID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (rs *RestfulServer) DeletePrecision(c *gin.Context) {
	rs.Tracker.StopPrecisionFinding()
	c.Status(http.StatusNoContent)
}

type BackgroundScanRequest struct {
	Enabled bool `json:"enabled"`
}

var backgroundScanRequestSchema = z.Struct(z.Shape{
	"enabled": z.Bool(),
})

func (rs *RestfulServer) PostBackgroundScan(c *gin.Context) {
	var req BackgroundScanRequest
	if err := backgroundScanRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.Tracker.SetBackgroundScanning(req.Enabled)
	c.JSON(http.StatusOK, rs.Tracker.Hardware())
}

func (rs *RestfulServer) GetDeviceTypes(c *gin.Context) {
	settings, err := rs.Tracker.DeviceTypeSettings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (rs *RestfulServer) PostTypeIgnore(c *gin.Context) {
	typ := catalog.DeviceType(c.Param("type"))

	var req IgnoreRequest
	if err := ignoreRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Tracker.SetTypeIgnored(c.Request.Context(), typ, req.Ignore); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type FalseAlarmRequest struct {
	FalseAlarm bool `json:"false_alarm" zog:"false_alarm"`
}

var falseAlarmRequestSchema = z.Struct(z.Shape{
	"falseAlarm": z.Bool(),
})

func (rs *RestfulServer) PostFalseAlarm(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notification id must be a number"})
		return
	}

	var req FalseAlarmRequest
	if err := falseAlarmRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Tracker.SetFalseAlarm(c.Request.Context(), uint(id), req.FalseAlarm); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type LocationRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

var locationRequestSchema = z.Struct(z.Shape{
	"latitude":  z.Float64().Required(),
	"longitude": z.Float64().Required(),
	"accuracy":  z.Float64().GTE(0),
	"time":      z.Time(),
})

func (rs *RestfulServer) PostLocation(c *gin.Context) {
	if rs.Latest == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "location updates are not accepted here"})
		return
	}

	var req LocationRequest
	if err := locationRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	fix := models.Fix{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Time:      req.Time,
	}
	if err := rs.Latest.Update(fix); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) GetHardware(c *gin.Context) {
	resp := gin.H{"radio": rs.Tracker.Hardware()}
	if rs.Pipeline != nil {
		resp["pipeline"] = rs.Pipeline.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required(),
	"burst": z.Int().Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
