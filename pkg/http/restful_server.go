package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/alert"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

type RestfulServer struct {
	Server  *gin.Engine
	Tracker *tracker.Tracker
	// per device API limiter; nil disables it
	RateLimiterStore *tracker.RateLimiterStore
	// fixes posted to /location land here; nil disables the endpoint
	Latest   *location.Latest
	Pipeline *tracker.Pipeline
}

func (rs *RestfulServer) GetLimiter(deviceID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	}
	return rs.RateLimiterStore.GetLimiter(deviceID)
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := rs.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/hardware", rs.GetHardware)
	rs.Server.POST("/location", rs.PostLocation)

	rs.Server.GET("/devices", rs.ListDevices)
	devices := rs.Server.Group("/devices/:device_id")
	{
		devices.GET("", rs.GetDevice)
		devices.DELETE("", rs.DeleteDevice)
		devices.GET("/locations", rs.GetLocations)
		devices.GET("/notifications", rs.GetNotifications)
		devices.POST("/ignore", rs.PostIgnore)
		devices.POST("/owned", rs.PostOwned)
		devices.POST("/observe", rs.PostObserve)
		devices.POST("/precision", rs.PostPrecision)
		devices.POST("/limiter", rs.PostLimiter)
	}

	scan := rs.Server.Group("/scan")
	{
		scan.POST("/background", rs.PostBackgroundScan)
		scan.DELETE("/precision", rs.DeletePrecision)
	}

	rs.Server.GET("/device-types", rs.GetDeviceTypes)
	rs.Server.POST("/device-types/:type/ignore", rs.PostTypeIgnore)
	rs.Server.POST("/notifications/:id/false-alarm", rs.PostFalseAlarm)
}

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

// fail maps core errors onto status codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, tracker.ErrNotSupported),
		errors.Is(err, alert.ErrObservationNotAllowed),
		errors.Is(err, location.ErrInvalidFix):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
