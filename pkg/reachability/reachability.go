// Package reachability decides whether a tracker is currently present and how
// close it appears to be. Recency always wins over signal strength: a device
// that stopped advertising reads as far away whatever its last RSSI was.
package reachability

import (
	"math"
	"time"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

// WorstRSSI is the floor of the proximity scale in dBm.
const WorstRSSI = -100

type Timeouts struct {
	// StillNearby applies to lists and detail views.
	StillNearby time.Duration
	// PrecisionFinding applies while a fast scan targets the device.
	PrecisionFinding time.Duration
}

func (t Timeouts) For(precision bool) time.Duration {
	if precision {
		return t.PrecisionFinding
	}
	return t.StillNearby
}

// IsReachable reports now - lastSeen < timeout. A zero lastSeen is never
// reachable.
func IsReachable(lastSeen, now time.Time, timeout time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) < timeout
}

func DeviceReachable(dev *models.TrackedDevice, now time.Time, timeout time.Duration) bool {
	if dev == nil || dev.LastSeen == nil {
		return false
	}
	return IsReachable(*dev.LastSeen, now, timeout)
}

// ProximityFraction maps rssi linearly onto [0, 1] between WorstRSSI and best.
func ProximityFraction(rssi, best int) float64 {
	if best <= WorstRSSI {
		if rssi > WorstRSSI {
			return 1
		}
		return 0
	}
	f := float64(rssi-WorstRSSI) / float64(best-WorstRSSI)
	return math.Max(0, math.Min(1, f))
}

// Proximity is ProximityFraction gated on reachability.
func Proximity(lastSeen, now time.Time, timeout time.Duration, rssi, best int) float64 {
	if !IsReachable(lastSeen, now, timeout) {
		return 0
	}
	return ProximityFraction(rssi, best)
}

// SignalBars is the 0-4 bar indicator shown next to a device. Unreachable
// devices should be passed WorstRSSI.
func SignalBars(rssi, best int) int {
	if rssi <= WorstRSSI {
		return 0
	}
	quality := int(math.Floor(4 * ProximityFraction(rssi, best)))
	return min(quality+1, 4)
}

// IsSafe reports whether a device belongs in the "safe" list rather than the
// "possibly tracking" one.
func IsSafe(dev *models.TrackedDevice, latest catalog.ConnectionStatus) bool {
	return dev.Ignore || dev.Owned || latest == catalog.StatusOwnerConnected
}
