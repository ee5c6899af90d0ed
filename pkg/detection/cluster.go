package detection

import (
	"sort"

	"liyu1981.xyz/proximity-tracker/pkg/models"
)

// Cluster groups events that reference the same Location. Each group spans
// its earliest to latest event and reports the largest accuracy radius seen.
// Groups are never merged by distance, only by identical reference. Events
// without a location are left out.
func Cluster(events []models.DetectionEvent) []models.ClusteredLocation {
	byLocation := make(map[uint]*models.ClusteredLocation)
	var order []uint

	for _, e := range events {
		if e.LocationID == nil {
			continue
		}
		id := *e.LocationID

		var loc models.Location
		if e.Location != nil {
			loc = *e.Location
		}
		loc.ID = id

		c, ok := byLocation[id]
		if !ok {
			byLocation[id] = &models.ClusteredLocation{
				Location:      loc,
				Start:         e.Time,
				End:           e.Time,
				WorstAccuracy: loc.Accuracy,
			}
			order = append(order, id)
			continue
		}
		if e.Time.Before(c.Start) {
			c.Start = e.Time
		}
		if e.Time.After(c.End) {
			c.End = e.Time
		}
		if loc.Accuracy > c.WorstAccuracy {
			c.WorstAccuracy = loc.Accuracy
		}
	}

	out := make([]models.ClusteredLocation, 0, len(order))
	for _, id := range order {
		out = append(out, *byLocation[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].Location.ID < out[j].Location.ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// ClusterSpans re-clusters clusters by treating each span as two events, one
// at each end. Cluster is idempotent: ClusterSpans(Cluster(e)) == Cluster(e).
func ClusterSpans(clusters []models.ClusteredLocation) []models.ClusteredLocation {
	events := make([]models.DetectionEvent, 0, 2*len(clusters))
	for _, c := range clusters {
		id := c.Location.ID
		loc := c.Location
		loc.Accuracy = c.WorstAccuracy
		events = append(events,
			models.DetectionEvent{Time: c.Start, LocationID: &id, Location: &loc},
			models.DetectionEvent{Time: c.End, LocationID: &id, Location: &loc},
		)
	}
	return Cluster(events)
}
