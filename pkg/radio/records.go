package radio

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
)

// Record is the latest state of one ephemeral address, merged across scan
// modes: whichever mode wrote last wins.
type Record struct {
	EphemeralID   string
	RSSI          int
	SmoothedRSSI  float64
	Advertisement catalog.Advertisement
	Connectable   bool
	UpdatedAt     time.Time
	Mode          Mode
}

type recordEntry struct {
	record  Record
	samples []float64
	next    int
}

type RecordCache struct {
	mu      sync.RWMutex
	size    int
	entries map[string]*recordEntry
}

// NewRecordCache keeps the last samples RSSI readings per address for
// smoothing.
func NewRecordCache(samples int) *RecordCache {
	if samples < 1 {
		samples = 1
	}
	return &RecordCache{size: samples, entries: make(map[string]*recordEntry)}
}

func (c *RecordCache) Update(s Sighting) Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[s.EphemeralID]
	if !ok {
		e = &recordEntry{samples: make([]float64, 0, c.size)}
		c.entries[s.EphemeralID] = e
	}

	rssi := float64(s.Advertisement.RSSI)
	if len(e.samples) < c.size {
		e.samples = append(e.samples, rssi)
	} else {
		e.samples[e.next] = rssi
		e.next = (e.next + 1) % c.size
	}

	e.record = Record{
		EphemeralID:   s.EphemeralID,
		RSSI:          s.Advertisement.RSSI,
		SmoothedRSSI:  stat.Mean(e.samples, nil),
		Advertisement: s.Advertisement,
		Connectable:   s.Advertisement.Connectable,
		UpdatedAt:     s.Time,
		Mode:          s.Mode,
	}
	return e.record
}

func (c *RecordCache) Get(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}

// Snapshot returns every record, most recently updated first.
func (c *RecordCache) Snapshot() []Record {
	c.mu.RLock()
	out := make([]Record, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.record)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Forget drops an address that has rotated away.
func (c *RecordCache) Forget(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Collect drops records not updated within stale of now and reports how many
// went.
func (c *RecordCache) Collect(now time.Time, stale time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if now.Sub(e.record.UpdatedAt) >= stale {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *RecordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
