// Package radio owns the scanning side of the tracker: the radio sources that
// deliver advertisements, the scheduler that decides when the radio listens
// and for what, and the cache of the latest record per ephemeral address.
package radio

import (
	"context"
	"errors"
	"slices"
	"time"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
)

var ErrHardwareUnavailable = errors.New("radio hardware unavailable")

type HardwareState interface {
	PoweredOn() bool
	Authorized() bool
}

// HardwareReady is the single signal the rest of the core looks at.
func HardwareReady(hw HardwareState) bool {
	return hw != nil && hw.PoweredOn() && hw.Authorized()
}

// Radio is a source of advertisements. Scan blocks, calling found for every
// advertisement, until ctx is done or the hardware goes away. found must not
// block.
type Radio interface {
	HardwareState
	Scan(ctx context.Context, found func(catalog.Advertisement)) error
}

type Mode int

const (
	ModeBackground Mode = iota
	ModeFast
)

func (m Mode) String() string {
	if m == ModeFast {
		return "fast"
	}
	return "background"
}

// Target restricts a fast scan to one service signature or to a set of
// ephemeral addresses.
type Target struct {
	ServiceUUID string   `json:"service_uuid,omitempty"`
	IDs         []string `json:"ids,omitempty"`
}

func (t Target) IsZero() bool {
	return t.ServiceUUID == "" && len(t.IDs) == 0
}

func (t Target) Matches(adv catalog.Advertisement) bool {
	if t.ServiceUUID != "" && adv.HasService(t.ServiceUUID) {
		return true
	}
	return slices.Contains(t.IDs, adv.Address)
}

// Sighting is one accepted advertisement, handed to the pipeline.
type Sighting struct {
	EphemeralID   string
	Advertisement catalog.Advertisement
	Time          time.Time
	Mode          Mode
}

// Sink receives sightings on the radio's goroutine and must return at once.
type Sink func(Sighting)
