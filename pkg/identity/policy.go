// Package identity maps rotating radio addresses to persistent tracked
// devices.
//
// Accessories change their broadcast address periodically. When a classified
// advertisement arrives from an address nobody owns, the device it most
// likely belongs to is one of the same type that was seen recently (inside
// the renewal grace) but is not being seen right now (outside the active
// window): its old address has gone quiet because it rotated. Among several
// such devices the one seen last wins. With none, a new device is created;
// guessing wrong would merge two accessories' histories, a fragmented
// identity only splits one.
package identity

import (
	"time"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
)

type Outcome int

const (
	// Matched: the address is already bound to a device.
	Matched Outcome = iota
	// Rebound: an existing device takes over the new address.
	Rebound
	// Created: a new device is created for the address.
	Created
	// Transient: the advertisement matches no known type and is not stored.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Rebound:
		return "rebound"
	case Created:
		return "created"
	default:
		return "transient"
	}
}

// Candidate is the part of a stored device the policy looks at.
type Candidate struct {
	ID             string
	DeviceType     catalog.DeviceType
	LastSeen       time.Time
	CurrentRadioID string
}

type Input struct {
	EphemeralID   string
	Advertisement catalog.Advertisement
	Now           time.Time
	// Direct is the device currently bound to EphemeralID, if any.
	Direct *Candidate
	// Candidates are stored devices that may be rebound; the policy filters
	// them itself.
	Candidates []Candidate
}

type Decision struct {
	Outcome         Outcome
	DeviceID        string // empty for Created and Transient
	DeviceType      catalog.DeviceType
	PreviousRadioID string // set for Rebound
}

type Policy struct {
	RenewalGrace time.Duration
	ActiveWindow time.Duration
}

// Eligible reports whether c may take over a new address at now.
func (p Policy) Eligible(c Candidate, now time.Time) bool {
	if c.LastSeen.IsZero() {
		return false
	}
	age := now.Sub(c.LastSeen)
	return age >= p.ActiveWindow && age < p.RenewalGrace
}

func (p Policy) Decide(in Input) Decision {
	if in.Direct != nil {
		return Decision{Outcome: Matched, DeviceID: in.Direct.ID, DeviceType: in.Direct.DeviceType}
	}

	profile, ok := catalog.Classify(in.Advertisement)
	if !ok {
		return Decision{Outcome: Transient, DeviceType: catalog.TypeUnknown}
	}

	var best *Candidate
	for i := range in.Candidates {
		c := &in.Candidates[i]
		if c.DeviceType != profile.Type || c.CurrentRadioID == in.EphemeralID || !p.Eligible(*c, in.Now) {
			continue
		}
		if best == nil || c.LastSeen.After(best.LastSeen) ||
			(c.LastSeen.Equal(best.LastSeen) && c.ID < best.ID) {
			best = c
		}
	}

	if best == nil {
		return Decision{Outcome: Created, DeviceType: profile.Type}
	}
	return Decision{
		Outcome:         Rebound,
		DeviceID:        best.ID,
		DeviceType:      profile.Type,
		PreviousRadioID: best.CurrentRadioID,
	}
}
