// Package catalog is the static table of tracker device types: how each type
// is recognised in an advertisement, its best-case signal strength, what the
// user may do with it, and how its connection status is read from the payload.
//
// Payload layouts recognised here:
//
//	Apple Find My (manufacturer data, company 0x004C):
//	  [0] 0x12 payload type
//	  [1] length: 0x02 "nearby" form (owner in range), 0x19 offline-finding form
//	  [2] status: bits 4-5 accessory kind (1 AirTag, 2 Find My accessory),
//	      bit 2 set once the owner has been away long enough to be "maintained"
//	Samsung SmartTag (service data FD5A):
//	  [0] bits 5-7 offline state (1 premature, 2 offline, 3 overmature,
//	      5 or 6 owner connected)
//	Tile (FEED), Chipolo (FE33), Pebblebee (FA25): service data presence only.
package catalog

type DeviceType string

const (
	TypeUnknown   DeviceType = "unknown"
	TypeAirTag    DeviceType = "airtag"
	TypeFindMy    DeviceType = "findmy"
	TypeSmartTag  DeviceType = "smarttag"
	TypeTile      DeviceType = "tile"
	TypeChipolo   DeviceType = "chipolo"
	TypePebblebee DeviceType = "pebblebee"
)

type ConnectionStatus string

const (
	StatusOwnerConnected    ConnectionStatus = "owner_connected"
	StatusPrematureOffline  ConnectionStatus = "premature_offline"
	StatusOffline           ConnectionStatus = "offline"
	StatusOvermatureOffline ConnectionStatus = "overmature_offline"
	StatusUnknown           ConnectionStatus = "unknown"
)

const (
	appleCompanyID     uint16 = 0x004C
	appleFindMyPayload byte   = 0x12
	appleNearbyLength  byte   = 0x02
	appleOfflineLength byte   = 0x19
	appleMaintainedBit byte   = 0x04

	appleKindAirTag byte = 1
	appleKindFindMy byte = 2
)

type Capabilities struct {
	BackgroundScanning bool
	Ignore             bool
	Sound              bool
	NFCIdentification  bool
}

// Signature identifies a device type in an advertisement. Either ServiceUUID
// (a service-data key) or CompanyID (manufacturer data) is set.
type Signature struct {
	ServiceUUID string
	CompanyID   uint16
	match       func(Advertisement) bool
}

func (s Signature) Matches(adv Advertisement) bool {
	if s.match != nil {
		return s.match(adv)
	}
	if s.ServiceUUID != "" {
		return adv.HasService(s.ServiceUUID)
	}
	return false
}

type Profile struct {
	Type             DeviceType
	Name             string
	Signature        Signature
	BestRSSI         int
	Capabilities     Capabilities
	ConnectionStatus func(Advertisement) ConnectionStatus
	SupportURL       string
}

func serviceSignature(uuid string) Signature {
	return Signature{ServiceUUID: uuid}
}

func appleSignature(kind byte) Signature {
	return Signature{
		CompanyID: appleCompanyID,
		match: func(adv Advertisement) bool {
			data, ok := adv.ManufacturerData[appleCompanyID]
			if !ok || len(data) < 3 || data[0] != appleFindMyPayload {
				return false
			}
			return (data[2]>>4)&0x03 == kind
		},
	}
}

func appleStatus(adv Advertisement) ConnectionStatus {
	data, ok := adv.ManufacturerData[appleCompanyID]
	if !ok || len(data) < 3 {
		return StatusUnknown
	}
	switch data[1] {
	case appleNearbyLength:
		return StatusOwnerConnected
	case appleOfflineLength:
		if data[2]&appleMaintainedBit != 0 {
			return StatusOffline
		}
		return StatusPrematureOffline
	}
	return StatusUnknown
}

func smartTagStatus(adv Advertisement) ConnectionStatus {
	data, ok := adv.ServiceDataFor("FD5A")
	if !ok || len(data) == 0 {
		return StatusUnknown
	}
	switch (data[0] >> 5) & 0x07 {
	case 1:
		return StatusPrematureOffline
	case 2:
		return StatusOffline
	case 3:
		return StatusOvermatureOffline
	case 5, 6:
		return StatusOwnerConnected
	}
	return StatusUnknown
}

func unknownStatus(Advertisement) ConnectionStatus {
	return StatusUnknown
}

// profiles is ordered: Classify returns the first match.
var profiles = []Profile{
	{
		Type:             TypeAirTag,
		Name:             "AirTag",
		Signature:        appleSignature(appleKindAirTag),
		BestRSSI:         -30,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true, Sound: true, NFCIdentification: true},
		ConnectionStatus: appleStatus,
		SupportURL:       "https://support.apple.com/en-us/HT212227",
	},
	{
		Type:             TypeFindMy,
		Name:             "Find My accessory",
		Signature:        appleSignature(appleKindFindMy),
		BestRSSI:         -30,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true},
		ConnectionStatus: appleStatus,
	},
	{
		Type:             TypeSmartTag,
		Name:             "Galaxy SmartTag",
		Signature:        serviceSignature("FD5A"),
		BestRSSI:         -35,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true, Sound: true},
		ConnectionStatus: smartTagStatus,
		SupportURL:       "https://www.samsung.com/us/support/mobile/smarttag/",
	},
	{
		Type:             TypeTile,
		Name:             "Tile",
		Signature:        serviceSignature("FEED"),
		BestRSSI:         -35,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true},
		ConnectionStatus: unknownStatus,
		SupportURL:       "https://www.tile.com/anti-theft-mode",
	},
	{
		Type:             TypeChipolo,
		Name:             "Chipolo",
		Signature:        serviceSignature("FE33"),
		BestRSSI:         -35,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true, Sound: true},
		ConnectionStatus: unknownStatus,
	},
	{
		Type:             TypePebblebee,
		Name:             "Pebblebee",
		Signature:        serviceSignature("FA25"),
		BestRSSI:         -40,
		Capabilities:     Capabilities{BackgroundScanning: true, Ignore: true},
		ConnectionStatus: unknownStatus,
	},
}

var unknownProfile = Profile{
	Type:             TypeUnknown,
	Name:             "Unknown",
	BestRSSI:         -30,
	ConnectionStatus: unknownStatus,
}

// Classify returns the first profile whose signature matches adv.
func Classify(adv Advertisement) (Profile, bool) {
	for _, p := range profiles {
		if p.Signature.Matches(adv) {
			return p, true
		}
	}
	return unknownProfile, false
}

// Lookup returns the profile for t. Unknown or unrecognised types return the
// unknown profile and false.
func Lookup(t DeviceType) (Profile, bool) {
	for _, p := range profiles {
		if p.Type == t {
			return p, true
		}
	}
	return unknownProfile, false
}

func All() []Profile {
	return append([]Profile(nil), profiles...)
}

// IsTrackable reports whether t is a known, classified type. Unknown and
// empty types are excluded from all tracking.
func IsTrackable(t DeviceType) bool {
	_, ok := Lookup(t)
	return ok
}

func (p Profile) StatusOf(adv Advertisement) ConnectionStatus {
	if p.ConnectionStatus == nil {
		return StatusUnknown
	}
	return p.ConnectionStatus(adv)
}

func IsUnknown(t DeviceType) bool {
	return !IsTrackable(t)
}
