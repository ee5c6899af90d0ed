package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
)

const (
	ReasonTracking    = "tracking"
	ReasonObservation = "observation"
)

// TrackedDevice is one physical accessory. ID is the immutable identity key;
// CurrentRadioID is the address it is advertising under right now.
type TrackedDevice struct {
	ID               string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceType       catalog.DeviceType `gorm:"type:varchar(20);index" json:"device_type,omitempty"`
	FirstSeen        *time.Time         `json:"first_seen,omitempty"`
	LastSeen         *time.Time         `gorm:"index" json:"last_seen,omitempty"`
	CurrentRadioID   *string            `gorm:"uniqueIndex" json:"current_radio_id,omitempty"`
	RadioIDRenewedAt *time.Time         `json:"radio_id_renewed_at,omitempty"`
	Ignore           bool               `json:"ignore"`
	Owned            bool               `json:"owned"`
	ObservingStart   *time.Time         `json:"observing_start,omitempty"`
	AdditionalData   datatypes.JSON     `json:"additional_data,omitempty"`
	Version          int64              `gorm:"not null;default:0" json:"version"`

	Events        []DetectionEvent      `gorm:"foreignKey:DeviceID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Notifications []TrackerNotification `gorm:"foreignKey:DeviceID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// DeviceExtras is the JSON kept in TrackedDevice.AdditionalData.
type DeviceExtras struct {
	LocalName   string `json:"local_name,omitempty"`
	LastPayload string `json:"last_payload,omitempty"`
	LastRSSI    int    `json:"last_rssi,omitempty"`
	Rebinds     int    `json:"rebinds,omitempty"`
}

func (d *TrackedDevice) Extras() DeviceExtras {
	var e DeviceExtras
	if len(d.AdditionalData) > 0 {
		_ = json.Unmarshal(d.AdditionalData, &e)
	}
	return e
}

func (d *TrackedDevice) SetExtras(e DeviceExtras) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	d.AdditionalData = datatypes.JSON(raw)
	return nil
}

func (d *TrackedDevice) RadioID() string {
	if d.CurrentRadioID == nil {
		return ""
	}
	return *d.CurrentRadioID
}

// Location is immutable once written and shared by every event that observed
// the same point.
type Location struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

type DetectionEvent struct {
	ID               uint                     `gorm:"primaryKey" json:"id"`
	Time             time.Time                `gorm:"index" json:"time"`
	DeviceID         string                   `gorm:"type:varchar(36);index;not null" json:"device_id"`
	LocationID       *uint                    `gorm:"index" json:"location_id,omitempty"`
	Location         *Location                `gorm:"constraint:OnDelete:SET NULL" json:"location,omitempty"`
	ConnectionStatus catalog.ConnectionStatus `gorm:"type:varchar(20)" json:"connection_status"`
	RSSI             int                      `json:"rssi"`
}

type TrackerNotification struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Time       time.Time `gorm:"index" json:"time"`
	DeviceID   string    `gorm:"type:varchar(36);index;not null" json:"device_id"`
	FalseAlarm bool      `json:"false_alarm"`
	Reason     string    `gorm:"type:varchar(20);check:reason IN ('tracking','observation')" json:"reason"`
}

// DeviceTypeSetting holds per-type user choices ("ignore every Tile").
type DeviceTypeSetting struct {
	DeviceType catalog.DeviceType `gorm:"primaryKey;type:varchar(20)" json:"device_type"`
	Ignore     bool               `json:"ignore"`
}

// Fix is one host location reading.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

// ClusteredLocation is the span of events that share one Location.
type ClusteredLocation struct {
	Location      Location  `json:"location"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	WorstAccuracy float64   `json:"worst_accuracy"`
}
