package catalog

import (
	"encoding/hex"
	"strings"
)

// Advertisement is one decoded radio advertisement as delivered by a scanner.
//
// ServiceData is keyed by the 16-bit service UUID in upper-case hex ("FD5A").
// Full 128-bit UUIDs built on the Bluetooth base UUID are folded to their
// 16-bit form by NormalizeUUID; any other UUID is kept upper-case as-is.
type Advertisement struct {
	Address          string            `json:"address"`
	RSSI             int               `json:"rssi"`
	LocalName        string            `json:"local_name,omitempty"`
	ServiceData      map[string][]byte `json:"service_data,omitempty"`
	ManufacturerData map[uint16][]byte `json:"manufacturer_data,omitempty"`
	ServiceUUIDs     []string          `json:"service_uuids,omitempty"`
	Connectable      bool              `json:"connectable"`
}

const baseUUIDSuffix = "-0000-1000-8000-00805F9B34FB"

func NormalizeUUID(uuid string) string {
	u := strings.ToUpper(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0X")
	if len(u) == 36 && strings.HasSuffix(u, baseUUIDSuffix) && strings.HasPrefix(u, "0000") {
		return u[4:8]
	}
	return u
}

func (a Advertisement) ServiceDataFor(uuid string) ([]byte, bool) {
	want := NormalizeUUID(uuid)
	for key, data := range a.ServiceData {
		if NormalizeUUID(key) == want {
			return data, true
		}
	}
	return nil, false
}

func (a Advertisement) HasService(uuid string) bool {
	if _, ok := a.ServiceDataFor(uuid); ok {
		return true
	}
	want := NormalizeUUID(uuid)
	for _, s := range a.ServiceUUIDs {
		if NormalizeUUID(s) == want {
			return true
		}
	}
	return false
}

// ServiceDataKeys lists the normalized service-data UUIDs present.
func (a Advertisement) ServiceDataKeys() []string {
	keys := make([]string, 0, len(a.ServiceData))
	for key := range a.ServiceData {
		keys = append(keys, NormalizeUUID(key))
	}
	return keys
}

func (a Advertisement) Clone() Advertisement {
	c := a
	if a.ServiceData != nil {
		c.ServiceData = make(map[string][]byte, len(a.ServiceData))
		for k, v := range a.ServiceData {
			c.ServiceData[k] = append([]byte(nil), v...)
		}
	}
	if a.ManufacturerData != nil {
		c.ManufacturerData = make(map[uint16][]byte, len(a.ManufacturerData))
		for k, v := range a.ManufacturerData {
			c.ManufacturerData[k] = append([]byte(nil), v...)
		}
	}
	c.ServiceUUIDs = append([]string(nil), a.ServiceUUIDs...)
	return c
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// ParseHex decodes a hex string, skipping separators such as ':' or ' '.
// It returns false when no byte could be decoded.
func ParseHex(s string) ([]byte, bool) {
	var digits strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()
	if clean == "" {
		return nil, false
	}
	if len(clean)%2 == 1 {
		// a trailing lone digit is its own byte
		clean = clean[:len(clean)-1] + "0" + clean[len(clean)-1:]
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, false
	}
	return out, true
}
