package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
)

// adapter is the part of *bluetooth.Adapter the radio drives.
type adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// HCIRadio scans with the host's own bluetooth adapter.
type HCIRadio struct {
	adapter adapter

	mu         sync.Mutex
	enabled    bool
	authorized bool
}

func NewHCIRadio(a *bluetooth.Adapter) *HCIRadio {
	if a == nil {
		a = bluetooth.DefaultAdapter
	}
	return &HCIRadio{adapter: a, authorized: true}
}

// Enable powers the adapter up. A failure leaves the radio reporting
// not-ready rather than failing the process.
func (r *HCIRadio) Enable() error {
	err := r.adapter.Enable()

	r.mu.Lock()
	r.enabled = err == nil
	r.mu.Unlock()

	if err != nil {
		common.GetLoggerWith(
			common.LoggerNameRadio,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryScan),
		).Warn("Bluetooth adapter unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
	}
	return nil
}

// Monitor re-enables a lost adapter every interval until ctx is done and calls
// changed once it is back. A scan failure or a failed start-up Enable both
// leave the radio disabled, so this is what brings scanning back.
func (r *HCIRadio) Monitor(ctx context.Context, c clock.Clock, every time.Duration, changed func()) {
	ticker := c.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		if r.PoweredOn() {
			continue
		}
		if err := r.Enable(); err == nil {
			common.GetLoggerWith(
				common.LoggerNameRadio,
				zap.String(common.LoggerFieldCategory, common.LoggerCategoryScan),
			).Info("Bluetooth adapter back")
			if changed != nil {
				changed()
			}
		}
	}
}

func (r *HCIRadio) PoweredOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *HCIRadio) Authorized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authorized
}

func (r *HCIRadio) Scan(ctx context.Context, found func(catalog.Advertisement)) error {
	if !HardwareReady(r) {
		return ErrHardwareUnavailable
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			found(fromScanResult(result.Address.String(), int(result.RSSI), result.AdvertisementPayload))
		})
	}()

	select {
	case <-ctx.Done():
		_ = r.adapter.StopScan()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			r.mu.Lock()
			r.enabled = false
			r.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
		}
		return nil
	}
}

// scanPayload is the part of bluetooth.AdvertisementPayload we read.
type scanPayload interface {
	LocalName() string
	ManufacturerData() []bluetooth.ManufacturerDataElement
	ServiceData() []bluetooth.ServiceDataElement
}

func fromScanResult(address string, rssi int, payload scanPayload) catalog.Advertisement {
	adv := catalog.Advertisement{
		Address: address,
		RSSI:    rssi,
	}
	if payload == nil {
		return adv
	}
	adv.LocalName = payload.LocalName()

	if md := payload.ManufacturerData(); len(md) > 0 {
		adv.ManufacturerData = make(map[uint16][]byte, len(md))
		for _, el := range md {
			adv.ManufacturerData[el.CompanyID] = append([]byte(nil), el.Data...)
		}
	}
	if sd := payload.ServiceData(); len(sd) > 0 {
		adv.ServiceData = make(map[string][]byte, len(sd))
		for _, el := range sd {
			adv.ServiceData[catalog.NormalizeUUID(el.UUID.String())] = append([]byte(nil), el.Data...)
		}
	}
	return adv
}
