package radio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
)

// AdvertisementTopic is where remote scanners publish, one message per
// advertisement: scanners/<scanner id>/advertisements.
const AdvertisementTopic = "scanners/+/advertisements"

func ScannerTopic(scannerID string) string {
	return fmt.Sprintf("scanners/%s/advertisements", scannerID)
}

// WireAdvertisement is the JSON form published by remote scanners. Payload
// bytes are hex; manufacturer keys are company ids in decimal or 0x-hex.
type WireAdvertisement struct {
	Address          string            `json:"address"`
	RSSI             int               `json:"rssi"`
	LocalName        string            `json:"local_name,omitempty"`
	ServiceData      map[string]string `json:"service_data,omitempty"`
	ManufacturerData map[string]string `json:"manufacturer_data,omitempty"`
	ServiceUUIDs     []string          `json:"service_uuids,omitempty"`
	Connectable      bool              `json:"connectable"`
}

var ErrMalformedAdvertisement = errors.New("malformed advertisement")

func DecodeAdvertisement(payload []byte) (catalog.Advertisement, error) {
	var w WireAdvertisement
	if err := json.Unmarshal(payload, &w); err != nil {
		return catalog.Advertisement{}, fmt.Errorf("%w: %v", ErrMalformedAdvertisement, err)
	}
	if w.Address == "" {
		return catalog.Advertisement{}, fmt.Errorf("%w: missing address", ErrMalformedAdvertisement)
	}

	adv := catalog.Advertisement{
		Address:      w.Address,
		RSSI:         w.RSSI,
		LocalName:    w.LocalName,
		ServiceUUIDs: w.ServiceUUIDs,
		Connectable:  w.Connectable,
	}
	if len(w.ServiceData) > 0 {
		adv.ServiceData = make(map[string][]byte, len(w.ServiceData))
		for uuid, data := range w.ServiceData {
			b, _ := catalog.ParseHex(data)
			adv.ServiceData[catalog.NormalizeUUID(uuid)] = b
		}
	}
	if len(w.ManufacturerData) > 0 {
		adv.ManufacturerData = make(map[uint16][]byte, len(w.ManufacturerData))
		for key, data := range w.ManufacturerData {
			id, err := strconv.ParseUint(key, 0, 16)
			if err != nil {
				return catalog.Advertisement{}, fmt.Errorf("%w: company id %q", ErrMalformedAdvertisement, key)
			}
			b, _ := catalog.ParseHex(data)
			adv.ManufacturerData[uint16(id)] = b
		}
	}
	return adv, nil
}

func EncodeAdvertisement(adv catalog.Advertisement) ([]byte, error) {
	w := WireAdvertisement{
		Address:      adv.Address,
		RSSI:         adv.RSSI,
		LocalName:    adv.LocalName,
		ServiceUUIDs: adv.ServiceUUIDs,
		Connectable:  adv.Connectable,
	}
	if len(adv.ServiceData) > 0 {
		w.ServiceData = make(map[string]string, len(adv.ServiceData))
		for uuid, data := range adv.ServiceData {
			w.ServiceData[uuid] = catalog.HexEncode(data)
		}
	}
	if len(adv.ManufacturerData) > 0 {
		w.ManufacturerData = make(map[string]string, len(adv.ManufacturerData))
		for id, data := range adv.ManufacturerData {
			w.ManufacturerData[fmt.Sprintf("0x%04X", id)] = catalog.HexEncode(data)
		}
	}
	return json.Marshal(w)
}

// MQTTRadio receives advertisements relayed by remote scanners over MQTT.
// It counts as powered on while the broker connection is up.
type MQTTRadio struct {
	client mqtt.Client
	logger *zap.Logger

	mu       sync.Mutex
	onChange func()
}

func NewMQTTRadio(broker, clientID string) *MQTTRadio {
	r := &MQTTRadio{
		logger: common.GetLoggerWith(
			common.LoggerNameRadio,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryScan),
		),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			r.logger.Info("Connected to MQTT broker", zap.String("broker", broker))
			r.notify()
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			r.logger.Warn("Lost MQTT broker connection", zap.Error(err))
			r.notify()
		})

	r.client = mqtt.NewClient(opts)
	return r
}

// OnStateChange registers fn to run whenever the broker connection comes or
// goes; the server points it at Scheduler.HardwareChanged.
func (r *MQTTRadio) OnStateChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *MQTTRadio) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

// Connect starts connecting in the background; the radio reports ready once
// the broker accepts.
func (r *MQTTRadio) Connect() {
	r.client.Connect()
}

func (r *MQTTRadio) Disconnect() {
	r.client.Disconnect(250)
}

func (r *MQTTRadio) Client() mqtt.Client {
	return r.client
}

func (r *MQTTRadio) PoweredOn() bool {
	return r.client.IsConnectionOpen()
}

func (r *MQTTRadio) Authorized() bool {
	return true
}

func (r *MQTTRadio) Scan(ctx context.Context, found func(catalog.Advertisement)) error {
	if !HardwareReady(r) {
		return ErrHardwareUnavailable
	}

	token := r.client.Subscribe(AdvertisementTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		r.handleMessage(msg, found)
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrHardwareUnavailable, token.Error())
	}

	<-ctx.Done()
	r.client.Unsubscribe(AdvertisementTopic).WaitTimeout(time.Second)
	return nil
}

func (r *MQTTRadio) handleMessage(msg mqtt.Message, found func(catalog.Advertisement)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Advertisement handler panic", zap.Any("panic", rec), zap.String("topic", msg.Topic()))
		}
	}()

	adv, err := DecodeAdvertisement(msg.Payload())
	if err != nil {
		r.logger.Debug("Dropping advertisement", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	found(adv)
}
