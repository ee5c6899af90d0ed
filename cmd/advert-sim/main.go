// Command advert-sim plays a remote scanner: it publishes advertisements from
// a few simulated trackers, rotating their addresses, and optionally walks the
// host location so the tracking heuristic has something to find.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
)

type simTag struct {
	kind    catalog.DeviceType
	address string
	rotated time.Time
}

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	scannerID := flag.String("scanner-id", "sim-scanner-1", "Scanner identifier")
	tiles := flag.Int("tiles", 1, "Number of simulated Tile trackers")
	airtags := flag.Int("airtags", 1, "Number of simulated AirTags")
	interval := flag.Duration("interval", 2*time.Second, "Interval between advertisement rounds")
	rotateEvery := flag.Duration("rotate-every", 15*time.Minute, "How often each tracker changes its address")
	baseRSSI := flag.Int("base-rssi", -60, "Baseline RSSI value to simulate")
	rssiJitter := flag.Int("rssi-jitter", 6, "Maximum random jitter applied to RSSI readings")
	walk := flag.Bool("walk", false, "Publish a host location moving about 100 m per minute")
	startLat := flag.Float64("lat", 48.137, "Walk start latitude")
	startLon := flag.Float64("lon", 11.575, "Walk start longitude")

	flag.Parse()

	clientID := fmt.Sprintf("%s-simulator-%d", *scannerID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	var tags []*simTag
	for range *tiles {
		tags = append(tags, &simTag{kind: catalog.TypeTile, address: randomAddress(), rotated: started})
	}
	for range *airtags {
		tags = append(tags, &simTag{kind: catalog.TypeAirTag, address: randomAddress(), rotated: started})
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	topic := radio.ScannerTopic(*scannerID)
	publish := func(now time.Time) {
		for _, tag := range tags {
			if now.Sub(tag.rotated) >= *rotateEvery {
				log.Printf("%s %s rotates away", tag.kind, tag.address)
				tag.address = randomAddress()
				tag.rotated = now
			}
			data, err := radio.EncodeAdvertisement(advertisement(tag, randomRSSI(*baseRSSI, *rssiJitter)))
			if err != nil {
				log.Printf("failed to encode advertisement: %v", err)
				continue
			}
			token := client.Publish(topic, 0, false, data)
			token.Wait()
			if err := token.Error(); err != nil {
				log.Printf("publish error: %v", err)
			}
		}

		if *walk {
			// roughly 100 m per minute heading north east
			minutes := now.Sub(started).Minutes()
			fix := models.Fix{
				Latitude:  *startLat + minutes*0.0009,
				Longitude: *startLon + minutes*0.0009,
				Accuracy:  10,
				Time:      now.UTC(),
			}
			data, _ := json.Marshal(fix)
			client.Publish(location.Topic, 0, false, data).Wait()
		}
		log.Printf("published %d advertisements to %s", len(tags), topic)
	}

	publish(time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case now := <-ticker.C:
			publish(now)
		}
	}
}

func advertisement(tag *simTag, rssi int) catalog.Advertisement {
	adv := catalog.Advertisement{Address: tag.address, RSSI: rssi}
	switch tag.kind {
	case catalog.TypeTile:
		adv.ServiceData = map[string][]byte{"FEED": {0x02, 0x00, byte(rand.IntN(256))}}
	case catalog.TypeAirTag:
		// separated from the owner: offline payload, AirTag hint in the status byte
		adv.ManufacturerData = map[uint16][]byte{0x004C: {0x12, 0x19, 0x10, byte(rand.IntN(256))}}
	}
	return adv
}

func randomAddress() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(rand.IntN(256))
	}
	// random static addresses have the two top bits set
	b[0] |= 0xC0
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

func randomRSSI(base, jitter int) int {
	if jitter <= 0 {
		return base
	}
	delta := rand.IntN(jitter*2+1) - jitter
	return base + delta
}
