package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	trackerGrpc "liyu1981.xyz/proximity-tracker/pkg/grpc"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

// The server must run with TRACKER_RADIO_SOURCE=mqtt against the same broker
// and a scan window covering the run (or background scanning off and a fast
// scan on FEED).
var maxTags int = 200
var rounds int = 3
var brokerAddr string = "tcp://127.0.0.1:1883"
var httpHostPort string = "127.0.0.1:1080"
var grpcHostPort string = "127.0.0.1:1081"

// longer than the server's TRACKER_ACTIVE_WINDOW so a rotated address may rebind
var quietFor time.Duration = 2*time.Minute + 10*time.Second

var grpcClient *trackerGrpc.TrackerServiceClient
var mqttClient mqtt.Client

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

func main() {
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}
	fmt.Printf("http server verified\n")

	conn, err := grpc.NewClient(grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server:", err)
	}
	defer conn.Close()
	grpcClient = trackerGrpc.NewTrackerServiceClient(conn)
	fmt.Printf("gRPC client ready\n")

	mqttClient = mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker(brokerAddr).
		SetClientID(fmt.Sprintf("rotation-bench-%d", time.Now().UnixNano())))
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	defer mqttClient.Disconnect(250)
	fmt.Printf("mqtt broker connected\n")

	before := countDevices()

	for round := range rounds {
		addresses := make([]string, maxTags)
		for i := range maxTags {
			addresses[i] = randomAddress()
		}

		startTime := time.Now()
		wg := sync.WaitGroup{}
		for i := range maxTags {
			wg.Add(1)
			go func() {
				defer wg.Done()
				publishTile(addresses[i])
			}()
		}
		wg.Wait()
		usedTime := time.Since(startTime)

		fmt.Printf(
			"round %v: published %v advertisements: used time=%v seconds, throughput=%v adverts/second\n",
			round, maxTags, usedTime.Seconds(), float64(maxTags)/usedTime.Seconds(),
		)

		waitForPipeline()
		devices := countDevices() - before
		fmt.Printf("round %v: %v devices for %v tags (fragmentation %.2f)\n",
			round, devices, maxTags, float64(devices)/float64(maxTags))

		if round < rounds-1 {
			fmt.Printf("waiting %v before rotating every address\n", quietFor)
			time.Sleep(quietFor)
		}
	}
}

func flipCoin() bool {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(100000)%2 == 0
}

func randomAddress() string {
	rndMu.Lock()
	defer rndMu.Unlock()
	b := make([]byte, 6)
	rnd.Read(b)
	b[0] |= 0xC0
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

func publishTile(address string) {
	data, err := radio.EncodeAdvertisement(catalog.Advertisement{
		Address:     address,
		RSSI:        -60,
		ServiceData: map[string][]byte{"FEED": {0x02, 0x00}},
	})
	if err != nil {
		panic(err)
	}
	token := mqttClient.Publish(radio.ScannerTopic("rotation-bench"), 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		fmt.Printf("\nerror: %v\n", err)
	}
}

// waitForPipeline polls /hardware until the pipeline has gone quiet.
func waitForPipeline() {
	var last tracker.PipelineStats
	for range 50 {
		time.Sleep(200 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://%s/hardware", httpHostPort))
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		var hw struct {
			Pipeline tracker.PipelineStats `json:"pipeline"`
		}
		err = json.NewDecoder(resp.Body).Decode(&hw)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		if hw.Pipeline == last && hw.Pipeline.Processed+hw.Pipeline.Dropped >= hw.Pipeline.Submitted {
			if hw.Pipeline.Dropped > 0 || hw.Pipeline.Failed > 0 {
				fmt.Printf("pipeline dropped=%v failed=%v\n", hw.Pipeline.Dropped, hw.Pipeline.Failed)
			}
			return
		}
		last = hw.Pipeline
	}
}

func countDevices() int {
	total := 0
	for _, scope := range []tracker.Scope{tracker.ScopeRecent, tracker.ScopeHistory} {
		if flipCoin() {
			resp, err := http.Get(fmt.Sprintf("http://%s/devices?scope=%s", httpHostPort, scope))
			if err != nil {
				log.Fatalf("list devices: %v", err)
			}
			var devices []tracker.DeviceSummary
			err = json.NewDecoder(resp.Body).Decode(&devices)
			resp.Body.Close()
			if err != nil {
				log.Fatalf("list devices: %v", err)
			}
			total += len(devices)
		} else {
			list, err := grpcClient.ListNearby(context.Background(), wrapperspb.String(string(scope)))
			if err != nil {
				log.Fatalf("list devices: %v", err)
			}
			total += len(list.GetValues())
		}
	}
	return total
}
