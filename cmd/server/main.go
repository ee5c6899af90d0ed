package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"tinygo.org/x/bluetooth"

	"liyu1981.xyz/proximity-tracker/pkg/alert"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/config"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	trackerGrpc "liyu1981.xyz/proximity-tracker/pkg/grpc"
	trackerHttp "liyu1981.xyz/proximity-tracker/pkg/http"
	"liyu1981.xyz/proximity-tracker/pkg/identity"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

func main() {
	var err error

	err = godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := common.GetLogger()

	var dialector = db.UseSqliteDialector(cfg.DBPath)
	switch cfg.DBType {
	case "file":
	case "memory":
		dialector = db.UseMemorySqliteDialector()
	}
	dbInstance, err := db.Open(dialector)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	writer := db.NewWriter(dbInstance)
	clk := clock.Real{}

	// the broker client, if any, also carries host location fixes and alerts
	var rad radio.Radio
	var mqttRadio *radio.MQTTRadio
	var hciRadio *radio.HCIRadio
	var broker mqtt.Client
	switch cfg.RadioSource {
	case "mqtt":
		mqttRadio = radio.NewMQTTRadio(cfg.MQTTBroker, cfg.MQTTClientID)
		rad = mqttRadio
		broker = mqttRadio.Client()
	case "hci":
		hciRadio = radio.NewHCIRadio(bluetooth.DefaultAdapter)
		if err := hciRadio.Enable(); err != nil {
			logger.Warn("Starting without a local radio, retrying every scan interval", zap.Error(err))
		}
		rad = hciRadio
		if cfg.MQTTBroker != "" {
			broker = mqtt.NewClient(mqtt.NewClientOptions().
				AddBroker(cfg.MQTTBroker).
				SetClientID(cfg.MQTTClientID).
				SetAutoReconnect(true).
				SetConnectRetry(true))
		}
	case "none":
		logger.Info("Running without a radio source")
	}

	latest := location.NewLatest(clk, cfg.LocationMaxAge)
	throttle := tracker.NewRateLimiterStore(rate.Limit(cfg.DetectionRate), cfg.DetectionBurst)

	recorder := detection.NewRecorder(dbInstance, writer, clk, detection.Options{
		MergeRadius:        cfg.LocationMergeRadius,
		BackgroundScanning: cfg.BackgroundScanning,
		Throttle:           throttle,
	})

	var presenter alert.Presenter = alert.NewLogPresenter(nil)
	if broker != nil {
		presenter = alert.NewLogPresenter(broker)
	}
	heuristic, err := alert.New(dbInstance, writer, clk, alert.Config{
		MinDistinctLocations: cfg.Alert.MinDistinctLocations,
		MinElapsed:           cfg.Alert.MinElapsed,
		DedupWindow:          cfg.Alert.DedupWindow,
		Lookback:             cfg.Alert.Lookback,
		ObservationPeriod:    cfg.Alert.ObservationPeriod,
	}, alert.Options{
		Presenter:   presenter,
		Background:  recorder,
		StillNearby: cfg.StillNearbyTimeout,
	})
	if err != nil {
		log.Fatalf("Invalid alert configuration: %v", err)
	}

	core := &tracker.Tracker{
		Db:               dbInstance,
		Writer:           writer,
		Clock:            clk,
		Location:         latest,
		Timeouts:         reachability.Timeouts{StillNearby: cfg.StillNearbyTimeout, PrecisionFinding: cfg.PrecisionTimeout},
		ManualScanBuffer: cfg.ManualScanBuffer,
		Throttle:         throttle,
	}
	pipeline := tracker.NewPipeline(core, tracker.PipelineOptions{
		Workers:       cfg.PipelineWorkers,
		QueueSize:     cfg.PipelineQueue,
		EvaluateEvery: cfg.EvaluateEvery,
		RecordStale:   cfg.RecordStale,
	})
	scheduler := radio.NewScheduler(rad, clk, radio.SchedulerOptions{
		Window:   cfg.ScanWindow,
		Interval: cfg.ScanInterval,
	}, pipeline.Sink())
	core.WithServices(tracker.ServiceOpts{
		Identity: identity.NewResolver(dbInstance, writer, identity.Policy{
			RenewalGrace: cfg.RenewalGrace,
			ActiveWindow: cfg.ActiveWindow,
		}),
		Detection: recorder,
		Alert:     heuristic,
		Scanner:   scheduler,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if hciRadio != nil {
		go hciRadio.Monitor(ctx, clk, cfg.ScanInterval, scheduler.HardwareChanged)
	}

	var feed *location.MQTTFeed
	if broker != nil {
		if mqttRadio != nil {
			mqttRadio.OnStateChange(scheduler.HardwareChanged)
			mqttRadio.Connect()
		} else {
			broker.Connect()
		}
		feed = location.NewMQTTFeed(broker, latest)
		if err := feed.Start(); err != nil {
			logger.Warn("Host location feed not subscribed, POST /location still works", zap.Error(err))
		}
	}

	pipeline.Start(ctx)
	if cfg.BackgroundScanning {
		scheduler.StartBackgroundScan()
	}

	limiterDesc := zap.String("default_limiter",
		fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", cfg.DefaultRate, cfg.DefaultBurst))

	var grpcServer *grpc.Server
	if cfg.GRPCHostPort != "" {
		trackerGrpcServer := &trackerGrpc.TrackerServer{
			Tracker:          core,
			RateLimiterStore: tracker.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst),
		}
		interceptor := trackerGrpcServer.CreateRateLimitInterceptor(trackerGrpc.DeviceMethods)
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		trackerGrpc.RegisterTrackerServiceServer(grpcServer, trackerGrpcServer)
		logger.Info("gRPC server created with:", limiterDesc)

		listener, err := net.Listen("tcp", cfg.GRPCHostPort)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}
		go func() {
			logger.Info("start gRPC server on " + cfg.GRPCHostPort)
			if err := grpcServer.Serve(listener); err != nil {
				logger.Error("grpc server failed to serve", zap.Error(err))
				stop()
			}
		}()
	}

	rs := &trackerHttp.RestfulServer{
		Server:           gin.Default(),
		Tracker:          core,
		RateLimiterStore: tracker.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst),
		Latest:           latest,
		Pipeline:         pipeline,
	}
	rs.Setup()
	logger.Info("http server created with:", limiterDesc)

	httpServer := &http.Server{Addr: cfg.HTTPHostPort, Handler: rs.Server}
	go func() {
		logger.Info("Starting HTTP server on: " + cfg.HTTPHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed to serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	scheduler.Close()
	pipeline.Stop()
	if feed != nil {
		feed.Stop()
	}
	if broker != nil {
		broker.Disconnect(250)
	}
	if err := dbInstance.Close(); err != nil {
		logger.Warn("database close", zap.Error(err))
	}
	_ = logger.Sync()
}
