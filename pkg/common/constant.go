package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyTrackerDBType string = "TRACKER_DB_TYPE"
	EnvKeyTrackerDbPath string = "TRACKER_DB_PATH"

	EnvKeyTrackerHttpHostPort string = "TRACKER_HTTP_HOST_PORT"
	EnvKeyTrackerGrpcHostPort string = "TRACKER_GRPC_HOST_PORT"

	EnvKeyTrackerDefaultRate  string = "TRACKER_DEFAULT_RATE"
	EnvKeyTrackerDefaultBurst string = "TRACKER_DEFAULT_BURST"

	EnvKeyRadioSource     string = "TRACKER_RADIO_SOURCE"
	EnvKeyMQTTBroker      string = "TRACKER_MQTT_BROKER"
	EnvKeyMQTTClientID    string = "TRACKER_MQTT_CLIENT_ID"
	EnvKeyBackgroundScan  string = "TRACKER_BACKGROUND_SCANNING"
	EnvKeyScanWindow      string = "TRACKER_SCAN_WINDOW"
	EnvKeyScanInterval    string = "TRACKER_SCAN_INTERVAL"
	EnvKeyRecordStale     string = "TRACKER_RECORD_STALE_AFTER"
	EnvKeyRenewalGrace    string = "TRACKER_RENEWAL_GRACE"
	EnvKeyActiveWindow    string = "TRACKER_ACTIVE_WINDOW"
	EnvKeyStillNearby     string = "TRACKER_STILL_NEARBY_TIMEOUT"
	EnvKeyPrecisionFind   string = "TRACKER_PRECISION_TIMEOUT"
	EnvKeyScanBuffer      string = "TRACKER_MANUAL_SCAN_BUFFER"
	EnvKeyMergeRadius     string = "TRACKER_LOCATION_MERGE_RADIUS"
	EnvKeyFixMaxAge       string = "TRACKER_LOCATION_MAX_AGE"
	EnvKeyDetectionRate   string = "TRACKER_DETECTION_RATE"
	EnvKeyDetectionBurst  string = "TRACKER_DETECTION_BURST"
	EnvKeyPipelineWorkers string = "TRACKER_PIPELINE_WORKERS"
	EnvKeyPipelineQueue   string = "TRACKER_PIPELINE_QUEUE"
	EnvKeyEvaluateEvery   string = "TRACKER_EVALUATE_EVERY"

	EnvKeyAlertMinLocations  string = "ALERT_MIN_DISTINCT_LOCATIONS"
	EnvKeyAlertMinElapsed    string = "ALERT_MIN_ELAPSED"
	EnvKeyAlertDedupWindow   string = "ALERT_DEDUP_WINDOW"
	EnvKeyAlertLookback      string = "ALERT_LOOKBACK"
	EnvKeyAlertObservePeriod string = "ALERT_OBSERVATION_PERIOD"

	LoggerNameTrackerCore   string = "tracker_core"
	LoggerNameRadio         string = "radio"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"

	LoggerFieldCategory       string = "category"
	LoggerCategoryScan        string = "scan"
	LoggerCategoryIdentity    string = "identity"
	LoggerCategoryDetection   string = "detection"
	LoggerCategoryAlert       string = "alert"
	LoggerCategoryPipeline    string = "pipeline"
	LoggerCategoryLocation    string = "location"
	LoggerCategoryStorage     string = "storage"
	LoggerCategoryObservation string = "observation"
)
