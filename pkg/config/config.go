package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// Ledger storage. Driver is "postgres", "sqlite" or "memory".
	DBDriver    string
	DatabaseURL string

	// Issuer signing key. Hex-encoded Ed25519 seed; empty generates an
	// ephemeral key, which only makes sense for local development.
	IssuerKeyID   string
	IssuerKeySeed string

	// Anchor publishing.
	WitnessURL       string
	WitnessLogID     string
	FeeCeilingMicros int64
	AnchorBatchSize  int
	AnchorMaxWait    time.Duration

	// Council.
	EvaluatorURLs    []string
	EvaluatorTimeout time.Duration
	QuorumPolicyPath string

	// Proof bundle export. Endpoint overrides the S3 endpoint for
	// MinIO/LocalStack deployments.
	ExportBucket   string
	ExportRegion   string
	ExportEndpoint string

	// Observability.
	OTLPEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && driver == "postgres" {
		// Default to local generic postgres
		dbURL = "postgres://cognigate@localhost:5432/cognigate?sslmode=disable"
	}

	keyID := os.Getenv("ISSUER_KEY_ID")
	if keyID == "" {
		keyID = "issuer-local"
	}

	exportRegion := os.Getenv("EXPORT_REGION")
	if exportRegion == "" {
		exportRegion = "us-east-1"
	}

	witnessLogID := os.Getenv("WITNESS_LOG_ID")
	if witnessLogID == "" {
		witnessLogID = "cognigate-default"
	}

	var evaluators []string
	if raw := os.Getenv("EVALUATOR_URLS"); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				evaluators = append(evaluators, u)
			}
		}
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DBDriver:         driver,
		DatabaseURL:      dbURL,
		IssuerKeyID:      keyID,
		IssuerKeySeed:    os.Getenv("ISSUER_KEY_SEED"),
		WitnessURL:       os.Getenv("WITNESS_URL"),
		WitnessLogID:     witnessLogID,
		FeeCeilingMicros: envInt64("ANCHOR_FEE_CEILING_MICROS", 0),
		AnchorBatchSize:  int(envInt64("ANCHOR_BATCH_SIZE", 64)),
		AnchorMaxWait:    envDuration("ANCHOR_MAX_WAIT", time.Minute),
		EvaluatorURLs:    evaluators,
		EvaluatorTimeout: envDuration("EVALUATOR_TIMEOUT", 15*time.Second),
		QuorumPolicyPath: os.Getenv("QUORUM_POLICY_PATH"),
		ExportBucket:     os.Getenv("EXPORT_BUCKET"),
		ExportRegion:     exportRegion,
		ExportEndpoint:   os.Getenv("EXPORT_S3_ENDPOINT"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func envInt64(name string, def int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
