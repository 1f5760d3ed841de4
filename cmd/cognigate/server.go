package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/api"
	"github.com/Vorion-Labs/cognigate/pkg/config"
	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/council"
	"github.com/Vorion-Labs/cognigate/pkg/council/evaluator"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
	"github.com/Vorion-Labs/cognigate/pkg/export"
	"github.com/Vorion-Labs/cognigate/pkg/observability"
	anchorstore "github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
	"github.com/Vorion-Labs/cognigate/pkg/verify"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver (cgo-free)
)

func runServer() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		var err error
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:    "cognigate-core",
			ServiceVersion: "1.0.0",
			Environment:    "production",
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRate:     1.0,
			BatchTimeout:   5 * time.Second,
			Enabled:        true,
		})
		if err != nil {
			log.Fatalf("observability init failed: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	signer, err := newSigner(cfg)
	if err != nil {
		log.Fatalf("signer init failed: %v", err)
	}

	chain, anchors, closeDB, err := newStores(cfg, signer)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer closeDB()
	if obs != nil {
		chain = meteredLedger{Ledger: chain, obs: obs}
	}

	keyring := verify.NewKeyring()
	keyring.Register(cfg.IssuerKeyID, signer.PublicKey())

	verifier := verify.NewService(chain, anchors, keyring, logger)

	var builderOpts []export.BuilderOption
	if cfg.ExportBucket != "" {
		bundleStore, serr := export.NewS3BundleStore(ctx, export.S3Config{
			Bucket:   cfg.ExportBucket,
			Region:   cfg.ExportRegion,
			Endpoint: cfg.ExportEndpoint,
			Prefix:   "bundles/",
		})
		if serr != nil {
			log.Fatalf("bundle store init failed: %v", serr)
		}
		builderOpts = append(builderOpts, export.WithStore(bundleStore))
	}
	bundles := export.NewBuilder(chain, anchors, map[string]string{
		cfg.IssuerKeyID: signer.PublicKey(),
	}, builderOpts...)

	policy := council.DefaultPolicy()
	if cfg.QuorumPolicyPath != "" {
		policy, err = council.LoadPolicy(cfg.QuorumPolicyPath)
		if err != nil {
			log.Fatalf("quorum policy load failed: %v", err)
		}
	}

	evs := make([]evaluator.Evaluator, 0, len(cfg.EvaluatorURLs))
	for i, u := range cfg.EvaluatorURLs {
		evs = append(evs, evaluator.NewHTTPEvaluator(fmt.Sprintf("evaluator-%d", i+1), u))
	}
	gateway := evaluator.NewGateway(cfg.EvaluatorTimeout, logger)

	escalations := council.NewEscalationManager(chain, logger)

	engineOpts := []council.EngineOption{council.WithEscalations(escalations)}

	var publisher *anchor.Publisher
	if cfg.WitnessURL != "" {
		witness, werr := anchor.NewLogWitness(anchor.LogWitnessConfig{
			BaseURL:          cfg.WitnessURL,
			LogID:            cfg.WitnessLogID,
			FeeCeilingMicros: cfg.FeeCeilingMicros,
		})
		if werr != nil {
			log.Fatalf("witness init failed: %v", werr)
		}
		publisher = anchor.NewPublisher(chain, anchors, witness, anchor.PublisherConfig{
			MaxBatchSize: uint64(cfg.AnchorBatchSize),
			MaxWait:      cfg.AnchorMaxWait,
		}, logger)
		engineOpts = append(engineOpts, council.WithCommitObserver(publisher.NotifyAppend))
		go func() {
			if err := publisher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("anchor publisher stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("no witness configured, anchoring disabled")
	}

	engine := council.NewEngine(chain, gateway, evs, policy, logger, engineOpts...)

	go runEscalationTimeouts(ctx, escalations)

	server := api.NewServer(chain, verifier, engine, escalations, anchors, bundles, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("cognigate server listening", "port", cfg.Port,
		"db_driver", cfg.DBDriver, "evaluators", len(evs),
		"anchoring", cfg.WitnessURL != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newSigner(cfg *config.Config) (*crypto.Ed25519Signer, error) {
	if cfg.IssuerKeySeed == "" {
		slog.Warn("no issuer key seed configured, generating ephemeral key")
		return crypto.NewEd25519Signer(cfg.IssuerKeyID)
	}
	seed, err := hex.DecodeString(cfg.IssuerKeySeed)
	if err != nil {
		return nil, fmt.Errorf("decode issuer key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("issuer key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return crypto.NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed), cfg.IssuerKeyID), nil
}

func newStores(cfg *config.Config, signer crypto.Signer) (ledger.Ledger, anchorstore.Store, func(), error) {
	switch cfg.DBDriver {
	case "memory":
		return ledger.NewMemoryLedger(signer), anchorstore.NewMemoryStore(), func() {}, nil
	case "postgres", "sqlite":
		db, err := sql.Open(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
		}
		chain := ledger.NewSQLLedger(db, signer)
		if err := chain.Init(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ledger schema: %w", err)
		}
		anchors := anchorstore.NewSQLStore(db)
		if err := anchors.Init(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("anchor schema: %w", err)
		}
		return chain, anchors, func() { _ = db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown DB driver %q", cfg.DBDriver)
	}
}

// meteredLedger counts committed records without changing chain semantics.
// Anchoring and verdict counters piggyback on the meta-records the engine and
// publisher already append.
type meteredLedger struct {
	ledger.Ledger
	obs *observability.Provider
}

func (m meteredLedger) Append(ctx context.Context, cand contracts.Candidate) (contracts.Record, error) {
	ctx, done := m.obs.TrackOperation(ctx, "ledger.append")
	rec, err := m.Ledger.Append(ctx, cand)
	done(err)
	if err != nil {
		return rec, err
	}

	m.obs.RecordAppend(ctx, string(rec.RecordType))
	if rec.RecordType == contracts.RecordTypeAnchor {
		m.obs.RecordAnchor(ctx)
	}
	if d, ok := rec.Payload.(*contracts.DecisionPayload); ok {
		m.obs.RecordDecision(ctx, string(d.Verdict))
	}
	return rec, nil
}

// runEscalationTimeouts denies escalations that outlive their review window.
func runEscalationTimeouts(ctx context.Context, m *council.EscalationManager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckTimeouts(ctx)
		}
	}
}
