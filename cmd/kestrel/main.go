// Kestrel - Synthetic identity and bust-out fraud detection.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bureau"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/graphstore"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/signals"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnv(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"graph_store", cfg.GraphStore.Type,
		"velocity_store", cfg.Velocity.Type,
		"bureau", cfg.Bureau.Type,
		"cluster_algorithm", cfg.Cluster.Algorithm,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		fatal("failed to initialize repository", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		fatal("failed to initialize cache", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		fatal("failed to initialize event bus", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	graphStore, err := graphstore.New(cfg.GraphStore)
	if err != nil {
		fatal("failed to initialize graph store", err)
	}
	defer graphStore.Close()
	slog.Info("graph store initialized", "type", cfg.GraphStore.Type)

	velocityStore, err := velocity.NewStore(cfg.Velocity)
	if err != nil {
		fatal("failed to initialize velocity store", err)
	}
	defer velocityStore.Close()
	slog.Info("velocity store initialized", "type", cfg.Velocity.Type)

	bureauConn, err := bureau.New(cfg.Bureau, cacheImpl)
	if err != nil {
		fatal("failed to initialize bureau connector", err)
	}
	slog.Info("bureau connector initialized", "type", cfg.Bureau.Type)

	engine, err := rules.NewEngine(100)
	if err != nil {
		fatal("failed to initialize rule engine", err)
	}
	defer engine.Close()
	if err := loadRules(ctx, repo, engine); err != nil {
		fatal("failed to load rules", err)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	synthetic := scoring.NewSyntheticScorer(cfg.Scoring)
	bustOut := scoring.NewBustOutPredictor(cfg.BustOut)
	if path := os.Getenv("KESTREL_SYNTHETIC_MODEL"); path != "" {
		m, err := scoring.LoadLogisticModel(path)
		if err != nil {
			fatal("failed to load synthetic model", err)
		}
		synthetic.WithModel(m)
		slog.Info("synthetic model loaded", "name", m.Name)
	}
	if path := os.Getenv("KESTREL_BUSTOUT_MODEL"); path != "" {
		m, err := scoring.LoadLogisticModel(path)
		if err != nil {
			fatal("failed to load bust-out model", err)
		}
		bustOut.WithModel(m)
		slog.Info("bust-out model loaded", "name", m.Name)
	}

	extractor := graph.NewExtractor(graphStore, time.Minute)
	velocityAnalyzer := velocity.NewAnalyzer(velocityStore, cfg.Velocity)
	auDetector := signals.NewAUDetector(bureauConn, graphStore)
	if cfg.Velocity.CleanupInterval > 0 {
		go velocityAnalyzer.RunCleanup(ctx, cfg.Velocity.CleanupInterval)
	}

	detector := ensemble.NewDetector(cfg.Scoring, ensemble.Dependencies{
		Graph:        graphStore,
		Extractor:    extractor,
		Velocity:     velocityAnalyzer,
		Credit:       signals.NewCreditAnalyzer(bureauConn),
		AU:           auDetector,
		Applications: signals.NewApplicationCounter(cacheImpl),
		Synthetic:    synthetic,
		BustOut:      bustOut,
		Rules:        engine,
	})
	pipeline := ensemble.NewPipeline(detector, repo, busImpl)
	clusters := graph.NewClusterService(
		graph.NewClusterDetector(graphStore, cfg.Cluster),
		graphStore, repo, busImpl, extractor,
	)

	validator, issuance, err := loadSSNReference()
	if err != nil {
		fatal("failed to load SSN reference data", err)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, pipeline, clusters)

		var tenantIDs []string
		for _, t := range strings.Split(os.Getenv("KESTREL_TENANTS"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenantIDs = append(tenantIDs, t)
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Graph:        graphStore,
		Pipeline:     pipeline,
		Engine:       engine,
		Clusters:     clusters,
		Extractor:    extractor,
		Velocity:     velocityAnalyzer,
		AU:           auDetector,
		SSNValidator: validator,
		Issuance:     issuance,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fatal("server failed", err)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

// applyEnv overrides configuration from the environment.
func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.GraphStore.Type = "neo4j"
		cfg.GraphStore.Neo4jURI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		cfg.GraphStore.Neo4jUser = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.GraphStore.Neo4jPassword = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Velocity.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_BUREAU_FIXTURES"); v != "" {
		cfg.Bureau.Type = "static"
		cfg.Bureau.FixturesPath = v
	}
	if v := os.Getenv("KESTREL_CLUSTER_ALGORITHM"); v != "" {
		cfg.Cluster.Algorithm = v
	}
	if v := os.Getenv("KESTREL_CLUSTER_RESOLUTION"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			slog.Warn("ignoring invalid cluster resolution", "value", v)
		} else {
			cfg.Cluster.Resolution = r
		}
	}
	if v := os.Getenv("KESTREL_VELOCITY_CLEANUP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("ignoring invalid velocity cleanup interval", "value", v)
		} else {
			cfg.Velocity.CleanupInterval = d
		}
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
}

// loadSSNReference reads the optional SSN area issuance map and Death Master
// hash list. Structural SSN validation is always on.
func loadSSNReference() (*signals.SSNValidator, *signals.IssuanceChecker, error) {
	var deathMaster []string
	if path := os.Getenv("KESTREL_DEATH_MASTER"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if h := strings.TrimSpace(sc.Text()); h != "" && !strings.HasPrefix(h, "#") {
				deathMaster = append(deathMaster, h)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to read death master file: %w", err)
		}
		slog.Info("death master hashes loaded", "count", len(deathMaster))
	}

	var issuance *signals.IssuanceChecker
	if path := os.Getenv("KESTREL_SSN_AREA_MAP"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()

		issuance, err = signals.LoadIssuanceChecker(f)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("SSN area map loaded", "path", path)
	}

	return signals.NewSSNValidator(deathMaster), issuance, nil
}

// loadRules loads global rules from the database. An empty database is
// seeded with the stock policy rules.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	defaults := rules.DefaultRules()
	for _, r := range defaults {
		r.TenantID = api.GlobalTenantID
		if err := repo.SaveRuleConfig(ctx, api.GlobalTenantID, r); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
	}
	slog.Info("seeded default rules", "count", len(defaults))
	return engine.LoadRules(defaults)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL  synthetic identity and bust-out detection")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                    - Score an application")
	fmt.Println("    POST /score/batch              - Score up to 1000 applications")
	fmt.Println("    GET  /scores/{id}              - Get a score by ID")
	fmt.Println("    GET  /identities/{id}/features - Graph features of an identity")
	fmt.Println("    GET  /identities/{id}/subgraph - Identity neighbourhood")
	fmt.Println("    GET  /identities/{id}/shared   - Identities sharing PII")
	fmt.Println("    POST /bustout/predict          - Predict bust-out for an account")
	fmt.Println("    POST /elements/history         - Identities seen with a PII element")
	fmt.Println("    POST /au/rings                 - Shared authorized-user holders")
	fmt.Println("    POST /clusters/run             - Run cluster detection")
	fmt.Println("    GET  /clusters                 - Latest cluster run")
	fmt.Println("    GET  /clusters/{id}            - Get a cluster")
	fmt.Println("    GET  /rules                    - List rules")
	fmt.Println("    POST /rules                    - Create a rule")
	fmt.Println("    POST /rules/reload             - Hot-reload rules from database")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
