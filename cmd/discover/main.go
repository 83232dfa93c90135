// Command discover is the engine's single executable surface (spec §6):
// a batch entry point that runs a list of entities through the
// Discovery Orchestrator, checkpointing progress so a crashed or killed
// run can resume where it left off.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/scoutline/discovery/internal/catalog"
	"github.com/scoutline/discovery/internal/circuitbreaker"
	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/internal/config"
	"github.com/scoutline/discovery/pkg/batch"
	"github.com/scoutline/discovery/pkg/binding"
	"github.com/scoutline/discovery/pkg/budget"
	"github.com/scoutline/discovery/pkg/hypothesis"
	"github.com/scoutline/discovery/pkg/intelligence"
	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/metrics"
	"github.com/scoutline/discovery/pkg/orchestrator"
	"github.com/scoutline/discovery/pkg/promptbuilder"
	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/scorer"
	"github.com/scoutline/discovery/pkg/scrape"
	"github.com/scoutline/discovery/pkg/search"
	"github.com/scoutline/discovery/pkg/store"
	"github.com/scoutline/discovery/pkg/types"
	"github.com/scoutline/discovery/pkg/verifier"
)

// Exit codes per spec §6.
const (
	exitOK           = 0
	exitHardError    = 1
	exitPartialFailure = 2
)

type flags struct {
	batchSize     int
	resume        bool
	entities      string
	maxIterations int
	costCap       float64
	configPath    string
	catalogPath   string
	checkpointPath string
}

func parseFlags(args []string) (flags, error) {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	f := flags{}
	fs.IntVar(&f.batchSize, "batch-size", 0, "maximum number of entities to process this run (0 = all pending)")
	fs.BoolVar(&f.resume, "resume", false, "resume from the existing checkpoint file instead of starting over")
	fs.StringVar(&f.entities, "entities", "", "comma-separated entity IDs to restrict this run to")
	fs.IntVar(&f.maxIterations, "max-iterations", 0, "override budget.max_iterations_per_entity (0 = use config)")
	fs.Float64Var(&f.costCap, "cost-cap", 0, "override budget.cost_cap_usd (0 = use config)")
	fs.StringVar(&f.configPath, "config", "config.yaml", "path to the engine's YAML config file")
	fs.StringVar(&f.catalogPath, "catalog", "catalog.json", "path to the entity/template catalog document")
	fs.StringVar(&f.checkpointPath, "checkpoint", "checkpoint.json", "path to the batch checkpoint file")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(exitHardError)
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	os.Exit(run(f, log))
}

func run(f flags, log *logrus.Entry) int {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.WithError(err).Error("failed to load config")
		return exitHardError
	}
	configureLogging(cfg.Logging)

	if f.maxIterations > 0 {
		cfg.Budget.MaxIterationsPerEntity = f.maxIterations
	}
	if f.costCap > 0 {
		cfg.Budget.CostCapUSD = f.costCap
	}

	cat, err := catalog.Load(f.catalogPath)
	if err != nil {
		log.WithError(err).Error("failed to load entity/template catalog")
		return exitHardError
	}

	entities := cat.Entities()
	if f.entities != "" {
		entities = cat.ByID(strings.Split(f.entities, ","))
	}
	if f.batchSize > 0 && f.batchSize < len(entities) {
		entities = entities[:f.batchSize]
	}
	if len(entities) == 0 {
		log.Warn("no entities selected for this run")
		return exitOK
	}

	if !f.resume {
		if err := os.Remove(f.checkpointPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Error("failed to clear checkpoint for a fresh run")
			return exitHardError
		}
	}

	sysClock := clock.NewSystem()
	reg := metrics.New()

	stores, closeStores, err := buildStores(cfg.Store, cfg.Orchestrator.DryRun, log)
	if err != nil {
		log.WithError(err).Error("failed to open store")
		return exitHardError
	}
	defer closeStores()

	cascade, err := buildCascade(context.Background(), cfg.LLM)
	if err != nil {
		log.WithError(err).Error("failed to build LLM cascade")
		return exitHardError
	}

	breaker := circuitbreaker.NewManager(gobreaker.Settings{
		Name:        "discovery",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	})

	searchClient, err := buildSearchClient(cfg.Search, breaker, log)
	if err != nil {
		log.WithError(err).Error("failed to build search client")
		return exitHardError
	}

	scrapeClient := scrape.New(scrape.NewHTTPBackend(nil), breaker)
	scoreEngine := scorer.New(scorer.DefaultTables())
	verif := verifier.NewWithDefaultClient(breaker, scoreEngine)

	prompts := promptbuilder.New()
	hypotheses := hypothesis.New(stores.hypotheses)
	bindings := binding.New(stores.bindings, sysClock)
	intel := intelligence.New(stores.bindings, stores.clusters, sysClock)

	orch := orchestrator.New(ralph.DefaultNoveltyConfig())

	runner := &entityRunner{
		orch:       orch,
		cat:        cat,
		budgetCfg:  cfg.Budget,
		search:     searchClient,
		scorer:     scoreEngine,
		scrape:     scrapeClient,
		verifier:   verif,
		prompts:    prompts,
		cascade:    cascade,
		hypotheses: hypotheses,
		bindings:   bindings,
		intel:      intel,
		episodes:   stores.episodes,
		clock:      sysClock,
		metrics:    reg,
	}

	maxConcurrent := int64(cfg.Orchestrator.MaxConcurrentEntities)
	batchOrch := batch.New(runner, f.checkpointPath, maxConcurrent, sysClock)

	srv := startAmbientServer(cfg.Server, reg, log)
	defer shutdownAmbientServer(srv, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := batchOrch.Run(ctx, entities)
	if err != nil {
		log.WithError(err).Error("batch run aborted")
		return exitHardError
	}

	for _, d := range result.Dossiers {
		if serr := persistDossier(ctx, stores, d); serr != nil {
			log.WithError(serr).WithField("entity_id", d.EntityID).Error("failed to persist dossier")
			result.FailedEntities = append(result.FailedEntities, d.EntityID)
		}
		reg.DossiersEmitted.WithLabelValues(string(d.ConfidenceBand)).Inc()
	}

	log.WithField("succeeded", len(result.Dossiers)).WithField("failed", len(result.FailedEntities)).Info("run complete")

	if len(result.FailedEntities) > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func configureLogging(cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

// entityRunner adapts one entity's discovery into the batch.EntityRunner
// contract, assembling a fresh orchestrator.Run per entity (a Run isn't
// safe to reuse: its Budget controller is scoped to one entity).
type entityRunner struct {
	orch       *orchestrator.Orchestrator
	cat        *catalog.Catalog
	budgetCfg  budget.Config
	search     *search.Client
	scorer     *scorer.Scorer
	scrape     *scrape.Client
	verifier   *verifier.Verifier
	prompts    *promptbuilder.Builder
	cascade    *llm.Cascade
	hypotheses *hypothesis.Manager
	bindings   *binding.Manager
	intel      *intelligence.Engine
	episodes   orchestrator.EpisodeSink
	clock      clock.Clock
	metrics    *metrics.Registry
}

func (r *entityRunner) Run(ctx context.Context, entity types.Entity) (types.Dossier, error) {
	tmpl, err := r.cat.SelectTemplate(entity)
	if err != nil {
		return types.Dossier{}, err
	}

	start := time.Now()
	defer func() { r.metrics.EntityDuration.Observe(time.Since(start).Seconds()) }()

	run := orchestrator.Run{
		Entity:       entity,
		Template:     tmpl,
		Budget:       budget.New(r.budgetCfg, r.clock, entity.EntityID),
		Search:       r.search,
		Scorer:       r.scorer,
		Scrape:       r.scrape,
		Verifier:     r.verifier,
		Prompts:      r.prompts,
		Cascade:      r.cascade,
		Hypotheses:   r.hypotheses,
		Bindings:     r.bindings,
		Intelligence: r.intel,
		Episodes:     r.episodes,
		Clock:        r.clock,
	}
	return r.orch.Discover(ctx, run)
}

// outcomeRecorder is the subset of pkg/store's Postgres and in-memory
// outcome stores this command needs.
type outcomeRecorder interface {
	RecordOutcome(ctx context.Context, rec types.OutcomeRecord) error
}

func persistDossier(ctx context.Context, stores *storeSet, d types.Dossier) error {
	if err := store.ValidateDossier(ctx, d); err != nil {
		return fmt.Errorf("validating dossier: %w", err)
	}
	return stores.outcomes.RecordOutcome(ctx, types.OutcomeRecord{
		SignalID:   d.EntityID + ":" + d.TemplateID,
		EntityID:   d.EntityID,
		Status:     types.OutcomePending,
		RecordedAt: d.CompletedAt,
	})
}

// storeSet bundles every store collaborator the batch run needs as
// interfaces, so dry-run mode can swap in the in-memory variants without
// touching any caller.
type storeSet struct {
	episodes   orchestrator.EpisodeSink
	bindings   binding.Store
	hypotheses hypothesis.Store
	clusters   intelligence.Store
	outcomes   outcomeRecorder
}

func buildStores(cfg config.StoreConfig, dryRun bool, log *logrus.Entry) (*storeSet, func(), error) {
	if dryRun {
		log.Info("dry-run mode: using in-memory stores, nothing is persisted")
		return &storeSet{
			episodes:   store.NewMemoryEpisodeStore(),
			bindings:   store.NewMemoryBindingStore(),
			hypotheses: store.NewMemoryHypothesisStore(),
			clusters:   store.NewMemoryClusterStore(),
			outcomes:   store.NewMemoryOutcomeStore(),
		}, func() {}, nil
	}

	db, err := store.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening store connection: %w", err)
	}
	if err := store.Migrate(db.DB); err != nil {
		db.Close()
		return nil, func() {}, fmt.Errorf("applying migrations: %w", err)
	}

	return &storeSet{
		episodes:   store.NewEpisodeStore(db),
		bindings:   store.NewBindingStore(db),
		hypotheses: store.NewHypothesisStore(db),
		clusters:   store.NewClusterStore(db),
		outcomes:   store.NewOutcomeStore(db),
	}, func() { db.Close() }, nil
}

func buildCascade(ctx context.Context, cfg config.LLMConfig) (*llm.Cascade, error) {
	cheap := llm.NewLocalAIJudge(cfg.CheapEndpoint, cfg.CheapModel, nil, 0.001)

	var mid llm.Judge
	switch cfg.MidProvider {
	case "anthropic":
		apiKey := os.Getenv(cfg.MidAPIKeyEnv)
		mid = llm.NewAnthropicJudge(apiKey, cfg.MidModel, int64(cfg.MaxTokens), 0.000003, 0.000015)
	case "localai":
		mid = llm.NewLocalAIJudge(cfg.CheapEndpoint, cfg.MidModel, nil, 0.01)
	default:
		return nil, fmt.Errorf("unsupported LLM mid-tier provider %q", cfg.MidProvider)
	}

	var expensive llm.Judge
	switch cfg.ExpensiveProvider {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ExpensiveRegion))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for bedrock tier: %w", err)
		}
		brClient := bedrockruntime.NewFromConfig(awsCfg)
		expensive = llm.NewBedrockJudge(brClient, cfg.ExpensiveModel, cfg.MaxTokens, 0.000015, 0.000075)
	case "localai":
		expensive = llm.NewLocalAIJudge(cfg.CheapEndpoint, cfg.ExpensiveModel, nil, 0.05)
	default:
		return nil, fmt.Errorf("unsupported LLM expensive-tier provider %q", cfg.ExpensiveProvider)
	}

	return llm.NewCascade(cheap, mid, expensive), nil
}

func buildSearchClient(cfg config.SearchConfig, breaker *circuitbreaker.Manager, log *logrus.Entry) (*search.Client, error) {
	var engines []search.Engine
	for _, name := range cfg.Engines {
		switch name {
		case "google":
			engines = append(engines, search.NewGoogleEngine(os.Getenv(cfg.APIKeyEnv), os.Getenv("SCOUT_GOOGLE_CX"), nil))
		case "bing":
			engines = append(engines, search.NewBingEngine(
				os.Getenv("SCOUT_BING_TOKEN_URL"), os.Getenv("SCOUT_BING_CLIENT_ID"), os.Getenv("SCOUT_BING_CLIENT_SECRET"), nil))
		case "duckduckgo":
			engines = append(engines, search.NewDuckDuckGoEngine(nil))
		default:
			log.WithField("engine", name).Warn("unknown search engine in config, skipping")
		}
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no configured search engines resolved from %v", cfg.Engines)
	}

	var cache search.Cache
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		cache = search.NewRedisCache(rdb)
	} else {
		cache = search.NewMemoryCache()
	}

	return search.New(engines, cache, breaker, cfg.CacheTTL), nil
}

// startAmbientServer serves /healthz and /metrics on the configured health
// port, separate from any batch-internal traffic (spec §4.C12 domain
// stack: ambient observability on the batch process).
func startAmbientServer(cfg config.ServerConfig, reg *metrics.Registry, log *logrus.Entry) *http.Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", reg.Handler())

	srv := &http.Server{Addr: ":" + cfg.HealthPort, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("ambient http server stopped unexpectedly")
		}
	}()
	return srv
}

func shutdownAmbientServer(srv *http.Server, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("ambient http server did not shut down cleanly")
	}
}
