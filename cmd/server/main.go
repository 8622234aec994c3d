package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"immigo/internal/checklist"
	checklisthandler "immigo/internal/checklist/handler"
	"immigo/internal/detect"
	detecthandler "immigo/internal/detect/handler"
	httpapi "immigo/internal/http"
	"immigo/internal/notify"
	notifyhandler "immigo/internal/notify/handler"
	"immigo/internal/platform/config"
	"immigo/internal/platform/httpserver"
	"immigo/internal/platform/logger"
	platformredis "immigo/internal/platform/redis"
	"immigo/internal/policy"
	policyhandler "immigo/internal/policy/handler"
	policystore "immigo/internal/policy/store"
	"immigo/internal/token"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		db         *sql.DB
		snapshots  policystore.SnapshotStore
		checklists checklist.Store
		prefs      notify.PreferenceStore
		ledger     detect.Ledger
	)
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		snapshots = policystore.NewPostgres(db)
		checklists = checklist.NewPostgres(db)
		prefs = notify.NewPostgres(db)
		ledger = detect.NewPostgresLedger(db)
	} else {
		log.Info("postgres not configured, using in-memory stores")
		snapshots = policystore.NewInMemoryStore()
		checklists = checklist.NewInMemoryStore()
		prefs = notify.NewInMemoryPreferenceStore()
		ledger = detect.NewInMemoryLedger()
	}

	// Leases: Redis coordinates across replicas; single-process fallback in dev.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	var lease detect.Lease
	if redisClient != nil {
		defer redisClient.Close()
		lease = detect.NewRedisLease(redisClient)
	} else {
		log.Info("redis not configured, using in-process leases")
		lease = detect.NewInMemoryLease()
	}

	// Notifications: Kafka when brokers are configured, log-only otherwise.
	var notifier notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := notify.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		notifier = kafkaPublisher
	} else {
		log.Info("kafka not configured, notifications are log-only")
		notifier = notify.NewLogNotifier(log)
	}

	reconciler, err := checklist.NewReconciler(checklists, nil,
		checklist.WithLogger(log),
		checklist.WithMaxAttempts(cfg.Detect.ReconcileAttempts),
	)
	if err != nil {
		log.Error("build reconciler", "error", err)
		os.Exit(1)
	}

	orchestrator, err := detect.NewOrchestrator(detect.Deps{
		Source:     policy.NewHTTPSource(cfg.PolicySourceURL, nil),
		Snapshots:  snapshots,
		Ledger:     ledger,
		Lease:      lease,
		Checklists: checklists,
		Reconciler: reconciler,
		Prefs:      prefs,
		Notifier:   notifier,
		Metrics:    detect.NewMetrics(),
	}, cfg.Detect, log)
	if err != nil {
		log.Error("build orchestrator", "error", err)
		os.Exit(1)
	}

	scheduler := detect.NewScheduler(orchestrator, cfg.Detect, log)
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	tokenService := token.NewService(cfg.JWTSigningKey, "immigo")

	routerDeps := httpapi.Deps{
		Validator: token.NewMiddlewareAdapter(tokenService),
		Logger:    log,
		Protected: []httpapi.Registrar{
			policyhandler.New(snapshots, log),
			checklisthandler.New(checklists, log),
			notifyhandler.New(prefs, log),
		},
		Admin: []httpapi.Registrar{
			detecthandler.New(orchestrator, log),
		},
		AdminToken: cfg.AdminToken,
	}
	if db != nil {
		routerDeps.Postgres = pingChecker{db}
	}
	if redisClient != nil {
		routerDeps.Redis = redisClient
	}

	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(routerDeps))

	log.Info("starting immigo", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// pingChecker adapts *sql.DB to the router's health interface.
type pingChecker struct {
	db *sql.DB
}

func (p pingChecker) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
