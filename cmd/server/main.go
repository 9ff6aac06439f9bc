// Command server runs the civil death registration service: the attestation
// ledger, the downstream effect dispatcher, and the periodic liveness
// verification machinery, behind one HTTP surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"registrum/internal/collaborators"
	"registrum/internal/commitlog"
	effectsdispatcher "registrum/internal/effects/dispatcher"
	effectsstore "registrum/internal/effects/store"
	identityhandler "registrum/internal/identity/handler"
	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	"registrum/internal/jwtauth"
	ledgerhandler "registrum/internal/ledger/handler"
	ledgermodels "registrum/internal/ledger/models"
	ledgerservice "registrum/internal/ledger/service"
	ledgerstore "registrum/internal/ledger/store"
	livenesshandler "registrum/internal/liveness/handler"
	livenessservice "registrum/internal/liveness/service"
	livenessstore "registrum/internal/liveness/store"
	"registrum/internal/platform/config"
	"registrum/internal/platform/httpserver"
	"registrum/internal/platform/logger"
	"registrum/internal/platform/metrics"
	platformpostgres "registrum/internal/platform/postgres"
	"registrum/internal/platform/ratelimit"
	platformredis "registrum/internal/platform/redis"
	schedulerservice "registrum/internal/scheduler/service"
	schedulerstore "registrum/internal/scheduler/store"
	httptransport "registrum/internal/transport/http"
	id "registrum/pkg/domain"
	auditpublisher "registrum/pkg/platform/audit/publisher"
	auditmemory "registrum/pkg/platform/audit/store/memory"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	// Commit log: Kafka when brokers are configured, in-process otherwise.
	var commits commitlog.Committer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaLog, err := commitlog.NewKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafkaLog.Close()
		commits = kafkaLog
		log.Info("commit log backed by kafka", "topic", cfg.KafkaTopic)
	} else {
		commits = commitlog.NewMemory()
		log.Warn("commit log is in-memory; configure REGISTRUM_KAFKA_BROKERS for durability")
	}

	auditor := auditpublisher.NewPublisher(auditmemory.NewInMemoryStore(),
		auditpublisher.WithAsyncBuffer(256))
	defer auditor.Close()

	// Stores: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		recordStore   ledgerservice.Store
		personStore   identityservice.Store
		scheduleStore schedulerservice.Store
	)
	db, err := platformpostgres.Open(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		for _, schema := range []string{ledgerstore.Schema, identitystore.Schema, schedulerstore.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return err
			}
		}
		recordStore = ledgerstore.NewPostgres(db)
		personStore = identitystore.NewPostgres(db)
		scheduleStore = schedulerstore.NewPostgres(db)
		log.Info("stores backed by postgres")
	} else {
		recordStore = ledgerstore.NewMemory()
		personStore = identitystore.NewMemory()
		scheduleStore = schedulerstore.NewMemory()
		log.Warn("stores are in-memory; configure REGISTRUM_POSTGRES_DSN for durability")
	}

	var markers effectsstore.MarkerStore
	var authLimiter ratelimit.Store
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		markers = effectsstore.NewRedisMarkers(redisClient)
		authLimiter = ratelimit.NewRedis(redisClient)
	} else {
		markers = effectsstore.NewMemoryMarkers()
		authLimiter = ratelimit.NewMemory()
	}

	// Simulated collaborators; production deployments swap in real adapters.
	credentials := collaborators.NewMockCredentialStore()
	seedDemoEntities(credentials, log)
	proofs := collaborators.MockProofService{Latency: 2 * time.Second}
	certificates := collaborators.NewMockCertificateIssuer()
	pensions := collaborators.NewMockPensionLedger()

	tokens := jwtauth.NewService(cfg.JWTSigningKey, "registrum", "registrum-api")

	identity := identityservice.NewService(personStore)

	events := make(chan ledgermodels.RecordFinalized, 128)
	ledger := ledgerservice.NewService(
		recordStore, identity, commits, auditor, m, log, cfg.QuorumThreshold, events)

	liveness := livenessservice.NewService(
		livenessstore.NewMemory(), proofs, commits, auditor, m, log,
		cfg.SessionTTL, cfg.ProofDeadline)

	scheduler := schedulerservice.NewService(
		scheduleStore, liveness, identity, ledger, commits, auditor, m, log,
		cfg.VerificationInterval, cfg.FailureCeiling, cfg.DueSoonWindow)
	liveness.SetOutcomeSink(scheduler)

	dispatcher := effectsdispatcher.New(
		events, markers, effectsstore.NewMemoryStatuses(),
		certificates, pensions, identity, commits, auditor, m, log,
		cfg.EffectMaxAttempts, cfg.EffectBaseBackoff)
	dispatcher.SetScheduleRemover(scheduler)

	router := httptransport.NewRouter(
		jwtauth.NewHandler(tokens, credentials, identity, log,
			jwtauth.WithRateLimit(authLimiter, cfg.AuthRateLimit, cfg.AuthRateWindow)),
		identityhandler.New(identity, scheduler, log, m, tokens),
		ledgerhandler.New(ledger, dispatcher, log, m, tokens),
		livenesshandler.New(liveness, scheduler, log, m, tokens),
	)
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error { return dispatcher.Run(ctx) })
	group.Go(func() error { return liveness.Run(ctx, 15*time.Second) })
	group.Go(func() error { return scheduler.Run(ctx, time.Hour) })
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// seedDemoEntities registers fixed institution credentials so the service is
// exercisable without an external credential directory.
func seedDemoEntities(credentials *collaborators.MockCredentialStore, log *slog.Logger) {
	demo := []struct {
		identity id.EntityIdentity
		clientID string
		secret   string
	}{
		{id.EntityIdentity{Role: id.RoleHospital, EntityID: "hosp-central", Name: "Central Hospital"}, "hospital-demo", "hospital-demo-secret"},
		{id.EntityIdentity{Role: id.RoleMunicipality, EntityID: "muni-01", Name: "City Hall"}, "municipality-demo", "municipality-demo-secret"},
		{id.EntityIdentity{Role: id.RoleReligious, EntityID: "rel-stmary", Name: "St Mary Parish"}, "religious-demo", "religious-demo-secret"},
	}
	for _, entity := range demo {
		if err := credentials.RegisterEntity(entity.identity, entity.clientID, entity.secret); err != nil {
			log.Error("failed to seed demo entity", "client_id", entity.clientID, "error", err.Error())
		}
	}
	log.Warn("demo institution credentials are active; replace the credential store in production")
}
