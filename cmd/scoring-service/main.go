package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/comorbidity/pkg/clinical"
	"github.com/synaptica-ai/comorbidity/pkg/common/config"
	"github.com/synaptica-ai/comorbidity/pkg/common/database"
	"github.com/synaptica-ai/comorbidity/pkg/common/kafka"
	"github.com/synaptica-ai/comorbidity/pkg/common/logger"
	"github.com/synaptica-ai/comorbidity/pkg/common/middleware"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/observability/metrics"
	"github.com/synaptica-ai/comorbidity/pkg/scoring"
	"github.com/synaptica-ai/comorbidity/pkg/storage"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

const maxBodyBytes = 10 << 20

func main() {
	logger.Init()
	cfg := config.Load()

	// No request is served until every reference table has validated.
	catalog, err := terminology.Load(cfg.ReferenceTablesDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load reference tables")
	}
	engine, err := scoring.NewEngine(catalog, scoring.Options{
		Primary: scoring.PrimaryPolicy{
			ExcludeBySeqNum: cfg.ExcludeBySeqNum,
			PrimarySeqNum:   cfg.PrimarySeqNum,
		},
		HFRSLookback: cfg.HFRSLookback,
		Workers:      cfg.ScoringWorkers,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build scoring engine")
	}

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	var opts []scoring.RunnerOption
	if cfg.ResultPersistEnabled {
		repo := storage.NewResultRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate score tables")
		}
		opts = append(opts, scoring.WithResultStore(repo))
	}
	if cfg.ResultCacheEnabled {
		client, err := database.OpenRedis(context.Background(), cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("Redis unreachable, result cache will retry per request")
		}
		defer client.Close()
		opts = append(opts, scoring.WithCache(storage.NewResultCache(client, cfg.ResultCacheTTL)))
	}
	if cfg.ResultPublishEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ScoringResultTopic)
		defer producer.Close()
		opts = append(opts, scoring.WithPublisher(producer))
	}

	runner := scoring.NewRunner(engine, clinical.NewRepository(db), opts...)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.BodyLimit(maxBodyBytes))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(metrics.Middleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	scoring.NewHandler(runner).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var wg sync.WaitGroup
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ScoringRequestTopic, cfg.KafkaGroupID)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			return handleScoreRequest(ctx, runner, event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Scoring request consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"addr":    address,
			"schemes": len(catalog.Schemes()),
		}).Info("Scoring service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start scoring service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down scoring service...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Scoring service forced to shutdown")
	}
	wg.Wait()
	if err := consumer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close scoring request consumer")
	}
	logger.Log.Info("Scoring service stopped")
}

// handleScoreRequest acknowledges malformed requests; scoring faults are
// carried in the published results rather than retried.
func handleScoreRequest(ctx context.Context, runner *scoring.Runner, event models.Event) error {
	log := logger.Log.WithField("event_id", event.ID)
	if event.Type != kafka.EventScoreRequested {
		log.WithField("type", event.Type).Debug("Ignoring event")
		return nil
	}
	var batch models.BatchScoreRequest
	if err := kafka.DecodeData(event, &batch); err != nil {
		log.WithError(err).Warn("Dropping malformed score request")
		return nil
	}
	if batch.RequestedBy == "" {
		batch.RequestedBy = event.Source
	}
	runner.Run(ctx, batch)
	return nil
}
