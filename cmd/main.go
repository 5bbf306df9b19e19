package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"deal-service/internal/clients"
	"deal-service/internal/config"
	"deal-service/internal/logger"
	"deal-service/internal/repository"
	"deal-service/internal/scheduler"
	"deal-service/internal/service"
	"deal-service/internal/transport/auth"
	"deal-service/internal/transport/queue"
	"deal-service/internal/transport/rest"
	"deal-service/internal/transport/websocket"
	"deal-service/pkg/database/postgres"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
}

func run(cfg config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer func() { _ = postgres.Close(db) }()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient, err := clients.NewRedisClient(ctx, clients.RedisConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Redis.Timeout) * time.Second,
		Prefix:      cfg.Redis.Prefix,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var (
		files        service.FileStore
		localStorage *clients.StorageClient
	)
	switch cfg.Storage.Driver {
	case "s3":
		s3, err := clients.NewS3Client(clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return err
		}
		files = s3
	default:
		localStorage, err = clients.NewLocalStorage(cfg.Storage.ExportDir, cfg.Storage.PublicPrefix, cfg.Storage.ExternalURL)
		if err != nil {
			return err
		}
		files = localStorage
	}

	hub := websocket.NewHub(log, cfg.AllowedOrigins)

	tx := repository.NewTransactor(db)
	deals := repository.NewDealRepository(db)
	contractors := repository.NewContractorRepository(db)
	roles := repository.NewRoleRepository(db)
	lookups := repository.NewLookupRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	contractorClient := clients.NewContractorClient(clients.ContractorConfig{
		BaseURL:      cfg.Contractor.URL,
		Timeout:      cfg.Contractor.Timeout,
		ServiceToken: cfg.Contractor.ServiceToken,
	})

	outboxSvc := service.NewOutboxService(outboxRepo, contractorClient, log)
	dealSvc := service.NewDealService(tx, deals, contractors, roles, lookups, outboxSvc, log)
	contractorSvc := service.NewContractorService(tx, deals, contractors, roles, outboxSvc, log)
	exportSvc := service.NewExportService(dealSvc, redisClient, files, clients.NewWebSocketClient(hub), cfg.ExportTTL, log)

	sched := scheduler.New(redisClient, log)
	if err := sched.Add(scheduler.ResendJob(cfg.ResendCron, cfg.ResendLeaseTTL, outboxSvc)); err != nil {
		return err
	}
	if localStorage != nil {
		if err := sched.Add(scheduler.CleanupJob(cfg.Storage.CleanupCron, cfg.Storage.MaxAge, localStorage, log)); err != nil {
			return err
		}
	}

	kafkaCfg := queue.KafkaConfig{
		Brokers:  queue.ParseBrokers(cfg.Kafka.Brokers),
		Topic:    cfg.Kafka.Topic,
		DLQTopic: cfg.Kafka.DLQTopic,
		GroupID:  cfg.Kafka.GroupID,
		Username: cfg.Kafka.Username,
		Password: cfg.Kafka.Password,
		CACert:   cfg.Kafka.CACert,
	}
	dialer := queue.NewDialer(kafkaCfg)
	reader := queue.NewReader(kafkaCfg, dialer)
	dlq := queue.NewDLQWriter(kafkaCfg, dialer)
	defer func() { _ = reader.Close() }()
	defer func() { _ = dlq.Close() }()
	listener := queue.NewListener(reader, dlq, contractorSvc, log)

	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	authMiddleware := auth.Middleware(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), log)

	var fileServer rest.FileStore
	if localStorage != nil {
		fileServer = localStorage
	}
	handler := rest.NewHandler(dealSvc, contractorSvc, exportSvc, fileServer, hub, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(handler.InitRouter(authMiddleware)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = listener.Run(ctx)
	}()
	sched.Start()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler shutdown", zap.Error(err))
	}
	wg.Wait()

	log.Info("shutdown complete")
	return nil
}

func initPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	return postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
