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

	"github.com/joho/godotenv"

	"github.com/faeln1/go-mockup-api/internal/app/controllers"
	"github.com/faeln1/go-mockup-api/internal/app/repositories"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/config"
	"github.com/faeln1/go-mockup-api/internal/platform/ai"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
	"github.com/faeln1/go-mockup-api/internal/platform/database"
	httpPlatform "github.com/faeln1/go-mockup-api/internal/platform/http"
	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
	"github.com/faeln1/go-mockup-api/pkg/eventlog"
	"github.com/faeln1/go-mockup-api/pkg/logger"
	storagepkg "github.com/faeln1/go-mockup-api/pkg/storage"
	minioStorage "github.com/faeln1/go-mockup-api/pkg/storage/minio"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.MustLoad()
	loggers := logger.New(cfg.LogLevel)
	log := loggers.App
	if envErr != nil {
		log.Warnf("could not load .env: %v", envErr)
	}
	log.Infof("configuration: driver=%s broker=%s env=%s", cfg.DBDriver, cfg.Realtime.Broker, cfg.Env)

	ctx := context.Background()

	var objectStorage storagepkg.Service
	if cfg.Storage.Enabled() {
		store, err := minioStorage.New(ctx, minioStorage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
			KeyPrefix: cfg.Storage.KeyPrefix,
		})
		if err != nil {
			fatal(log, "storage initialization error: %v", err)
		}
		objectStorage = store
		log.Infof("object storage enabled bucket=%s endpoint=%s", cfg.Storage.Bucket, cfg.Storage.Endpoint)
	}

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		fatal(log, "database connection error: %v", err)
	}
	defer closeDB(db, log)
	designRepo, err := repositories.NewSQLDesignRepo(db, repositories.Dialect(cfg.DBDriver))
	if err != nil {
		fatal(log, "repository initialization error: %v", err)
	}

	broker, presence, err := openRealtime(ctx, cfg.Realtime, loggers.App.Sub("Realtime"))
	if err != nil {
		fatal(log, "realtime broker error: %v", err)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			log.Warnf("error closing broker: %v", err)
		}
	}()

	providers := ai.NewRegistry()
	if cfg.AI.Enabled() {
		providers.Register(ai.NewHTTPProvider(ai.HTTPConfig{
			Name:     cfg.AI.Provider,
			Endpoint: cfg.AI.Endpoint,
			APIKey:   cfg.AI.APIKey,
			Model:    cfg.AI.Model,
			Timeout:  cfg.AI.Timeout,
		}, nil, loggers.App.Sub("AI")))
		log.Infof("ai provider %s enabled model=%s", cfg.AI.Provider, cfg.AI.Model)
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	if !issuer.Enabled() {
		log.Warnf("JWT_SECRET not set: only the master token is accepted")
	}

	designSvc := services.NewDesignService(designRepo)
	generationSvc := services.NewGenerationService(designSvc, providers, objectStorage, loggers.App.Sub("Generate"))
	assetSvc := services.NewAssetService(designSvc, objectStorage)
	dispatcher := services.NewDeployDispatcher(cfg.DeployHooks(), cfg.DeployToken, nil, loggers.App.Sub("Deploy"))
	deploySvc := services.NewDeployService(designSvc, repositories.NewInMemoryDeploymentRepo(), dispatcher, loggers.App.Sub("Deploy"))
	registry := services.NewRoomRegistry(presence, cfg.Realtime.PresenceTTL, loggers.App.Sub("Rooms"))
	journal := eventlog.NewWriter(cfg.EventLogDir, loggers.App.Sub("EventLog"))

	roomCtrl := controllers.NewRoomController(controllers.RoomControllerConfig{
		Broker:   broker,
		Registry: registry,
		Designs:  designSvc,
		Journal:  journal,
		Session: services.SessionOptions{
			DedupeUsers:        cfg.Realtime.DedupeUsers,
			NotifyUsersOnLeave: cfg.Realtime.NotifyUsersOnLeave,
			QueueSize:          cfg.Realtime.OutboundQueue,
		},
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        loggers.App.Sub("Gateway"),
	})

	router := httpPlatform.NewRouter(httpPlatform.RouterConfig{
		AuthCtrl:      controllers.NewAuthController(issuer),
		ProjectCtrl:   controllers.NewProjectController(designSvc),
		DesignCtrl:    controllers.NewDesignController(designSvc, generationSvc, assetSvc, deploySvc),
		RoomCtrl:      roomCtrl,
		Registry:      registry,
		Issuer:        issuer,
		Logger:        loggers.HTTP,
		SwaggerEnable: cfg.SwaggerEnable,
		MasterToken:   cfg.MasterToken,
		Features: map[string]bool{
			"designs":    true,
			"realtime":   true,
			"generation": cfg.AI.Enabled(),
			"assets":     objectStorage != nil,
			"deploy":     len(dispatcher.Targets()) > 0,
			"jwt":        issuer.Enabled(),
			"eventLog":   journal.Enabled(),
		},
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Infof("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}

// openRealtime picks the broker named by REALTIME_BROKER. Presence lives in
// Redis when the broker does, in memory otherwise.
func openRealtime(ctx context.Context, cfg config.RealtimeConfig, log logger.Logger) (realtime.Broker, realtime.PresenceStore, error) {
	switch cfg.Broker {
	case "redis":
		b, err := realtime.NewRedisBroker(ctx, realtime.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log.Sub("Redis"))
		if err != nil {
			return nil, nil, err
		}
		log.Infof("redis broker connected addr=%s", cfg.RedisAddr)
		return b, realtime.NewRedisPresence(b.Client()), nil
	case "nats":
		b, err := realtime.NewNATSBroker(realtime.NATSConfig{
			Servers: cfg.NATSServers,
			Name:    cfg.NATSName,
		}, log.Sub("NATS"))
		if err != nil {
			return nil, nil, err
		}
		log.Infof("nats broker connected servers=%v", cfg.NATSServers)
		return b, realtime.NewMemoryPresence(), nil
	default:
		log.Infof("in-process broker: rooms are not shared across instances")
		return realtime.NewMemoryBroker(cfg.OutboundQueue), realtime.NewMemoryPresence(), nil
	}
}

func closeDB(db *sql.DB, log logger.Logger) {
	if err := db.Close(); err != nil {
		log.Warnf("error closing database: %v", err)
	}
}

func fatal(log logger.Logger, msg string, args ...any) {
	log.Errorf(msg, args...)
	os.Exit(1)
}
