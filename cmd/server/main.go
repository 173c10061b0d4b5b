// Command server starts the ClipRiver API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipriver/internal/api"
	"clipriver/internal/auth"
	"clipriver/internal/mail"
	"clipriver/internal/netinfo"
	"clipriver/internal/observability/logging"
	"clipriver/internal/observability/metrics"
	"clipriver/internal/server"
	"clipriver/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mediaDir := flag.String("media-dir", "", "directory for uploaded video files")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory, redis, or postgres)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionRedisAddr := flag.String("session-redis-addr", "", "Redis address for the session store")
	sessionRedisUsername := flag.String("session-redis-username", "", "Redis username for the session store")
	sessionRedisPassword := flag.String("session-redis-password", "", "Redis password for the session store")
	sessionRedisDB := flag.Int("session-redis-db", 0, "Redis logical database for the session store")
	sessionRedisPrefix := flag.String("session-redis-prefix", "", "Redis key prefix for session records")
	sessionRedisPoolSize := flag.Int("session-redis-pool-size", 0, "maximum Redis connections for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "absolute session lifetime")
	sessionIdleTimeout := flag.Duration("session-idle-timeout", 0, "idle timeout before a session expires")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired-session sweeps")
	resetCodeTTL := flag.Duration("reset-code-ttl", 0, "validity window for password reset codes")
	smtpHost := flag.String("smtp-host", "", "SMTP relay host for password reset mail")
	smtpPort := flag.Int("smtp-port", 0, "SMTP relay port")
	smtpUsername := flag.String("smtp-username", "", "SMTP username")
	smtpPassword := flag.String("smtp-password", "", "SMTP password")
	smtpFrom := flag.String("smtp-from", "", "From address for outbound mail")
	disableNetinfo := flag.Bool("disable-netinfo", false, "skip public IP lookups when recording login addresses")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPRIVER_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPRIVER_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("CLIPRIVER_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CLIPRIVER_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("CLIPRIVER_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("CLIPRIVER_TLS_KEY"))

	mediaRoot := firstNonEmpty(*mediaDir, os.Getenv("CLIPRIVER_MEDIA_DIR"), "data/media")
	media, err := storage.NewMediaStore(mediaRoot)
	if err != nil {
		logger.Error("failed to open media store", "error", err)
		os.Exit(1)
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("CLIPRIVER_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("CLIPRIVER_DATA"))
		store, err = storage.NewStorage(dataFile, storage.WithMediaStore(media))
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		cfg := storage.PostgresConfig{
			DSN:                 postgresDefaultDSN,
			MaxConnections:      int32(resolveInt(*postgresMaxConns, "CLIPRIVER_POSTGRES_MAX_CONNS")),
			MinConnections:      int32(resolveInt(*postgresMinConns, "CLIPRIVER_POSTGRES_MIN_CONNS")),
			MaxConnLifetime:     resolveDuration(*postgresMaxConnLifetime, "CLIPRIVER_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime:     resolveDuration(*postgresMaxConnIdle, "CLIPRIVER_POSTGRES_MAX_CONN_IDLE", 0),
			HealthCheckInterval: resolveDuration(*postgresHealthInterval, "CLIPRIVER_POSTGRES_HEALTH_INTERVAL", 0),
			ConnectTimeout:      resolveDuration(*postgresConnectTimeout, "CLIPRIVER_POSTGRES_CONNECT_TIMEOUT", 0),
			ApplicationName:     firstNonEmpty(*postgresAppName, os.Getenv("CLIPRIVER_POSTGRES_APP_NAME")),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = storage.NewPostgresStorage(ctx, cfg, storage.WithMediaStore(media))
		cancel()
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionConfig, err := resolveSessionStoreConfig(sessionStoreInputs{
		FlagDriver:    *sessionStoreDriver,
		EnvDriver:     os.Getenv("CLIPRIVER_SESSION_STORE"),
		StorageDriver: driver,
		StorageDSN:    postgresDefaultDSN,
		FlagDSN:       *sessionPostgresDSN,
		EnvDSN:        os.Getenv("CLIPRIVER_SESSION_POSTGRES_DSN"),
		RedisAddr:     firstNonEmpty(*sessionRedisAddr, os.Getenv("CLIPRIVER_SESSION_REDIS_ADDR")),
	})
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "redis":
		redisStore, err := auth.NewRedisSessionStore(auth.RedisSessionConfig{
			Addr:      sessionConfig.RedisAddr,
			Username:  firstNonEmpty(*sessionRedisUsername, os.Getenv("CLIPRIVER_SESSION_REDIS_USERNAME")),
			Password:  firstNonEmpty(*sessionRedisPassword, os.Getenv("CLIPRIVER_SESSION_REDIS_PASSWORD")),
			DB:        resolveInt(*sessionRedisDB, "CLIPRIVER_SESSION_REDIS_DB"),
			KeyPrefix: firstNonEmpty(*sessionRedisPrefix, os.Getenv("CLIPRIVER_SESSION_REDIS_PREFIX")),
			PoolSize:  resolveInt(*sessionRedisPoolSize, "CLIPRIVER_SESSION_REDIS_POOL_SIZE"),
		})
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
		sessionCloser = redisStore.Close
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(sessionConfig.DSN)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = pgStore.Close
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	sessionOptions := []auth.SessionOption{auth.WithStore(sessionStore)}
	if idle := resolveDuration(*sessionIdleTimeout, "CLIPRIVER_SESSION_IDLE_TIMEOUT", 0); idle > 0 {
		sessionOptions = append(sessionOptions, auth.WithIdleTimeout(idle))
	}
	sessions := auth.NewSessionManager(
		resolveDuration(*sessionTTL, "CLIPRIVER_SESSION_TTL", 24*time.Hour),
		sessionOptions...,
	)

	var sender mail.Sender
	smtpHostValue := firstNonEmpty(*smtpHost, os.Getenv("CLIPRIVER_SMTP_HOST"))
	if smtpHostValue != "" {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     smtpHostValue,
			Port:     resolveInt(*smtpPort, "CLIPRIVER_SMTP_PORT"),
			Username: firstNonEmpty(*smtpUsername, os.Getenv("CLIPRIVER_SMTP_USERNAME")),
			Password: firstNonEmpty(*smtpPassword, os.Getenv("CLIPRIVER_SMTP_PASSWORD")),
			From:     firstNonEmpty(*smtpFrom, os.Getenv("CLIPRIVER_SMTP_FROM")),
		})
		if err != nil {
			logger.Error("failed to configure smtp sender", "error", err)
			os.Exit(1)
		}
		sender = smtpSender
	} else {
		sender = mail.NoopSender{Logger: logging.WithComponent(logger, "mail")}
	}

	handler := api.NewHandler(store, sessions)
	handler.Media = media
	handler.Mail = sender
	handler.Metrics = recorder
	handler.ResetTTL = resolveDuration(*resetCodeTTL, "CLIPRIVER_RESET_CODE_TTL", 0)
	if !resolveBool(*disableNetinfo, "CLIPRIVER_DISABLE_NETINFO") {
		handler.NetInfo = netinfo.NewClient()
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	purgeInterval := resolveDuration(*sessionPurgeInterval, "CLIPRIVER_SESSION_PURGE_INTERVAL", 15*time.Minute)
	sessionPurgeStop := startMaintenanceWorker(workerCtx, logging.WithComponent(logger, "maintenance"), "session-purge", purgeInterval, sessions.PurgeExpired)
	defer sessionPurgeStop()

	tlsCfg := server.TLSConfig{
		CertFile: tlsCertPath,
		KeyFile:  tlsKeyPath,
	}

	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		TLS:         tlsCfg,
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("ClipRiver API listening", "addr", listenAddr, "mode", serverMode)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	} else if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if sessionCloser != nil {
		if err := sessionCloser(ctx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
}

type sessionStoreInputs struct {
	FlagDriver    string
	EnvDriver     string
	StorageDriver string
	StorageDSN    string
	FlagDSN       string
	EnvDSN        string
	RedisAddr     string
}

type sessionStoreConfig struct {
	Driver    string
	DSN       string
	RedisAddr string
}

func resolveSessionStoreConfig(in sessionStoreInputs) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(in.FlagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(in.EnvDriver))
	}

	sessionDSN := strings.TrimSpace(firstNonEmpty(in.FlagDSN, in.EnvDSN))
	redisAddr := strings.TrimSpace(in.RedisAddr)
	if driver == "" {
		switch {
		case redisAddr != "":
			driver = "redis"
		case sessionDSN != "":
			driver = "postgres"
		case in.StorageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "", "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "redis":
		if redisAddr == "" {
			return sessionStoreConfig{}, fmt.Errorf("redis session store selected without address")
		}
		return sessionStoreConfig{Driver: "redis", RedisAddr: redisAddr}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(in.StorageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CLIPRIVER_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
