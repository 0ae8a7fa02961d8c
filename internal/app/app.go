// Package app wires configuration into a running direct-message service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hackhub/internal/attachment"
	"hackhub/internal/authutil"
	"hackhub/internal/config"
	"hackhub/internal/crypto"
	"hackhub/internal/dm"
	"hackhub/internal/eviction"
	"hackhub/internal/httpapi"
	"hackhub/internal/logging"
	"hackhub/internal/probe"
	"hackhub/internal/remote"
	"hackhub/internal/remote/postgres"
	"hackhub/internal/remote/s3store"
	"hackhub/internal/storage"
)

// App owns every long-lived resource of the service.
type App struct {
	Cfg     *config.Config
	Log     zerolog.Logger
	Service *dm.Service
	Local   *storage.LocalStore
	Signer  *authutil.Signer

	db  *postgres.Store
	srv *http.Server
}

// OpenMedium returns the configured local medium.
func OpenMedium(cfg *config.Config) (storage.Medium, error) {
	switch cfg.LocalMedium {
	case config.MediumBolt:
		return storage.OpenBoltMedium(cfg.LocalPath, cfg.LocalHardLimit)
	case config.MediumRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return storage.NewRedisMedium(redis.NewClient(opt), cfg.LocalHardLimit), nil
	case config.MediumMemory:
		return storage.NewMemoryMedium(cfg.LocalHardLimit), nil
	default:
		return nil, fmt.Errorf("unknown local medium %q", cfg.LocalMedium)
	}
}

// OpenLocal opens the local document store, sealed when LOCAL_SECRET is set.
func OpenLocal(cfg *config.Config, log zerolog.Logger) (*storage.LocalStore, error) {
	medium, err := OpenMedium(cfg)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(cfg.LocalSecret)
	if err != nil {
		_ = medium.Close()
		return nil, err
	}
	return storage.NewLocalStore(medium, storage.Options{
		Key:       cfg.LocalKey,
		SoftLimit: cfg.LocalSoftLimit,
		HardLimit: cfg.LocalHardLimit,
		Sealer:    sealer,
		Logger:    log,
	}), nil
}

// New connects the configured backends. A missing DATABASE_URL or object
// store credentials leave the service in local-only mode.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	local, err := OpenLocal(cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{
		Cfg:    cfg,
		Log:    log,
		Local:  local,
		Signer: authutil.NewSigner(cfg.JWTSecret, cfg.TokenTTL),
	}

	var structured remote.Structured
	if cfg.DatabaseURL == "" {
		log.Info().Msg("DATABASE_URL not set; running without remote persistence")
	} else {
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		a.db = db
		structured = db
		if cfg.Migrate {
			if err := db.Migrate(ctx); err != nil {
				log.Warn().Err(err).Msg("migration failed; remote probe will decide availability")
			}
		}
	}

	var objects remote.Objects
	if cfg.RemoteObjects() {
		store, err := s3store.Open(ctx, s3store.Options{
			Endpoint:        cfg.R2Endpoint,
			Region:          cfg.R2Region,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			_ = a.close()
			return nil, err
		}
		objects = store
	} else {
		log.Info().Msg("object storage not configured; attachments stay inline")
	}

	a.Service = dm.NewService(dm.Deps{
		Remote:   structured,
		Objects:  objects,
		Buckets:  cfg.Buckets(),
		Probe:    probe.ForStore(structured, remote.TableMessages, log),
		Local:    local,
		Pipeline: attachment.NewPipeline(cfg.AttachmentLimits(), log),
		Policy:   eviction.NewPolicy(local, cfg.Retention(), log),
		Logger:   log,
	})
	return a, nil
}

// Start configures the HTTP routes and begins serving requests.
func (a *App) Start() error {
	api := httpapi.New(a.Service, a.Signer, a.Log, httpapi.Options{
		AllowedOrigins: a.Cfg.CORSOrigins,
		MaxUploadBytes: 4*a.Cfg.RemoteMaxBytes + attachment.MB,
	})
	reqLog := logging.HTTP("hackhub", a.Cfg.Env, a.Cfg.LogLevel)
	a.srv = &http.Server{
		Addr:              a.Cfg.Addr,
		Handler:           httplog.RequestLogger(reqLog)(api.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatal().Err(err).Msg("http server stopped")
		}
	}()

	a.Log.Info().Str("addr", a.Cfg.Addr).Bool("remote", a.db != nil).Msg("hackhub listening")
	return nil
}

// Shutdown stops the HTTP server and releases the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.srv != nil {
		errs = append(errs, a.srv.Shutdown(ctx))
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

// Close releases the stores without touching the HTTP server.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.Local != nil {
		errs = append(errs, a.Local.Close())
	}
	return errors.Join(errs...)
}

// WaitForShutdown blocks on SIGINT/SIGTERM and then shuts down the app.
func WaitForShutdown(app *App) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	app.Log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		app.Log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
