package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/logging"
	"github.com/MrEthical07/goGuard/internal/settings"
	"github.com/MrEthical07/goGuard/store/mongostore"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type configPath string

// Module wires settings, logging, storage, the engine and the HTTP server.
func Module(path configPath) fx.Option {
	return fx.Options(
		fx.Supply(path),
		fx.Provide(
			loadSettings,
			newLogger,
			newMongoClient,
			newAccountStore,
			newRedisClient,
			newEngine,
			newHTTPServer,
		),
		fx.Invoke(registerHooks),
	)
}

func loadSettings(path configPath) (*settings.Settings, error) {
	return settings.Load(string(path))
}

func newLogger(s *settings.Settings) (*zap.Logger, error) {
	return logging.New(s.Server.LogLevel, s.Server.Env)
}

func newMongoClient(lc fx.Lifecycle, s *settings.Settings, log *zap.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(s.Mongo.URI).
		SetConnectTimeout(s.Mongo.Timeout).
		SetServerSelectionTimeout(s.Mongo.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.Mongo.Timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx, nil); err != nil {
				return fmt.Errorf("ping mongo: %w", err)
			}
			log.Info("mongo connected", zap.String("database", s.Mongo.Database))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})
	return client, nil
}

func newAccountStore(lc fx.Lifecycle, s *settings.Settings, client *mongo.Client) goGuard.AccountStore {
	store := mongostore.New(client.Database(s.Mongo.Database).Collection(s.Mongo.Collection))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.EnsureIndexes(ctx)
		},
	})
	return store
}

// newRedisClient returns nil when no address is configured; the engine then
// keeps lockout state in process.
func newRedisClient(lc fx.Lifecycle, s *settings.Settings) redis.UniversalClient {
	if s.Redis.Addr == "" {
		return nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{s.Redis.Addr},
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func newEngine(lc fx.Lifecycle, s *settings.Settings, log *zap.Logger, store goGuard.AccountStore, rdb redis.UniversalClient) (*goGuard.Engine, error) {
	b := goGuard.New().
		WithConfig(s.EngineConfig()).
		WithStore(store).
		WithLogger(log).
		WithNotifier(newLogNotifier(log))
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			engine.Close()
			return nil
		},
	})
	return engine, nil
}

func newHTTPServer(s *settings.Settings, engine *goGuard.Engine, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:         s.Server.Addr,
		Handler:      newRouter(engine, log, s.Server.TrustProxy),
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
	}
}

func registerHooks(lc fx.Lifecycle, srv *http.Server, s *settings.Settings, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			ctx, cancel := context.WithTimeout(ctx, s.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
}
