// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obrien-tchaleu/ludoserver/internal/cache"
	"github.com/obrien-tchaleu/ludoserver/internal/config"
	"github.com/obrien-tchaleu/ludoserver/internal/engagement"
	"github.com/obrien-tchaleu/ludoserver/internal/httpapi"
	"github.com/obrien-tchaleu/ludoserver/internal/realtime"
	"github.com/obrien-tchaleu/ludoserver/internal/room"
	"github.com/obrien-tchaleu/ludoserver/internal/store"
	"github.com/obrien-tchaleu/ludoserver/internal/taunt"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	root := &cobra.Command{
		Use:   "ludoserver",
		Short: "Real-time multiplayer Ludo room server",
	}
	root.PersistentFlags().String("config", "", "optional YAML config file overriding defaults")
	if err := viper.BindPFlag("config", root.PersistentFlags().Lookup("config")); err != nil {
		log.WithError(err).Fatal("binding --config flag")
	}
	viper.SetEnvPrefix("ludoserver")
	viper.AutomaticEnv()

	root.AddCommand(serveCmd(log))
	root.AddCommand(flushNowCmd(log))

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

// configPath resolves the --config flag via viper, which also lets it
// be supplied as LUDOSERVER_CONFIG in the environment, handy for
// container deployments that inject config paths rather than CLI
// args.
func configPath() string {
	return viper.GetString("config")
}

func serveCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(log)
		},
	}
}

func flushNowCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-now",
		Short: "Verify storage connectivity and exit, without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, disconnect, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
			if err != nil {
				return err
			}
			defer disconnect(ctx)
			log.Info("storage connectivity verified")
			return nil
		},
	}
}

func runServe(log *logrus.Logger) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	db, disconnect, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer disconnect(context.Background())

	mongoStore := store.NewMongoStore(db)
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to ensure mongo indexes, continuing without them")
	}

	sharedCache := buildSharedCache(log, cfg)
	gsc := cache.NewGameStateCache(log, mongoStore, sharedCache, cfg.GameStateFlushInterval, cfg.GameStateCacheTTL)
	defer gsc.Shutdown(context.Background())

	hub := realtime.NewHub(log)
	engine := engagement.New(engagement.DefaultProfile())

	tauntCfg := taunt.DefaultConfig()
	tauntCfg.CooldownPerSeat = cfg.TauntCooldown
	tauntCfg.LimitPerMinute = cfg.TauntLimitPerMin
	tauntCfg.AutoBurstLimit = cfg.TauntAutoBurst
	director := taunt.NewDirector(tauntCfg)

	coord := room.NewCoordinator(log, gsc, mongoStore, hub, engine, director)
	coord.SetFeatureFlags(cfg.EngagementDiceEnabled, cfg.TauntSystemEnabled)
	server := httpapi.NewServer(coord, hub, httpapi.StubAuth{}, log, cfg.CORSOrigin)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful http shutdown failed")
	}
	return nil
}

func buildSharedCache(log *logrus.Logger, cfg config.Config) cache.SharedCache {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, falling back to an in-process shared cache (not safe across multiple instances)")
		return cache.NewMemoryCache()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("invalid REDIS_URL, falling back to an in-process shared cache")
		return cache.NewMemoryCache()
	}
	client := redis.NewClient(opts)
	return cache.NewRedisCache(client)
}
