package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/scchat/pkg/config"
	"github.com/tokmz/scchat/pkg/logger"
	"github.com/tokmz/scchat/pkg/push"
	"github.com/tokmz/scchat/pkg/relay"
	"github.com/tokmz/scchat/pkg/store"
)

func main() {
	configFile := flag.String("config", "", "config file path (default: ./scchat.yaml)")
	genKeys := flag.Bool("gen-vapid-keys", false, "generate a VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		priv, pub, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate vapid keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("public:  %s\nprivate: %s\n", pub, priv)
		return
	}

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "scchat: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	opts = append(opts, config.WithAutoWatch(true))

	manager := config.New(opts...)
	if err := manager.Load(); err != nil {
		return err
	}
	defer manager.StopWatch()

	app, err := manager.App()
	if err != nil {
		return err
	}

	log, err := buildLogger(&app.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 配置热更新目前只响应日志级别
	manager.SetOnChange(func(updated *config.App) {
		level := logger.ParseLevel(updated.Log.Level)
		if level != log.Level() {
			log.SetLevel(level)
			log.Info("log level updated", zap.String("level", level.String()))
		}
	})

	stores, cleanup, err := buildStores(app, log)
	if err != nil {
		return err
	}
	defer cleanup()

	relayOpts := []relay.Option{
		relay.WithHeartbeatInterval(app.Heartbeat.Interval),
		relay.WithMaxConnections(app.Heartbeat.MaxConnections),
		relay.WithLogger(log.With(zap.String("component", "relay"))),
	}
	if len(app.Server.AllowedOrigins) > 0 {
		relayOpts = append(relayOpts, relay.WithCheckOriginWhitelist(app.Server.AllowedOrigins))
	}

	engine, err := relay.New(stores, relayOpts...)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(log.With(zap.String("component", "http"))))

	router.GET("/ws", func(c *gin.Context) {
		if err := engine.HandleUpgrade(c.Writer, c.Request); err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
		}
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"connections": engine.ClientCount()})
	})

	server := &http.Server{
		Addr:              app.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", app.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := engine.Shutdown(shutdownCtx); err != nil {
			log.Warn("engine shutdown incomplete", zap.Error(err))
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildLogger 根据配置构建日志器
func buildLogger(cfg *config.LogConfig) (logger.Logger, error) {
	opts := []logger.Option{
		logger.WithLevel(logger.ParseLevel(cfg.Level)),
		logger.WithFormat(logger.Format(cfg.Format)),
		logger.WithConsoleOutput(),
	}
	if cfg.File != "" {
		opts = append(opts, logger.WithRotateOutput(&logger.RotateConfig{Filename: cfg.File}))
	}
	return logger.NewWithOptions(opts...)
}

// buildStores 根据配置装配存储协作方
func buildStores(app *config.App, log logger.Logger) (relay.Stores, func(), error) {
	var (
		stores  relay.Stores
		closers []func()
	)
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	switch app.Storage.Backend {
	case "", "memory":
		mem := store.NewMemory()
		stores.Profiles = mem
		stores.Queue = mem
		stores.Subscriptions = mem.Subscriptions()

	case "sqlite":
		db, err := store.OpenSQLite(app.Storage.DSN)
		if err != nil {
			return stores, cleanup, err
		}
		closers = append(closers, func() { _ = db.Close() })
		stores.Profiles = db
		stores.Queue = db
		stores.Subscriptions = db.Subscriptions()

	case "redis":
		// 档案与订阅持久化在 SQLite，队列走 Redis
		db, err := store.OpenSQLite(app.Storage.DSN)
		if err != nil {
			return stores, cleanup, err
		}
		closers = append(closers, func() { _ = db.Close() })

		queue, err := store.NewRedisQueue(&store.RedisConfig{
			Addr:     app.Storage.Redis.Addr,
			Password: app.Storage.Redis.Password,
			DB:       app.Storage.Redis.DB,
		})
		if err != nil {
			return stores, cleanup, err
		}
		closers = append(closers, func() { _ = queue.Close() })

		stores.Profiles = db
		stores.Queue = queue
		stores.Subscriptions = db.Subscriptions()

	default:
		return stores, cleanup, fmt.Errorf("unknown storage backend %q", app.Storage.Backend)
	}

	if app.Push.Enabled {
		notifier, err := push.NewWebPush(&push.Config{
			Subscriber:      app.Push.Subscriber,
			VAPIDPublicKey:  app.Push.VAPIDPublicKey,
			VAPIDPrivateKey: app.Push.VAPIDPrivateKey,
		})
		if err != nil {
			return stores, cleanup, err
		}
		stores.Push = notifier
	} else {
		log.Info("push notifications disabled")
	}

	return stores, cleanup, nil
}
