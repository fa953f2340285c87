package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"crudkit/internal/admin"
	"crudkit/internal/config"
	"crudkit/internal/engine"
	"crudkit/internal/instrument"
	"crudkit/internal/logger"
	"crudkit/internal/metadata"
	"crudkit/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (defaults to ./app.yaml)")
	flag.Parse()

	// 1. Load config
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New().FromConfig(cfg.Log).Make()
	log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Str("dialect", db.Dialect.Name()).Msg("database connected")

	// 3. Load models
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(cfg.Models, reg); err != nil {
		log.Fatal().Err(err).Msg("failed to load models")
	}

	// 4. Create Fiber app
	var metrics *instrument.Metrics
	if cfg.Metrics.Enabled {
		metrics = instrument.NewMetrics()
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.TraceMiddleware(log))
	if metrics != nil {
		app.Use(metrics.Middleware())
		app.Get(cfg.Metrics.Path, metrics.Handler())
	}

	// 5. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 6. Mount resources
	router := engine.NewRouter(app, engine.RouterOptions{
		BasePath:        cfg.API.BasePath,
		Version:         cfg.API.Version,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
	})
	adminHandler := admin.NewHandler(reg)
	for _, rc := range cfg.Resources {
		ctrl, err := buildController(db, reg, rc, log, metrics)
		if err != nil {
			log.Fatal().Err(err).Str("resource", rc.Name).Msg("failed to build controller")
		}
		path := router.Mount(rc.Name, ctrl, mountOptions(rc)...)
		adminHandler.AddResource(rc.Name, path, ctrl)
		log.Info().Str("resource", rc.Name).Str("path", path).Strs("methods", ctrl.Supported()).Msg("resource mounted")
	}
	admin.RegisterAdminRoutes(app, adminHandler)

	// 7. Start server
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func buildController(db *store.Store, reg *metadata.Registry, rc config.ResourceConfig, log zerolog.Logger, metrics *instrument.Metrics) (*engine.Controller, error) {
	model := reg.GetModel(rc.Model)
	if model == nil {
		return nil, fmt.Errorf("unknown model %q", rc.Model)
	}

	opts := []engine.Option{
		engine.WithName(rc.Name),
		engine.WithCapabilities(engine.Capabilities{
			Create:     rc.Capabilities.Create,
			Read:       rc.Capabilities.Read,
			Update:     rc.Capabilities.Update,
			Delete:     rc.Capabilities.Delete,
			SoftDelete: rc.Capabilities.SoftDelete,
		}),
		engine.WithRequired(rc.Required...),
		engine.WithLogger(log),
		engine.WithMetrics(metrics),
	}
	if rc.Timezone != "" {
		opts = append(opts, engine.WithTimezone(rc.Timezone))
	}
	if rc.UpdatePolicy == "strict" {
		opts = append(opts, engine.WithUpdatePolicy(engine.Strict))
	}
	if rc.SerializeMode == "strict" {
		opts = append(opts, engine.WithSerializeMode(engine.StrictSerialize))
	}
	if rc.Filter != nil {
		computed := make([]engine.ComputedField, len(rc.Filter.Computed))
		for i, cf := range rc.Filter.Computed {
			computed[i] = engine.ComputedField{Name: cf.Name, Expression: cf.Expression}
		}
		filter, err := engine.NewExprFilter(rc.Filter.Omit, computed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithFilter(filter))
	}
	return engine.NewController(db, model, opts...)
}

func mountOptions(rc config.ResourceConfig) []engine.MountOption {
	var opts []engine.MountOption
	if rc.BasePath != "" {
		opts = append(opts, engine.WithBasePath(rc.BasePath))
	}
	if rc.Version != nil {
		opts = append(opts, engine.WithVersion(*rc.Version))
	}
	if rc.ListSuffix != "" {
		opts = append(opts, engine.WithListSuffix(rc.ListSuffix))
	}
	return opts
}
