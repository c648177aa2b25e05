package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/config"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/db"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/events"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/health"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/httpapi"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/logging"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/sqlite"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and gRPC health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

type stores struct {
	entities store.EntityStore
	logs     store.AccessLogStore
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (stores, error) {
	if cfg.Store == "memory" {
		logger.Warn().Msg("using in-memory store; records are lost on exit")
		return stores{
			entities: memory.NewEntityStore(),
			logs:     memory.NewAccessLogStore(),
			close:    func() {},
		}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Logger: logger})
	if err != nil {
		return stores{}, err
	}
	if cfg.Env == "dev" {
		n, err := db.SeedDev(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return stores{}, err
		}
		if n > 0 {
			logger.Info().Int("rows", n).Msg("dev seed applied")
		}
	}

	writer := db.NewWorker(conn)
	return stores{
		entities: sqlite.NewEntityStore(conn, writer),
		logs:     sqlite.NewAccessLogStore(conn, writer),
		close: func() {
			writer.Close()
			_ = conn.Close()
		},
	}, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, Env: cfg.Env, File: cfg.LogFile})
	defer logCloser.Close()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.close()

	link := serialport.NewLink(serialport.Options{
		Logger:      logger,
		SettleDelay: cfg.SettleDelay(),
		PortsTTL:    cfg.PortsCacheTTL(),
	})
	driver := fingerprint.NewDriver(link, fingerprint.Options{
		Logger:          logger,
		AckTimeout:      cfg.AckTimeout(),
		PollReadTimeout: cfg.PollReadTimeout(),
	})
	broker := events.NewBroker(cfg.StreamCapacity)

	registry := service.NewEntityRegistry(st.entities)
	accessSvc := service.NewAccessService(registry, driver, st.logs, broker, service.AccessOptions{
		Logger:      logger,
		PollTimeout: cfg.VerifyTimeout(),
	})
	enrollSvc := service.NewEnrollmentService(st.entities, driver, service.EnrollmentOptions{
		Logger:         logger,
		CaptureTimeout: cfg.EnrollTimeout(),
		DefaultRetries: cfg.EnrollRetries,
	})

	if cfg.SerialPort != "" {
		// A missing reader is not fatal: it can be connected over HTTP later.
		if res, err := link.Connect(cfg.SerialPort, cfg.BaudRate, cfg.ReadTimeout()); err != nil {
			logger.Warn().Err(err).Str("port", cfg.SerialPort).Msg("startup connect failed")
		} else {
			logger.Info().Str("port", cfg.SerialPort).Msg(res.Message)
		}
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger,
		Addr:              cfg.HTTPAddr,
		Link:              link,
		Driver:            driver,
		AccessService:     accessSvc,
		EnrollmentService: enrollSvc,
		Registry:          registry,
		Broker:            broker,
		ReadTimeout:       cfg.ReadTimeout(),
		CaptureTimeout:    cfg.EnrollTimeout(),
	})

	pruner := service.NewLogPruner(st.logs, service.PrunerConfig{
		RetentionDays: cfg.LogRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)

	var (
		hs  *health.Server
		lis net.Listener
	)
	if cfg.GRPCAddr != "" {
		if lis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		hs = health.New(link, health.DefaultInterval, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Str("store", cfg.Store).Msg("http listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if hs != nil {
		g.Go(func() error {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("grpc health listening")
			return hs.Serve(lis)
		})
		g.Go(func() error {
			hs.Watch(gctx)
			hs.Stop()
			return nil
		})
	}

	g.Go(func() error { return pruner.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		// Stream handlers only return once their subscription closes.
		broker.Close()
		err := srv.Shutdown(shutdownCtx)
		if cerr := link.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close serial link")
		}
		return err
	})

	return g.Wait()
}
