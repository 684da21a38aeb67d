// Command livekvd runs the livekv server: it opens the on-disk database,
// registers the built-in procedures, and serves the WebSocket protocol
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/example/livekv/corekv"
	"github.com/example/livekv/procset"
	"github.com/example/livekv/storekv"
	"github.com/example/livekv/transportkv"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "livekvd",
		Short: "livekvd serves the reactive key-value store protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "0.0.0.0:3990", "address to listen on")
	flags.String("data-dir", "./data", "directory holding the on-disk database")
	flags.Duration("shutdown-timeout", 30*time.Second, "how long to wait for in-flight HTTP requests on shutdown")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("LIVEKV")
	v.AutomaticEnv()
	v.SetConfigName("livekv")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			cobra.CheckErr(fmt.Errorf("livekvd: read config: %w", err))
		}
	}

	return cmd
}

func run(v *viper.Viper) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("livekvd: build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	dataDir := v.GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("livekvd: create data dir %s: %w", dataDir, err)
	}

	app := fx.New(
		fx.Supply(log),
		fx.Provide(
			func() (*storekv.BboltEngine, error) {
				return storekv.OpenBbolt(dataDir + "/livekv.db")
			},
			func(engine *storekv.BboltEngine, log *zap.Logger) *storekv.Store {
				return storekv.New(engine, log)
			},
			func() *procset.Registry {
				return procset.New(
					procset.Entry{Name: "get_all", Fn: procset.GetAll},
					procset.Entry{Name: "get_random", Fn: procset.GetRandom},
				)
			},
			func(store *storekv.Store, procs *procset.Registry, log *zap.Logger) *corekv.Core {
				return corekv.New(store, procs, corekv.MatchLiteral, log)
			},
		),
		fx.Invoke(registerCoreLifecycle),
		fx.Invoke(func(lc fx.Lifecycle, core *corekv.Core, log *zap.Logger) {
			registerServeLifecycle(lc, core, log, v.GetString("addr"), v.GetDuration("shutdown-timeout"))
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("livekvd: start: %w", err)
	}

	<-app.Done()
	return app.Stop(context.Background())
}

func registerCoreLifecycle(lc fx.Lifecycle, core *corekv.Core, engine *storekv.BboltEngine, log *zap.Logger) {
	coreCtx, coreCancel := context.WithCancel(context.Background())
	coreDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(coreDone)
				if err := core.Run(coreCtx); err != nil && coreCtx.Err() == nil {
					log.Error("event loop core exited unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			coreCancel()
			<-coreDone
			return engine.Close()
		},
	})
}

func registerServeLifecycle(lc fx.Lifecycle, core *corekv.Core, log *zap.Logger, addr string, shutdownTimeout time.Duration) {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				serveDone <- transportkv.Serve(transportkv.ServeConfig{
					Core:            core,
					Addr:            addr,
					GracefulTimeout: shutdownTimeout,
					Log:             log,
					ShutdownContext: shutdownCtx,
				})
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			shutdownCancel()
			return <-serveDone
		},
	})
}
