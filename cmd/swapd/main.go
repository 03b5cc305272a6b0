package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ArkLabsHQ/subswap/internal/config"
	"github.com/ArkLabsHQ/subswap/internal/core/application"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/db"
	"github.com/ArkLabsHQ/subswap/internal/infrastructure/display"
	grpcservice "github.com/ArkLabsHQ/subswap/internal/interface/grpc"
	"github.com/ArkLabsHQ/subswap/pkg/boltz"
	"github.com/ArkLabsHQ/subswap/pkg/swap"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	log.Infof("starting swapd %s on %s...", version, cfg.NetworkParams().Name)

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{cfg.DbDir(), nil},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	if cfg.NoDB {
		log.Warn("swap records are kept in memory only")
	}

	units, err := display.NewStaticUnitProvider(cfg.Unit, cfg.FiatCurrency, cfg.FiatRate)
	if err != nil {
		log.WithError(err).Fatal("invalid display unit")
	}

	boltzSvc := &boltz.Api{URL: cfg.BoltzURL, WSURL: cfg.BoltzWSURL}
	swapHandler := swap.NewSwapHandler(boltzSvc, cfg.SwapHandlerConfig())

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
	appSvc := application.NewService(
		buildInfo, boltzSvc, swapHandler, dbSvc, units, display.NewLogNavigator(),
		cfg.SwapTimeoutDuration(),
	)

	svc, err := grpcservice.NewService(grpcservice.Config{
		Port:    cfg.Port,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	}, appSvc)
	if err != nil {
		log.WithError(err).Fatal("failed to init interface service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(svc.Serve)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down service...")
		svc.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("service failed")
	}
	log.Info("shutdown complete")
}
