package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rotaplanhq/rotaplan/config"
	"github.com/rotaplanhq/rotaplan/divopt"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/orchestrator"
	"github.com/rotaplanhq/rotaplan/shell"
	"github.com/rotaplanhq/rotaplan/store"
	"github.com/rotaplanhq/rotaplan/svc"
)

const GracefulShutdownTimeout = 20 * time.Second

var (
	configName  = flag.String("config", "rotaplan", "config file name, without extension")
	serve       = flag.Bool("serve", false, "serve solve requests over NATS instead of starting the shell")
	profilePath = flag.String("profilepath", "", "path for profile")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(".", *configName)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *profilePath != "" {
		f, err := os.Create(*profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("")
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if *serve {
		runService(cfg, sig)
		return
	}

	sc := shell.NewShellController(cfg)
	go sc.Loop(sig)
	<-sig
	log.Info().Msg("got quit signal...")
}

func runService(cfg *config.Config, sig chan os.Signal) {
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NatsURL).Msg("could not connect to NATS")
	}
	defer nc.Close()

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("could not open game store")
		}
		defer st.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := svc.NewService(nc, orchestrator.New(cfg.NodeLimit, cfg.SolveTimeout),
		&divopt.Optimizer{
			Solver:      &milp.Solver{NodeLimit: cfg.NodeLimit},
			Concurrency: cfg.Workers,
		}, st)
	if err := service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	<-sig
	log.Info().Msg("got quit signal...")
	done := make(chan struct{})
	go func() {
		service.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(GracefulShutdownTimeout):
		log.Error().Msg("timed out draining subscriptions")
	}
}
