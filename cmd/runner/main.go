package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HavvokLab/solax-cloud/alarm"
	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/infra"
	"github.com/HavvokLab/solax-cloud/integration"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/publisher"
	"github.com/HavvokLab/solax-cloud/repo"
	"github.com/HavvokLab/solax-cloud/server"
	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetConfig(cfg)

	logger.SetDir(cfg.Log.Dir)
	logger.Init("runner.log")
	logger.SetDebug(cfg.Log.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath); err != nil {
		log.Fatal().Err(err).Msg("runner stopped with error")
	}

	log.Info().Msg("runner stopped")
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	db, err := infra.NewGormDB(cfg.Database.Path)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publishers, closeFns, err := newPublishers(cfg, registry)
	defer func() {
		for _, fn := range closeFns {
			fn()
		}
	}()
	if err != nil {
		return err
	}

	limiter := integration.NewRateLimiter(cfg.Solax)
	scheduler := gocron.NewScheduler(time.Local)
	scheduler.StartAsync()
	defer scheduler.Stop()

	manager := integration.NewManager(
		repo.NewSolaxCredentialRepo(db),
		integration.NewClientFactory(cfg.Solax, limiter),
		scheduler,
		integration.ManagerConfig{
			UpdateInterval: cfg.Solax.UpdateInterval,
			RetryInterval:  cfg.Solax.SetupRetryInterval,
			RefreshTimeout: 3 * cfg.Solax.RequestTimeout,
			SetupWorkers:   cfg.Solax.SetupWorkers,
		},
		publishers...,
	)
	defer manager.Close()

	if err := manager.SetupAll(ctx); err != nil {
		return err
	}

	if configPath != "" {
		if err := config.NewLoader(configPath).Watch(func(next *config.Config) error {
			logger.SetDebug(next.Log.Debug)
			config.SetConfig(next)
			return nil
		}); err != nil {
			log.Warn().Err(err).Msg("config watch disabled")
		}
	}

	return server.NewRestfulServer(manager, registry).Run(ctx, cfg.Server.Address)
}

// newPublishers connects every enabled sink. The Prometheus publisher is
// always on since /metrics is served regardless.
func newPublishers(cfg *config.Config, registry *prometheus.Registry) ([]integration.Publisher, []func(), error) {
	prom := publisher.NewPrometheusPublisher()
	registry.MustRegister(prom)

	publishers := []integration.Publisher{prom}
	closeFns := make([]func(), 0)

	if cfg.MQTT.Enabled {
		client, err := infra.NewMQTTClient(cfg.MQTT)
		if err != nil {
			return nil, closeFns, err
		}
		closeFns = append(closeFns, func() {
			if err := infra.DisconnectMQTT(client, cfg.MQTT); err != nil {
				log.Warn().Err(err).Msg("failed to announce offline status")
			}
		})
		publishers = append(publishers, publisher.NewMQTTPublisher(client, cfg.MQTT))
	}

	if cfg.Elastic.Enabled {
		client, err := infra.NewElasticClient(cfg.Elastic)
		if err != nil {
			return nil, closeFns, err
		}
		closeFns = append(closeFns, client.Stop)
		publishers = append(publishers, publisher.NewElasticPublisher(repo.NewSnapshotRepo(client), cfg.Elastic.Index))
	}

	if cfg.Alarm.Enabled {
		rdb, err := infra.NewRedis(cfg.Redis)
		if err != nil {
			return nil, closeFns, err
		}
		closeFns = append(closeFns, func() { _ = rdb.Close() })

		snmp, err := infra.NewSnmpOrchestrator(infra.TrapTypeStaleAlarm, cfg.Alarm.Snmp)
		if err != nil {
			return nil, closeFns, err
		}
		closeFns = append(closeFns, snmp.Close)
		publishers = append(publishers, alarm.NewStaleAlarm(rdb, snmp))
	}

	return publishers, closeFns, nil
}
