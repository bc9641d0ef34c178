package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/auction/gateway"
	"github.com/mcdev12/liveauction/go/internal/auction/mirror"
	"github.com/mcdev12/liveauction/go/internal/auction/timesync"
	"github.com/mcdev12/liveauction/go/internal/config"
)

type Services struct {
	Auction *auction.App
	Gateway *gateway.Service
	Mirror  *mirror.Worker
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Clock → Connections → App → Gateway

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	clock := clockwork.NewRealClock()
	timeSvc := timesync.NewService(clock)

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), timeSvc)

	worker, err := setupMirror(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up event mirror: %w", err)
	}
	cm.SetMirror(worker)

	app := auction.NewApp(catalog, cm, clock)
	gatewayService := gateway.NewService(cm, app, timeSvc)
	app.Start()

	return &Services{
		Auction: app,
		Gateway: gatewayService,
		Mirror:  worker,
	}, nil
}

func setupMirror(ctx context.Context, cfg config.Config) (*mirror.Worker, error) {
	var publisher mirror.Publisher

	switch cfg.MirrorBackend {
	case config.MirrorNATS:
		jsCfg := mirror.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		jsCfg.StreamName = cfg.NATSStream
		jsCfg.SubjectPrefix = cfg.NATSSubjectPrefix

		p, err := mirror.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, err
		}
		publisher = p
	case config.MirrorKafka:
		publisher = mirror.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		publisher = mirror.NewLogPublisher()
	}

	mirrorCfg := mirror.DefaultConfig()
	mirrorCfg.BufferSize = cfg.MirrorBuffer
	return mirror.NewWorker(publisher, mirrorCfg), nil
}
