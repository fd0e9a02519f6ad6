package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	lib "github.com/transitwatch/transit-notify"
	"github.com/transitwatch/transit-notify/config"
	"github.com/transitwatch/transit-notify/gtfsrt"
	"github.com/transitwatch/transit-notify/internal/metrics"
	"github.com/transitwatch/transit-notify/push"
	"github.com/transitwatch/transit-notify/store"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	lib.InitLogging()

	// Optional; secrets normally arrive through the real environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Notifications.Timezone)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.Notifications.Timezone, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		log.Fatalf("mongo: %v", err)
	}

	collector := metrics.NewCollector()

	var fcm push.Provider
	if cfg.FCM.CredentialsFile != "" {
		fcm, err = push.NewFCMProvider(context.Background(), cfg.FCM.CredentialsFile)
		if err != nil {
			log.Fatalf("fcm: %v", err)
		}
	} else {
		log.Printf("fcm: no credentials file configured, FCM delivery disabled")
	}
	expo := push.NewExpoProvider()

	tokens := push.NewTokenManager(st, collector)
	queue := push.NewQueue(expo, fcm, tokens, collector)

	cache := lib.NewRouteCache(time.Duration(cfg.Cache.RouteTTLHours) * time.Hour)
	resolver := lib.NewRouteResolver(cache, st, collector)

	matcher := lib.NewMatcher(st, resolver, lib.MatcherConfig{
		Location:              loc,
		DefaultDistanceMeters: cfg.Notifications.DefaultDistanceMeters,
		DefaultMinInterval:    time.Duration(cfg.Notifications.DefaultMinIntervalMinutes) * time.Minute,
		PerDevice:             cfg.Notifications.PerDeviceEnabled(),
		Concurrency:           cfg.Notifications.MatchConcurrency,
	})
	service := lib.NewService(matcher, st, queue, collector)

	fetcher := gtfsrt.NewClient(cfg.Feed.VehiclePositionsURL, time.Duration(cfg.Feed.TimeoutSeconds)*time.Second)
	poller := lib.NewPoller(fetcher, resolver, service, collector, lib.PollerConfig{
		Interval:         time.Duration(cfg.Feed.IntervalSeconds) * time.Second,
		FailureThreshold: cfg.Feed.FailureThreshold,
		Cooldown:         time.Duration(cfg.Feed.CooldownMinutes) * time.Minute,
	})
	poller.Start()

	lib.StartServer(cfg.Server.Port, lib.ServerDeps{
		Poller:   poller,
		Service:  service,
		Resolver: resolver,
		Metrics:  collector,
	})

	lib.HandleGracefulShutdown(
		poller.Stop,
		queue.Shutdown,
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.Disconnect(ctx); err != nil {
				log.Printf("mongo disconnect: %v", err)
			}
		},
	)
}
