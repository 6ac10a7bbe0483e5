package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v7"
	"github.com/jmhodges/clock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nsl-router/nsl-router/internal/activity"
	"github.com/nsl-router/nsl-router/internal/ca"
	"github.com/nsl-router/nsl-router/internal/cleanup"
	"github.com/nsl-router/nsl-router/internal/config"
	"github.com/nsl-router/nsl-router/internal/httpapi"
	"github.com/nsl-router/nsl-router/internal/identity"
	"github.com/nsl-router/nsl-router/internal/logging"
	"github.com/nsl-router/nsl-router/internal/routestore"
	"github.com/nsl-router/nsl-router/internal/signing"
)

// app bundles every component constructed once at startup, so none of
// them live behind a process-wide singleton.
type app struct {
	cfg     *config.Config
	log     *logging.AuditLogger
	mongo   *mongo.Client
	redis   *goredis.Client
	server  *httpapi.Server
	cleanup *cleanup.Controller
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.DomainLogPath)
	if err != nil {
		return nil, fmt.Errorf("starting logger: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connecting to identity store: %w", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping().Err(); err != nil {
		return nil, fmt.Errorf("connecting to ephemeral store: %w", err)
	}

	clk := clock.Default()

	identities, err := identity.New(ctx, mongoClient.Database(cfg.MongoDatabase))
	if err != nil {
		return nil, fmt.Errorf("starting identity registry: %w", err)
	}

	activityTracker := activity.New(redisClient, clk)
	routeStore := routestore.New(redisClient, clk, time.Duration(cfg.RoutesTTLSeconds)*time.Second, activityTracker)
	authenticator := signing.New(identities)
	certAuthority := ca.New(clk)
	if err := certAuthority.Bootstrap(cfg.CACertPath, cfg.CAKeyPath); err != nil {
		return nil, fmt.Errorf("bootstrapping certificate authority: %w", err)
	}

	cleanupCtl := cleanup.New(identities, activityTracker, logger, cfg.InactiveDomainDays, clk)

	server := &httpapi.Server{
		Identities:        identities,
		Routes:            routeStore,
		ActivityTracker:   activityTracker,
		Authenticator:     authenticator,
		CertAuthority:     certAuthority,
		Cleanup:           cleanupCtl,
		Log:               logger,
		Clock:             clk,
		ServerDomain:      cfg.ServerDomain,
		ServiceAPIKey:     cfg.ServiceAPIKey,
		CertValidityHours: cfg.CertValidityHours,
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		mongo:   mongoClient,
		redis:   redisClient,
		server:  server,
		cleanup: cleanupCtl,
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.cleanup.Stop()
	_ = a.redis.Close()
	_ = a.mongo.Disconnect(ctx)
	a.log.Sync()
	_ = a.log.Close()
}
