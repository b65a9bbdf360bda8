// Package app assembles the store, session, revision log and HTTP
// collaborators from configuration.
package app

import (
	"context"
	"os"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shmookey/coconut/internal/api"
	"github.com/shmookey/coconut/internal/config"
	"github.com/shmookey/coconut/pkg/archive"
	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/metrics"
	"github.com/shmookey/coconut/pkg/middleware"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
	"github.com/shmookey/coconut/pkg/store/memory"
	"github.com/shmookey/coconut/pkg/store/mongostore"
	"github.com/shmookey/coconut/pkg/store/rediscache"
)

const (
	mongoConnectAttempts = 5
	cachePrefix          = "coconut:doc:"
)

// App is a wired instance of the document layer.
type App struct {
	Config    *config.Config
	Session   *odm.Session
	Revisions *revision.Recorder
	Archiver  *archive.Archiver
	Registry  *prometheus.Registry

	mongo *mongo.Client
	redis *redis.Client
}

// Build connects the configured backends and registers the document types
// declared in the schema file.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.Session = odm.NewSession(st)
	if a.Revisions, err = revision.Install(a.Session); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.Schema.File != "" {
		if err := RegisterSchemaFile(a.Session, cfg.Schema.File); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	if err := a.Session.EnsureIndexes(ctx); err != nil {
		a.Close(ctx)
		return nil, errors.Wrap(err, "ensure indexes")
	}

	if cfg.MinIO.Endpoint != "" {
		objects, err := archive.NewMinIOStore(ctx, archive.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			logger.Warnf("archive storage unavailable: %v", err)
		} else {
			a.Archiver = archive.New(objects, a.Revisions)
		}
	}

	a.Registry = prometheus.NewRegistry()
	metrics.RegisterCollectors(a.Registry)
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config
	var st store.Store
	if cfg.MongoDB.URI != "" {
		client, err := mongostore.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts, logger.Warnf)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongodb")
		}
		a.mongo = client
		st = mongostore.New(client.Database(cfg.MongoDB.Database))
		logger.Infof("using MongoDB database %s", cfg.MongoDB.Database)
	} else {
		st = memory.New()
		logger.Infof("using in-memory store")
	}

	if addr := cfg.Redis.Addr(); addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis %s unavailable, running without cache: %v", addr, err)
			_ = rc.Close()
		} else {
			a.redis = rc
			st = rediscache.New(st, rc, cachePrefix, cfg.Redis.CacheTTL)
			logger.Infof("document cache enabled on %s", addr)
		}
	}
	return st, nil
}

// RegisterSchemaFile registers every type declared in a YAML schema file.
func RegisterSchemaFile(sess *odm.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read schema file")
	}
	types, err := schema.LoadYAML(data)
	if err != nil {
		return errors.Wrapf(err, "schema file %s", path)
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := sess.Register(name, types[name]); err != nil {
			return err
		}
	}
	logger.Infof("registered %d document types from %s", len(names), path)
	return nil
}

// Verifier builds the bearer verifier for the configured auth sources, or
// nil when none is configured.
func (a *App) Verifier(ctx context.Context) (middleware.Verifier, error) {
	var vs middleware.AnyVerifier
	if s := a.Config.Auth.JWTSecret; s != "" {
		vs = append(vs, middleware.NewHS256Verifier(s))
	}
	if iss := a.Config.Auth.OIDCIssuer; iss != "" {
		v, err := middleware.NewOIDCVerifier(ctx, iss, a.Config.Auth.OIDCClientID)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	if len(vs) == 0 {
		return nil, nil
	}
	return vs, nil
}

// RateLimit returns the configured limiter, preferring Redis when connected.
func (a *App) RateLimit() gin.HandlerFunc {
	rl := a.Config.RateLimit
	if !rl.Enabled {
		return nil
	}
	if a.redis != nil {
		return middleware.RedisRateLimitMiddleware(a.redis, rl.RPS, rl.Burst, rl.Window)
	}
	return middleware.RateLimitMiddleware(rl.RPS, rl.Burst)
}

// Router builds the HTTP API over this app.
func (a *App) Router(ctx context.Context) (*gin.Engine, error) {
	v, err := a.Verifier(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewRouter(api.Deps{
		Session:   a.Session,
		Revisions: a.Revisions,
		Archiver:  a.Archiver,
		Verifier:  v,
		RateLimit: a.RateLimit(),
		Gatherer:  a.Registry,
	}), nil
}

// Close releases backend connections.
func (a *App) Close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			logger.Warnf("mongodb disconnect: %v", err)
		}
	}
}
