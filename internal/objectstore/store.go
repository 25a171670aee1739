package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrPermissionDenied means the store refused the credentials in use.
	ErrPermissionDenied = errors.New("object store permission denied")
	ErrObjectNotFound   = errors.New("object not found")
)

// Store is a flat key space of public blobs. Put overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

var Module = fx.Module("objectstore",
	fx.Provide(New),
)

const (
	DriverGCS    = "gcs"
	DriverLocal  = "local"
	DriverMemory = "memory"
)

func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Store, error) {
	storageCfg := cfg.ObjectStorage
	log = log.Named("objectstore")

	switch storageCfg.Driver {
	case DriverGCS:
		store, err := NewGCS(context.Background(), storageCfg)
		if err != nil {
			return nil, fmt.Errorf("create gcs store: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return store.Close()
			},
		})
		log.Info("object storage initialized",
			zap.String("driver", DriverGCS),
			zap.String("bucket", storageCfg.Bucket),
			zap.Bool("emulator", storageCfg.EmulatorHost != ""),
		)
		return store, nil
	case DriverLocal, "":
		base := storageCfg.PublicBaseURL
		if base == "" {
			base = localBaseURL(cfg.HTTPAddr)
		}
		log.Info("object storage initialized",
			zap.String("driver", DriverLocal),
			zap.String("root", storageCfg.LocalRoot),
			zap.String("public_base_url", base),
		)
		return NewLocal(storageCfg.LocalRoot, base), nil
	case DriverMemory:
		base := storageCfg.PublicBaseURL
		if base == "" {
			base = localBaseURL(cfg.HTTPAddr)
		}
		return NewMemory(base), nil
	default:
		return nil, fmt.Errorf("unknown object storage driver %q", storageCfg.Driver)
	}
}

// LocalMediaPrefix is the route the HTTP server serves local objects under.
const LocalMediaPrefix = "/media"

func localBaseURL(httpAddr string) string {
	host := strings.TrimSpace(httpAddr)
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + LocalMediaPrefix
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(strings.TrimSpace(key), "/")
}
