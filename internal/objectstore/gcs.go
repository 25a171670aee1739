package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/smallbiznis/directory/internal/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

// GCS stores objects in one Google Cloud Storage bucket.
type GCS struct {
	client        *storage.Client
	bucket        string
	cdnDomain     string
	publicBaseURL string
	emulatorHost  string
}

func NewGCS(ctx context.Context, cfg config.ObjectStorageConfig) (*GCS, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("missing OBJECT_STORAGE_BUCKET")
	}

	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	var opts []option.ClientOption
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" && emulator != "" {
		publicBase = emulator
	}

	return &GCS{
		client:        client,
		bucket:        cfg.Bucket,
		cdnDomain:     cfg.CDNDomain,
		publicBaseURL: publicBase,
		emulatorHost:  emulator,
	}, nil
}

// ClientOptionsFromEnv reads service account credentials given either inline
// as JSON or as a file path.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (g *GCS) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return classifyGCSError(fmt.Errorf("write object %q: %w", key, err))
	}
	if err := w.Close(); err != nil {
		return classifyGCSError(fmt.Errorf("close object %q: %w", key, err))
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return classifyGCSError(fmt.Errorf("delete object %q in bucket %q: %w", key, g.bucket, err))
	}
	return nil
}

func (g *GCS) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if g.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", g.cdnDomain, key)
	}
	if g.emulatorHost != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			strings.TrimRight(g.publicBaseURL, "/"),
			url.PathEscape(g.bucket),
			url.PathEscape(key),
		)
	}
	if g.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", g.publicBaseURL, g.bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// classifyGCSError marks credential and ACL rejections with ErrPermissionDenied.
func classifyGCSError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	return err
}
