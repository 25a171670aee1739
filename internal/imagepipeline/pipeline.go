package imagepipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/objectstore"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolution is the outcome of resolving one image list. URLs keeps the
// submitted order. Keys lists the objects uploaded by the call.
type Resolution struct {
	URLs []string
	Keys []string
}

// Pipeline turns submitted image strings into durable URLs, uploading
// embedded payloads to the object store.
type Pipeline struct {
	store   objectstore.Store
	policy  PolicySource
	log     *zap.Logger
	metrics *metrics.Metrics
	newName func() string
}

type Params struct {
	fx.In

	Store   objectstore.Store
	Policy  *PolicyHolder
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) *Pipeline {
	return &Pipeline{
		store:   p.Store,
		policy:  p.Policy,
		log:     p.Log.Named("imagepipeline"),
		metrics: p.Metrics,
		newName: func() string { return strings.ToLower(ulid.Make().String()) },
	}
}

// Resolve handles every entry concurrently and waits for all of them. Any
// failing entry fails the call, and objects it already uploaded are removed.
func (p *Pipeline) Resolve(ctx context.Context, ownerID, businessID snowflake.ID, images []string) (Resolution, error) {
	if len(images) == 0 {
		return Resolution{URLs: []string{}}, nil
	}
	policy := p.policy.Get()
	if len(images) > policy.MaxImages {
		return Resolution{}, fmt.Errorf("%w: at most %d images are accepted, got %d",
			domain.ErrUnsupportedFormat, policy.MaxImages, len(images))
	}

	urls := make([]string, len(images))
	var (
		mu       sync.Mutex
		uploaded []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range images {
		g.Go(func() error {
			url, key, err := p.resolveOne(gctx, policy, ownerID, businessID, raw)
			if err != nil {
				return fmt.Errorf("images[%d]: %w", i, err)
			}
			if key != "" {
				mu.Lock()
				uploaded = append(uploaded, key)
				mu.Unlock()
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.Discard(context.WithoutCancel(ctx), uploaded)
		return Resolution{}, err
	}
	return Resolution{URLs: urls, Keys: uploaded}, nil
}

func (p *Pipeline) resolveOne(ctx context.Context, policy Policy, ownerID, businessID snowflake.ID, raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case isDurableURL(raw):
		return raw, "", nil
	case isDataURL(raw):
	default:
		return "", "", fmt.Errorf("%w: expected an http(s) URL or a base64 data URL", domain.ErrUnsupportedFormat)
	}

	payload, err := parseDataURL(raw, policy.MaxBytes)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
	}
	if !policy.Allows(payload.contentType) {
		return "", "", fmt.Errorf("%w: content type %q is not accepted", domain.ErrUnsupportedFormat, payload.contentType)
	}
	ext, err := extensionFor(policy, payload)
	if err != nil {
		return "", "", err
	}

	key := fmt.Sprintf("%s/%s/%s%s", ownerID, businessID, p.newName(), ext)
	err = p.store.Put(ctx, key, payload.contentType, bytes.NewReader(payload.data))
	p.metrics.RecordImageUpload(ctx, payload.contentType, len(payload.data), err)
	if err != nil {
		return "", "", translateStoreError(key, err)
	}
	return p.store.PublicURL(key), key, nil
}

// extensionFor names the object after the declared type. With SniffContent
// set, the bytes must also be of that type.
func extensionFor(policy Policy, payload embedded) (string, error) {
	if policy.SniffContent {
		detected := mimetype.Detect(payload.data)
		if !detected.Is(payload.contentType) {
			return "", fmt.Errorf("%w: payload is %s, declared %s", domain.ErrUnsupportedFormat, detected.String(), payload.contentType)
		}
		return detected.Extension(), nil
	}
	if declared := mimetype.Lookup(payload.contentType); declared != nil {
		return declared.Extension(), nil
	}
	return "", nil
}

func translateStoreError(key string, err error) error {
	if errors.Is(err, objectstore.ErrPermissionDenied) {
		return fmt.Errorf("%w: the image store rejected the upload of %s; grant the service account write access to the bucket (%v)",
			domain.ErrPermissionDenied, key, err)
	}
	return fmt.Errorf("%w: upload %s: %w", domain.ErrStorage, key, err)
}

// Discard deletes uploaded objects. Failures are logged only.
func (p *Pipeline) Discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
			p.log.Warn("discard uploaded image failed", zap.String("key", key), zap.Error(err))
		}
	}
}
