// Package blob maps job identifiers onto object keys in the upload and
// output stores.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"stager/internal/domain"
	"stager/internal/storage"
)

const (
	uploadsPrefix = "uploads"
	outputsPrefix = "outputs"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Gateway fronts two backends: uploaded originals and produced results.
type Gateway struct {
	uploads storage.Backend
	outputs storage.Backend
	now     func() time.Time
}

// NewGateway builds a gateway. The same backend may serve both roles.
func NewGateway(uploads, outputs storage.Backend) *Gateway {
	return &Gateway{uploads: uploads, outputs: outputs, now: time.Now}
}

// WithClock overrides the clock used for result key suffixes.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// StoreOriginal writes an uploaded artifact and returns its source reference.
func (g *Gateway) StoreOriginal(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty artifact", domain.ErrInvalidInput)
	}
	key := path.Join(uploadsPrefix, jobID, safeFilename(filename))
	ref, err := g.uploads.Write(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	return ref, nil
}

// FetchOriginal reads the bytes behind a source reference.
func (g *Gateway) FetchOriginal(ctx context.Context, sourceRef string) ([]byte, error) {
	return fetch(ctx, g.uploads, sourceRef)
}

// StoreResult writes a produced artifact under a fresh key so an earlier
// attempt's output for the same job is never overwritten.
func (g *Gateway) StoreResult(ctx context.Context, jobID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty result", domain.ErrStoreFailed)
	}
	key := ResultKey(jobID, g.now())
	ref, err := g.outputs.Write(ctx, key, data, "image/png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	return ref, nil
}

// FetchResult reads the bytes behind a result reference.
func (g *Gateway) FetchResult(ctx context.Context, resultRef string) ([]byte, error) {
	return fetch(ctx, g.outputs, resultRef)
}

// Purge removes the source and result objects of a job. Empty refs are skipped.
func (g *Gateway) Purge(ctx context.Context, sourceRef, resultRef string) error {
	var errs []error
	if sourceRef != "" {
		if err := g.uploads.Delete(ctx, sourceRef); err != nil {
			errs = append(errs, err)
		}
	}
	if resultRef != "" {
		if err := g.outputs.Delete(ctx, resultRef); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResultKey derives the output key for jobID at t.
func ResultKey(jobID string, t time.Time) string {
	return path.Join(outputsPrefix, jobID, fmt.Sprintf("staged_%d.png", t.UnixMilli()))
}

func fetch(ctx context.Context, backend storage.Backend, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty reference", domain.ErrFetchFailed)
	}
	data, err := backend.Read(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: object %s not found", domain.ErrFetchFailed, ref)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	return data, nil
}

func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "original"
	}
	return name
}
