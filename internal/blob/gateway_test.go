package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stager/internal/domain"
	"stager/internal/storage"
)

type failingBackend struct{}

func (failingBackend) Write(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", errors.New("disk full")
}

func (failingBackend) Read(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func (failingBackend) Delete(ctx context.Context, key string) error {
	return errors.New("denied")
}

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return NewGateway(fs, fs)
}

func TestGatewayOriginalRoundTrip(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	ref, err := g.StoreOriginal(ctx, "job_1", "../My Living Room.jpg", "image/jpeg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("store original: %v", err)
	}
	if ref != "uploads/job_1/My_Living_Room.jpg" {
		t.Fatalf("ref = %q", ref)
	}
	data, err := g.FetchOriginal(ctx, ref)
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("fetch = %q, %v", data, err)
	}
}

func TestGatewayStoreOriginalRejectsEmpty(t *testing.T) {
	g := newGateway(t)
	if _, err := g.StoreOriginal(context.Background(), "job_1", "a.png", "image/png", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGatewayResultKeysAreDistinct(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.WithClock(func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	})

	first, err := g.StoreResult(ctx, "job_1", []byte("one"))
	if err != nil {
		t.Fatalf("store result: %v", err)
	}
	second, err := g.StoreResult(ctx, "job_1", []byte("two"))
	if err != nil {
		t.Fatalf("store result: %v", err)
	}
	if first == second {
		t.Fatalf("result refs collide: %q", first)
	}
	if !strings.HasPrefix(first, "outputs/job_1/staged_") || !strings.HasSuffix(first, ".png") {
		t.Fatalf("unexpected result ref %q", first)
	}
	data, _ := g.FetchResult(ctx, first)
	if string(data) != "one" {
		t.Fatalf("first result overwritten: %q", data)
	}
}

func TestGatewayFailureKinds(t *testing.T) {
	g := NewGateway(failingBackend{}, failingBackend{})
	ctx := context.Background()

	if _, err := g.StoreOriginal(ctx, "job_1", "a.png", "image/png", []byte("x")); !errors.Is(err, domain.ErrStoreFailed) {
		t.Fatalf("StoreOriginal: expected ErrStoreFailed, got %v", err)
	}
	if _, err := g.StoreResult(ctx, "job_1", []byte("x")); !errors.Is(err, domain.ErrStoreFailed) {
		t.Fatalf("StoreResult: expected ErrStoreFailed, got %v", err)
	}
	if _, err := g.FetchOriginal(ctx, "uploads/job_1/a.png"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("FetchOriginal: expected ErrFetchFailed, got %v", err)
	}
	if _, err := g.FetchResult(ctx, ""); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("FetchResult: expected ErrFetchFailed, got %v", err)
	}
	if err := g.Purge(ctx, "a", "b"); err == nil {
		t.Fatalf("Purge: expected joined error")
	}
}

func TestGatewayMissingObjectIsFetchFailure(t *testing.T) {
	g := newGateway(t)
	if _, err := g.FetchOriginal(context.Background(), "uploads/nope/a.png"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestGatewayPurge(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	src, _ := g.StoreOriginal(ctx, "job_2", "a.png", "image/png", []byte("a"))
	res, _ := g.StoreResult(ctx, "job_2", []byte("b"))
	if err := g.Purge(ctx, src, res); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := g.FetchOriginal(ctx, src); err == nil {
		t.Fatalf("source still readable after purge")
	}
	if _, err := g.FetchResult(ctx, res); err == nil {
		t.Fatalf("result still readable after purge")
	}
}
