// Package keystore resolves signing keys from a JWKS held in a local file or
// an S3 object. Parsed key sets are cached per source.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/boogy/aws-cwt-issuer/pkg/cache"
	"github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

// MaxDocumentSize bounds the JWKS bytes read from any source.
const MaxDocumentSize = 1 << 20

var (
	// ErrKeyNotFound is returned when the key set has no key with the requested kid.
	ErrKeyNotFound = cose.ErrKeyNotFound
	// ErrDocumentTooLarge is returned when a source exceeds MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("keystore: key set document too large")
	// ErrNoSource is returned when the configuration names no key source.
	ErrNoSource = errors.New("keystore: no key source configured")
)

// Source loads the raw JWKS document.
type Source interface {
	// ID identifies the source in the cache and in logs.
	ID() string
	Load(ctx context.Context) ([]byte, error)
}

// ObjectGetter is the part of the AWS consumer used to read key sets from S3.
type ObjectGetter interface {
	GetS3Object(bucket, key string) (io.ReadCloser, error)
}

// FileSource reads a JWKS from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) ID() string { return "file:" + f.Path }

func (f FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key set: %w", err)
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil {
			slog.Error("Error closing key set file", "path", f.Path, "error", cerr)
		}
	}()
	return readLimited(fh)
}

// S3Source reads a JWKS from an S3 object.
type S3Source struct {
	Bucket string
	Key    string
	Client ObjectGetter
}

func (s S3Source) ID() string { return "s3://" + s.Bucket + "/" + s.Key }

func (s S3Source) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Client == nil {
		return nil, errors.New("keystore: S3 source has no client")
	}
	body, err := s.Client.GetS3Object(s.Bucket, s.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to get key set from S3: %w", err)
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			slog.Error("Error closing S3 key set object", "error", cerr)
		}
	}()
	return readLimited(body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read key set: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

// Store hands out signing keys from a single source.
type Store struct {
	source     Source
	cache      cache.Cache
	ttl        time.Duration
	defaultKID string
}

// New creates a Store. A nil cache disables caching.
func New(source Source, c cache.Cache, ttl time.Duration, defaultKID string) *Store {
	return &Store{
		source:     source,
		cache:      c,
		ttl:        ttl,
		defaultKID: defaultKID,
	}
}

// NewFromConfig picks the S3 source when a key bucket is configured and the
// file source otherwise.
func NewFromConfig(cfg *config.Config, getter ObjectGetter, c cache.Cache) (*Store, error) {
	if cfg == nil || cfg.Key == nil {
		return nil, ErrNoSource
	}

	var source Source
	switch {
	case cfg.Key.S3Bucket != "":
		source = S3Source{Bucket: cfg.Key.S3Bucket, Key: cfg.Key.S3Path, Client: getter}
	case cfg.Key.File != "":
		source = FileSource{Path: cfg.Key.File}
	default:
		return nil, ErrNoSource
	}

	return New(source, c, cache.GetConfiguredTTL(cfg), cfg.Key.KeyID), nil
}

// SourceID returns the ID of the underlying source.
func (s *Store) SourceID() string {
	return s.source.ID()
}

// KeySet returns the parsed key set, loading it when the cache has no
// live entry.
func (s *Store) KeySet(ctx context.Context) (*cose.KeySet, error) {
	id := s.source.ID()
	if s.cache != nil {
		if set, found := s.cache.Get(id); found && set != nil {
			return set, nil
		}
	}

	data, err := s.source.Load(ctx)
	if err != nil {
		slog.Error("Failed to load key set", "source", id, "error", err)
		return nil, err
	}

	set, err := cose.ParseKeySet(data)
	if err != nil {
		slog.Error("Failed to parse key set", "source", id, "error", err)
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(id, set, s.ttl)
	}
	slog.Debug("Loaded key set", "source", id, "keys", set.Len())
	return set, nil
}

// SigningKey returns the key with the given kid. An empty kid falls back to
// the configured default, then to the first key of the set.
func (s *Store) SigningKey(ctx context.Context, kid string) (*cose.Key, error) {
	set, err := s.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid = s.defaultKID
	}
	return set.Lookup(kid)
}

// Invalidate drops the cached key set so the next call reloads it.
func (s *Store) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(s.source.ID())
	}
}
