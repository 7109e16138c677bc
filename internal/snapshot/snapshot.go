// Package snapshot stores rendered pages in a blob store under
// content-addressed names grouped by run.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/clock/system"
	"github.com/JakeFAU/zbrowser/internal/hash/sha256"
	"github.com/JakeFAU/zbrowser/internal/id/uuid"
	"github.com/JakeFAU/zbrowser/internal/storage"
)

// ErrEmptySnapshot is returned when there is no markup to store.
var ErrEmptySnapshot = errors.New("empty snapshot")

// Clock supplies capture timestamps.
type Clock interface {
	Now() time.Time
}

// Hasher names snapshots by content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls where snapshots land.
type Config struct {
	Prefix      string
	ContentType string
}

// Record describes one stored snapshot.
type Record struct {
	URL        string    `json:"url"`
	RunID      string    `json:"run_id"`
	Hash       string    `json:"hash"`
	URI        string    `json:"uri"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// Option customizes a Sink.
type Option func(*Sink)

// WithClock overrides the capture clock.
func WithClock(c Clock) Option { return func(s *Sink) { s.clock = c } }

// WithHasher overrides the content hasher.
func WithHasher(h Hasher) Option { return func(s *Sink) { s.hasher = h } }

// WithIDGenerator overrides the run id source.
func WithIDGenerator(g IDGenerator) Option { return func(s *Sink) { s.ids = g } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Sink) { s.logger = l } }

// Sink writes snapshots for a single run.
type Sink struct {
	store  storage.BlobStore
	cfg    Config
	runID  string
	clock  Clock
	hasher Hasher
	ids    IDGenerator
	logger *zap.Logger
}

// New creates a Sink with a fresh run id.
func New(store storage.BlobStore, cfg Config, opts ...Option) (*Sink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	s := &Sink{
		store:  store,
		cfg:    cfg,
		clock:  system.New(),
		hasher: sha256.New(),
		ids:    uuid.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	runID, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	s.runID = runID
	return s, nil
}

// RunID returns the id grouping this sink's snapshots.
func (s *Sink) RunID() string {
	return s.runID
}

// Save stores html captured from url and returns where it went.
func (s *Sink) Save(ctx context.Context, url, html string) (Record, error) {
	if strings.TrimSpace(html) == "" {
		return Record{}, fmt.Errorf("%s: %w", url, ErrEmptySnapshot)
	}
	body := []byte(html)
	hash, err := s.hasher.Hash(body)
	if err != nil {
		return Record{}, fmt.Errorf("hash snapshot: %w", err)
	}
	path := s.buildBlobPath(hash)
	uri, err := s.store.PutObject(ctx, path, s.cfg.ContentType, strings.NewReader(html))
	if err != nil {
		return Record{}, fmt.Errorf("put object: %w", err)
	}
	rec := Record{
		URL:        url,
		RunID:      s.runID,
		Hash:       hash,
		URI:        uri,
		Bytes:      len(body),
		CapturedAt: s.clock.Now(),
	}
	s.logger.Info("snapshot stored",
		zap.String("url", url),
		zap.String("uri", uri),
		zap.Int("bytes", rec.Bytes),
	)
	return rec, nil
}

func (s *Sink) buildBlobPath(hash string) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", s.runID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, s.runID, hash)
}
