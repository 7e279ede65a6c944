package vector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/mentoria/internal/models"
)

// Corpus is a loaded artifact: an index and its row-aligned metadata.
type Corpus struct {
	Key    string
	Index  VectorIndex
	Chunks []models.DocumentChunk
}

// Store resolves agent ids to loaded corpora. An agent without its own artifact
// is served by the shared fallback artifact. Successful loads are kept for the
// life of the Store; failed loads are not remembered and are retried on the next call.
type Store struct {
	dir      string
	fallback string
	opener   Opener
	logger   *zap.Logger

	mu      sync.RWMutex
	byAgent map[string]*Corpus
	byKey   map[string]*Corpus
	group   singleflight.Group
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store over artifacts under dir. fallback names the shared
// artifact directory used when an agent has none.
func NewStore(dir, fallback string, opener Opener, opts ...StoreOption) *Store {
	s := &Store{
		dir:      dir,
		fallback: fallback,
		opener:   opener,
		logger:   zap.NewNop(),
		byAgent:  make(map[string]*Corpus),
		byKey:    make(map[string]*Corpus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the corpus serving agentID. It returns ErrIndexNotFound when
// neither the agent artifact nor the fallback is usable, and ErrMisaligned when
// an artifact exists but its index and metadata disagree.
func (s *Store) Load(ctx context.Context, agentID string) (*Corpus, error) {
	if c, ok := s.cached(agentID); ok {
		return c, nil
	}
	v, err, _ := s.group.Do(agentID, func() (interface{}, error) {
		if c, ok := s.cached(agentID); ok {
			return c, nil
		}
		c, err := s.resolve(ctx, agentID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.byAgent[agentID] = c
		s.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Corpus), nil
}

func (s *Store) cached(agentID string) (*Corpus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byAgent[agentID]
	return c, ok
}

func (s *Store) resolve(ctx context.Context, agentID string) (*Corpus, error) {
	if validKey(agentID) && agentID != s.fallback {
		c, err := s.openKey(ctx, agentID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrIndexNotFound) {
			return nil, err
		}
		s.logArtifactMiss(agentID, err)
	}

	c, err := s.openKey(ctx, s.fallback)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			s.logArtifactMiss(s.fallback, err)
		}
		return nil, err
	}
	s.logger.Debug("serving agent from fallback index",
		zap.String("agent", agentID), zap.String("fallback", s.fallback))
	return c, nil
}

// openKey loads the artifact for key, reusing one already loaded under that key.
func (s *Store) openKey(ctx context.Context, key string) (*Corpus, error) {
	s.mu.RLock()
	c, ok := s.byKey[key]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	dir := filepath.Join(s.dir, key)
	chunks, err := LoadMetadata(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, notFound(err)
	}
	idx, err := s.opener.Open(ctx, key, dir)
	if err != nil {
		return nil, err
	}
	if idx.Size() != len(chunks) {
		_ = idx.Close()
		err := fmt.Errorf("%w: %s has %d vectors and %d metadata records", ErrMisaligned, key, idx.Size(), len(chunks))
		s.logger.Error("rejecting index artifact", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	c = &Corpus{Key: key, Index: idx, Chunks: chunks}
	s.mu.Lock()
	if existing, ok := s.byKey[key]; ok {
		s.mu.Unlock()
		_ = idx.Close()
		return existing, nil
	}
	s.byKey[key] = c
	s.mu.Unlock()

	s.logger.Info("loaded index artifact",
		zap.String("key", key),
		zap.String("type", idx.Type()),
		zap.Int("rows", idx.Size()),
		zap.Int("dimensions", idx.Dimensions()))
	return c, nil
}

func (s *Store) logArtifactMiss(key string, err error) {
	if isMissing(err) {
		s.logger.Debug("no index artifact", zap.String("key", key))
		return
	}
	s.logger.Warn("unreadable index artifact", zap.String("key", key), zap.Error(err))
}

// Cached returns the agent ids with a loaded corpus, sorted.
func (s *Store) Cached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byAgent))
	for id := range s.byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases every loaded index and the opener.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for key, c := range s.byKey {
		if err := c.Index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	s.byKey = make(map[string]*Corpus)
	s.byAgent = make(map[string]*Corpus)
	if err := s.opener.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validKey reports whether id can name an artifact directory.
func validKey(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
