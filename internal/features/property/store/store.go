package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"propchain/internal/common/logger"
	"propchain/internal/features/property/models"
	"propchain/internal/features/property/source"
)

const featuredFallback = 3

// Store is the in-memory property collection shared by all pages.
type Store struct {
	source source.Source
	log    zerolog.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	items     []models.Property
	index     map[string]int
	loading   int
	fetchedAt time.Time
	lastErr   error

	// owner is the account the collection belongs to; gen changes with it
	// and on Clear, so a fetch started for an earlier owner never commits.
	owner string
	gen   uint64
}

func New(src source.Source) *Store {
	return &Store{
		source: src,
		log:    logger.Component("property-store"),
		index:  make(map[string]int),
	}
}

// FetchAll replaces the collection with what the source returns for owner.
// Concurrent calls for the same owner share one fetch. On error the
// previous collection is kept. A fetch overtaken by a newer owner or by
// Clear is discarded.
func (s *Store) FetchAll(ctx context.Context, owner common.Address) error {
	gen := s.claim(owner.Hex())
	key := owner.Hex() + "/" + strconv.FormatUint(gen, 10)

	_, err, shared := s.group.Do(key, func() (interface{}, error) {
		s.setLoading(1)
		defer s.setLoading(-1)

		items, err := s.source.Fetch(ctx, owner)
		if err != nil {
			if s.current(gen) {
				s.mu.Lock()
				s.lastErr = err
				s.mu.Unlock()
			}
			s.log.Error().Err(err).Str("owner", owner.Hex()).Msg("failed to fetch properties")
			return nil, err
		}
		if !s.commit(gen, items) {
			s.log.Debug().Str("owner", owner.Hex()).Msg("discarded stale property fetch")
			return nil, nil
		}
		s.log.Info().Str("owner", owner.Hex()).Int("count", len(items)).Msg("properties fetched")
		return nil, nil
	})
	if shared {
		s.log.Debug().Str("owner", owner.Hex()).Msg("joined in-flight property fetch")
	}
	return err
}

// claim makes owner the current one and returns the generation to commit under.
func (s *Store) claim(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == 0 || s.owner != owner {
		s.owner = owner
		s.gen++
	}
	return s.gen
}

func (s *Store) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen == gen
}

func (s *Store) commit(gen uint64, items []models.Property) bool {
	index := make(map[string]int, len(items))
	for i, p := range items {
		index[p.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.items = items
	s.index = index
	s.fetchedAt = time.Now()
	s.lastErr = nil
	return true
}

func (s *Store) setLoading(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading += delta
}

// Clear empties the collection, e.g. after the wallet disconnects.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.gen++
	s.items = nil
	s.index = make(map[string]int)
	s.fetchedAt = time.Now()
	s.lastErr = nil
}

// GetByID looks up an already fetched record. It never triggers a fetch.
func (s *Store) GetByID(id string) (models.Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Property{}, false
	}
	return s.items[i], true
}

// All returns a copy of the collection in source order.
func (s *Store) All() []models.Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Property(nil), s.items...)
}

func (s *Store) Owned(owner string) []models.Property {
	var out []models.Property
	for _, p := range s.All() {
		if strings.EqualFold(p.Owner, owner) {
			out = append(out, p)
		}
	}
	return out
}

// Featured returns flagged records, or the first few when none are flagged.
func (s *Store) Featured() []models.Property {
	all := s.All()
	var out []models.Property
	for _, p := range all {
		if p.Featured {
			out = append(out, p)
		}
	}
	if len(out) == 0 && len(all) > 0 {
		n := min(featuredFallback, len(all))
		out = all[:n]
	}
	return out
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}
