// Package projectstore holds the in-flight Project aggregates in a bounded
// LRU cache. Removing an entry — whether by capacity eviction or an explicit
// delete — runs a registered cleanup hook exactly once, so a project's local
// working-directory artifacts are reclaimed no later than the moment its
// in-memory handle disappears.
package projectstore

import (
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reelami/reelads/internal/models"
)

// CleanupFunc runs when a project leaves the store. Errors belong to the hook;
// the store logs and proceeds, the removal always wins.
type CleanupFunc func(id uuid.UUID, project *models.Project)

type Store struct {
	cache *lru.Cache[uuid.UUID, *models.Project]
}

// New creates a store with a fixed capacity. Inserting beyond capacity evicts
// the least-recently-accessed project and fires cleanup for it.
func New(capacity int, cleanup CleanupFunc) (*Store, error) {
	onEvict := func(id uuid.UUID, project *models.Project) {
		if cleanup == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ProjectStore] cleanup panicked for project %s: %v", id, r)
			}
		}()
		cleanup(id, project)
	}

	cache, err := lru.NewWithEvict[uuid.UUID, *models.Project](capacity, onEvict)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

// Get returns the project and refreshes its recency.
func (s *Store) Get(id uuid.UUID) (*models.Project, bool) {
	return s.cache.Get(id)
}

// Put inserts or updates a project. Updating an existing key refreshes
// recency without firing cleanup — it is an update, not a removal.
func (s *Store) Put(id uuid.UUID, project *models.Project) {
	s.cache.Add(id, project)
}

// Delete removes a project, firing its cleanup hook. Deleting an absent key
// is a no-op, which keeps cleanup exactly-once when eviction races an
// explicit delete.
func (s *Store) Delete(id uuid.UUID) {
	s.cache.Remove(id)
}

func (s *Store) Len() int {
	return s.cache.Len()
}

// WorkdirCleanup returns the standard cleanup hook: it deletes the project's
// working directory under baseDir. Failures are logged, never propagated.
func WorkdirCleanup(baseDir string) CleanupFunc {
	return func(id uuid.UUID, _ *models.Project) {
		dir := filepath.Join(baseDir, id.String())
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[ProjectStore] failed to remove workdir %s: %v", dir, err)
			return
		}
		log.Printf("[ProjectStore] reclaimed workdir for project %s", id)
	}
}
