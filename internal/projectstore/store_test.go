package projectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/reelami/reelads/internal/models"
)

func newProject() *models.Project {
	return &models.Project{ID: uuid.New(), Status: models.StatusCreated}
}

func TestCapacityEvictionRunsCleanup(t *testing.T) {
	var mu sync.Mutex
	cleaned := make(map[uuid.UUID]int)

	store, err := New(2, func(id uuid.UUID, _ *models.Project) {
		mu.Lock()
		cleaned[id]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	p1, p2, p3 := newProject(), newProject(), newProject()
	store.Put(p1.ID, p1)
	store.Put(p2.ID, p2)

	// Third insert evicts the least recently used (p1)
	store.Put(p3.ID, p3)

	mu.Lock()
	defer mu.Unlock()
	if cleaned[p1.ID] != 1 {
		t.Errorf("p1 cleanup count = %d, want 1", cleaned[p1.ID])
	}
	if cleaned[p2.ID] != 0 || cleaned[p3.ID] != 0 {
		t.Errorf("unexpected cleanup for surviving entries: %v", cleaned)
	}
	if _, ok := store.Get(p1.ID); ok {
		t.Error("evicted project still present")
	}
	if _, ok := store.Get(p3.ID); !ok {
		t.Error("newest project missing")
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	var mu sync.Mutex
	cleaned := make(map[uuid.UUID]int)

	store, err := New(2, func(id uuid.UUID, _ *models.Project) {
		mu.Lock()
		cleaned[id]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	p1, p2, p3 := newProject(), newProject(), newProject()
	store.Put(p1.ID, p1)
	store.Put(p2.ID, p2)

	// Touch p1 so p2 becomes the eviction candidate
	if _, ok := store.Get(p1.ID); !ok {
		t.Fatal("p1 missing before eviction")
	}
	store.Put(p3.ID, p3)

	mu.Lock()
	defer mu.Unlock()
	if cleaned[p2.ID] != 1 {
		t.Errorf("p2 cleanup count = %d, want 1", cleaned[p2.ID])
	}
	if cleaned[p1.ID] != 0 {
		t.Error("recently read project was evicted")
	}
}

func TestUpdateDoesNotRunCleanup(t *testing.T) {
	var mu sync.Mutex
	count := 0

	store, err := New(2, func(uuid.UUID, *models.Project) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	p := newProject()
	store.Put(p.ID, p)

	// Re-putting the same key is an update, not a removal
	p.Status = models.StatusDraft
	store.Put(p.ID, p)
	store.Put(p.ID, p)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("cleanup ran %d times on update, want 0", count)
	}
}

func TestDeleteRunsCleanupExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	count := 0

	store, err := New(4, func(uuid.UUID, *models.Project) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	p := newProject()
	store.Put(p.ID, p)
	store.Delete(p.ID)
	store.Delete(p.ID) // absent key, must be a no-op

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("cleanup ran %d times, want 1", count)
	}
}

func TestCleanupPanicDoesNotPropagate(t *testing.T) {
	store, err := New(4, func(uuid.UUID, *models.Project) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	p := newProject()
	store.Put(p.ID, p)
	store.Delete(p.ID) // must not panic the caller

	if store.Len() != 0 {
		t.Errorf("Len = %d after delete, want 0", store.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	store, err := New(8, func(uuid.UUID, *models.Project) {})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ids := make([]uuid.UUID, 32)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(g*31+i)%len(ids)]
				switch i % 3 {
				case 0:
					store.Put(id, &models.Project{ID: id})
				case 1:
					store.Get(id)
				case 2:
					store.Delete(id)
				}
			}
		}(g)
	}
	wg.Wait()

	if store.Len() > 8 {
		t.Errorf("Len = %d exceeds capacity 8", store.Len())
	}
}

func TestWorkdirCleanup(t *testing.T) {
	baseDir := t.TempDir()
	p := newProject()

	workdir := filepath.Join(baseDir, p.ID.String())
	if err := os.MkdirAll(filepath.Join(workdir, "assets"), 0755); err != nil {
		t.Fatalf("failed to create workdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workdir, "assets", "a.png"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	store, err := New(4, WorkdirCleanup(baseDir))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	store.Put(p.ID, p)
	store.Delete(p.ID)

	if _, err := os.Stat(workdir); !os.IsNotExist(err) {
		t.Errorf("workdir still exists after delete: %v", err)
	}
}

func TestEvictionReclaimsOnlyEvictedWorkdir(t *testing.T) {
	baseDir := t.TempDir()

	store, err := New(1, WorkdirCleanup(baseDir))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	projects := []*models.Project{newProject(), newProject()}
	for _, p := range projects {
		dir := filepath.Join(baseDir, p.ID.String())
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create workdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "voiceover.mp3"), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		store.Put(p.ID, p)
	}

	// Capacity 1: the first project was evicted by the second insert
	for i, p := range projects {
		dir := filepath.Join(baseDir, p.ID.String())
		_, err := os.Stat(dir)
		if i == 0 && !os.IsNotExist(err) {
			t.Error(fmt.Sprintf("evicted project %d workdir survived", i))
		}
		if i == 1 && err != nil {
			t.Error(fmt.Sprintf("resident project %d workdir removed: %v", i, err))
		}
	}
}
