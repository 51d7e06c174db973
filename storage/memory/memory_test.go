package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmcleod/techsync/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put("authToken", []byte("tok-1")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get("authToken")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "tok-1" {
			t.Errorf("got %q, want %q", got, "tok-1")
		}

		// Returned slices are copies.
		got[0] = 'X'
		again, _ := repo.Get("authToken")
		if again[0] == 'X' {
			t.Error("memory repository should return clones of values")
		}
	})

	t.Run("PutCopiesInput", func(t *testing.T) {
		in := []byte("tok-2")
		if err := repo.Put("copy", in); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		in[0] = 'X'
		got, _ := repo.Get("copy")
		if string(got) != "tok-2" {
			t.Errorf("stored value changed with caller's slice: %q", got)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := repo.Delete("authToken"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete("authToken"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if _, err := repo.Get("authToken"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				_ = repo.Put(key, []byte(key))
				_, _ = repo.Get(key)
			}(i)
		}
		wg.Wait()
		if repo.Len() < 50 {
			t.Errorf("expected at least 50 keys, got %d", repo.Len())
		}
	})
}
