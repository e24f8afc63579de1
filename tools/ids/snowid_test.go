package ids

import (
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	const n = 5000
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		id := Generate()
		if seen[id] {
			t.Fatalf("duplicate id %d after %d generations", id, i)
		}
		seen[id] = true
	}
}

func TestGenerateUniqueConcurrent(t *testing.T) {
	const workers, each = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]bool, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := Generate()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestGenerateStringDecimal(t *testing.T) {
	s := GenerateString()
	if s == "" {
		t.Fatal("empty id")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("non-decimal id %q", s)
		}
	}
}
