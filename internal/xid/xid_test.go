package xid

import (
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestNewFormat(t *testing.T) {
	id := New(PrefixSale)

	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts in %q, got %d", id, len(parts))
	}
	if parts[0] != PrefixSale {
		t.Fatalf("expected prefix %q, got %q", PrefixSale, parts[0])
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		t.Fatalf("expected numeric timestamp part, got %q: %v", parts[1], err)
	}
	if len(parts[2]) != 16 {
		t.Fatalf("expected 16 random characters, got %q", parts[2])
	}
	if !HasPrefix(id, PrefixSale) || HasPrefix(id, PrefixPayment) {
		t.Fatalf("unexpected prefix match for %q", id)
	}
}

func TestNewDoesNotCollideUnderConcurrentVolume(t *testing.T) {
	const workers = 8
	const perWorker = 5000

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, New(PrefixProduct))
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}
