package models

import (
	"fmt"
	"sync"
	"testing"
)

func TestFormatNPU(t *testing.T) {
	cases := []struct {
		client   int
		service  int
		provider int
		sequence int
		year     int
		want     string
	}{
		{1, 2, 3, 7, 2025, "001-0002-03-00725"},
		{12, 34, 5, 123, 2026, "012-0034-05-12326"},
		{999, 9999, 99, 999, 2099, "999-9999-99-99999"},
		{1, 1, 1, 1, 2000, "001-0001-01-00100"},
	}
	for _, tc := range cases {
		got := FormatNPU(tc.client, tc.service, tc.provider, tc.sequence, tc.year)
		if got != tc.want {
			t.Fatalf("FormatNPU(%d, %d, %d, %d, %d) = %q, want %q",
				tc.client, tc.service, tc.provider, tc.sequence, tc.year, got, tc.want)
		}
	}
}

// memoryAllocator mirrors the counter contract without a database: one
// sequence per (domain, year), starting at 1, no gaps, no repeats.
type memoryAllocator struct {
	mu   sync.Mutex
	next map[string]int
}

func (a *memoryAllocator) allocate(domain string, year int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next == nil {
		a.next = map[string]int{}
	}
	key := fmt.Sprintf("%s:%d", domain, year)
	a.next[key]++
	return a.next[key]
}

func TestSequenceAllocation_ConcurrentCallersGetDistinctValues(t *testing.T) {
	const callers = 64
	alloc := &memoryAllocator{}

	results := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- alloc.allocate(CounterDomainProjects, 2025)
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for v := range results {
		if seen[v] {
			t.Fatalf("sequence %d allocated twice", v)
		}
		seen[v] = true
	}
	for v := 1; v <= callers; v++ {
		if !seen[v] {
			t.Fatalf("sequence %d was never allocated", v)
		}
	}
}

func TestSequenceAllocation_IndependentPerDomainAndYear(t *testing.T) {
	alloc := &memoryAllocator{}

	if got := alloc.allocate(CounterDomainProjects, 2025); got != 1 {
		t.Fatalf("first projects/2025 sequence = %d, want 1", got)
	}
	if got := alloc.allocate(CounterDomainProjects, 2026); got != 1 {
		t.Fatalf("year rollover must restart at 1, got %d", got)
	}
	if got := alloc.allocate(CounterDomainDeliveryNotes, 2025); got != 1 {
		t.Fatalf("separate domain must have its own sequence, got %d", got)
	}
	if got := alloc.allocate(CounterDomainProjects, 2025); got != 2 {
		t.Fatalf("second projects/2025 sequence = %d, want 2", got)
	}
}
