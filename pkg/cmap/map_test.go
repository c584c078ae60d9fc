package cmap

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{8, 8},
		{64, 64},
	}
	for _, tt := range tests {
		m := NewWithShards[string, int](tt.in)
		if len(m.shards) != tt.want {
			t.Errorf("NewWithShards(%d) shards = %d, want %d", tt.in, len(m.shards), tt.want)
		}
	}
}

func TestBasicOps(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if !m.Has("b") || m.Has("c") {
		t.Error("Has() wrong")
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
	m.Delete("a")
	if m.Has("a") {
		t.Error("Delete() left the key")
	}
	if v, ok := m.Pop("b"); !ok || v != 2 || m.Count() != 0 {
		t.Errorf("Pop(b) = %d, %v", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Error("Pop() of missing key reported ok")
	}
}

func TestSwap(t *testing.T) {
	m := New[string, string]()
	if _, loaded := m.Swap("k", "v1"); loaded {
		t.Error("first Swap() reported a previous value")
	}
	prev, loaded := m.Swap("k", "v2")
	if !loaded || prev != "v1" {
		t.Errorf("Swap() = %q, %v; want v1, true", prev, loaded)
	}
	if v, _ := m.Get("k"); v != "v2" {
		t.Errorf("Get() = %q, want v2", v)
	}
}

func TestLoadOrStore(t *testing.T) {
	m := New[string, int]()
	if v, loaded := m.LoadOrStore("k", 1); loaded || v != 1 {
		t.Errorf("LoadOrStore() = %d, %v", v, loaded)
	}
	if v, loaded := m.LoadOrStore("k", 2); !loaded || v != 1 {
		t.Errorf("LoadOrStore() = %d, %v; want 1, true", v, loaded)
	}
}

func TestUpdateIf(t *testing.T) {
	m := New[string, int]()
	if _, ok := m.UpdateIf("missing", func(v int) (int, bool) { return v + 1, true }); ok {
		t.Error("UpdateIf() wrote an absent key")
	}
	if m.Has("missing") {
		t.Error("UpdateIf() created a key")
	}

	m.Set("k", 5)
	v, ok := m.UpdateIf("k", func(v int) (int, bool) { return v * 2, v > 3 })
	if !ok || v != 10 {
		t.Errorf("UpdateIf() = %d, %v; want 10, true", v, ok)
	}
	v, ok = m.UpdateIf("k", func(v int) (int, bool) { return 0, false })
	if ok || v != 10 {
		t.Errorf("rejected UpdateIf() = %d, %v; want 10, false", v, ok)
	}
}

func TestDeleteIf(t *testing.T) {
	m := New[string, string]()
	m.Set("k", "owner-a")
	if m.DeleteIf("k", func(v string) bool { return v == "owner-b" }) {
		t.Error("DeleteIf() removed on a rejected predicate")
	}
	if !m.DeleteIf("k", func(v string) bool { return v == "owner-a" }) {
		t.Error("DeleteIf() did not remove on an accepted predicate")
	}
	if m.DeleteIf("k", func(string) bool { return true }) {
		t.Error("DeleteIf() reported removing a missing key")
	}
}

func TestRangeKeysValues(t *testing.T) {
	m := New[int, string]()
	for i := 0; i < 50; i++ {
		m.Set(i, fmt.Sprint(i))
	}
	keys := m.Keys()
	sort.Ints(keys)
	if len(keys) != 50 || keys[0] != 0 || keys[49] != 49 {
		t.Errorf("Keys() = %v", keys)
	}
	if len(m.Values()) != 50 {
		t.Errorf("Values() len = %d", len(m.Values()))
	}

	seen := 0
	m.Range(func(int, string) bool {
		seen++
		return seen < 10
	})
	if seen != 10 {
		t.Errorf("Range() did not stop early: %d", seen)
	}
}

func TestConcurrentUpdateIf(t *testing.T) {
	m := New[string, int]()
	m.Set("counter", 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.UpdateIf("counter", func(v int) (int, bool) { return v + 1, true })
		}()
	}
	wg.Wait()

	if v, _ := m.Get("counter"); v != 100 {
		t.Errorf("counter = %d, want 100", v)
	}
}

func TestConcurrentSwapSingleWinner(t *testing.T) {
	m := New[string, int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, loaded := m.Swap("k", i); !loaded {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if fresh != 1 {
		t.Errorf("Swap() found an empty slot %d times, want 1", fresh)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}
