package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/TristanCP/kapua/metric"
)

func TestBasicOperations(t *testing.T) {
	c, err := New[string]()
	if err != nil {
		t.Fatalf("unexpected error creating cache: %v", err)
	}

	// Get on empty cache
	if value, exists := c.Get("key1"); exists {
		t.Errorf("Expected cache miss, got value: %s", value)
	}

	// Set and Get
	isNew, err := c.Set("key1", "value1")
	if err != nil {
		t.Fatalf("Unexpected error setting key: %v", err)
	}
	if !isNew {
		t.Error("Expected new entry creation")
	}

	if value, exists := c.Get("key1"); !exists || value != "value1" {
		t.Errorf("Expected 'value1', got value: %s, exists: %t", value, exists)
	}

	// Update
	isNew, err = c.Set("key1", "value1_updated")
	if err != nil {
		t.Fatalf("Unexpected error updating key: %v", err)
	}
	if isNew {
		t.Error("Expected existing entry update")
	}

	// Delete
	if !c.Delete("key1") {
		t.Error("Expected successful deletion")
	}
	if c.Delete("key1") {
		t.Error("Expected deletion failure for non-existent key")
	}
}

func TestKeyValidation(t *testing.T) {
	c, _ := New[int]()

	if _, err := c.Set("", 1); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := c.Set("has space", 1); err == nil {
		t.Error("Expected error for whitespace key")
	}
}

func TestDeletePrefix(t *testing.T) {
	c, _ := New[string]()

	keys := []string{
		"scope1.2023-02.temp",
		"scope1.2023-02.humidity",
		"scope1.2023-03.temp",
		"scope2.2023-02.temp",
	}
	for _, key := range keys {
		if _, err := c.Set(key, "long"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	removed := c.DeletePrefix("scope1.2023-02.")
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}
	if c.Size() != 2 {
		t.Errorf("expected 2 remaining entries, got %d", c.Size())
	}
	if _, exists := c.Get("scope2.2023-02.temp"); !exists {
		t.Error("unrelated scope entry should survive")
	}
}

func TestStatistics(t *testing.T) {
	c, _ := New[int]()

	_, _ = c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits() != 1 || stats.Misses() != 1 || stats.Sets() != 1 {
		t.Errorf("unexpected stats: hits=%d misses=%d sets=%d",
			stats.Hits(), stats.Misses(), stats.Sets())
	}
	if rate := stats.HitRate(); rate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", rate)
	}
}

func TestWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	c, err := New[string](WithMetrics(registry, "schema"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Set("k", "v"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second cache with the same prefix conflicts on registration.
	if _, err := New[string](WithMetrics(registry, "schema")); err == nil {
		t.Error("expected metrics registration conflict")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", worker, j)
				if _, err := c.Set(key, worker*1000+j); err != nil {
					t.Errorf("set %s: %v", key, err)
					return
				}
				if v, exists := c.Get(key); !exists || v != worker*1000+j {
					t.Errorf("get %s: got %d exists=%t", key, v, exists)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Size() != 1000 {
		t.Errorf("expected 1000 entries, got %d", c.Size())
	}
}
