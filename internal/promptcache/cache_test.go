package promptcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxlabs/voxgate/internal/audio"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCacheHitAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.wav")
	writeFile(t, path, "payload")

	cache, err := New(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	wave := audio.Waveform{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 16000}
	cache.Put(path, wave)

	got, ok := cache.Get(path)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Samples) != 3 || got.SampleRate != 16000 {
		t.Fatalf("unexpected cached waveform: %+v", got)
	}

	// Mutating the returned copy must not poison the cache.
	got.Samples[0] = 9
	again, ok := cache.Get(path)
	if !ok {
		t.Fatal("expected second hit")
	}
	if again.Samples[0] != 0.1 {
		t.Fatalf("cache entry mutated: %v", again.Samples[0])
	}
}

func TestCacheInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.wav")
	writeFile(t, path, "payload")

	cache, err := New(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	cache.Put(path, audio.Waveform{Samples: []float32{1}, SampleRate: 16000})

	// Change size and push mtime forward so both checks can fire.
	writeFile(t, path, "different payload")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, ok := cache.Get(path); ok {
		t.Fatal("expected invalidation after file change")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected entry removed, len=%d", cache.Len())
	}
}

func TestCacheMissingFile(t *testing.T) {
	cache, err := New(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	cache.Put("/does/not/exist.wav", audio.Waveform{Samples: []float32{1}, SampleRate: 16000})
	if cache.Len() != 0 {
		t.Fatal("unreadable path must not be cached")
	}
	if _, ok := cache.Get("/does/not/exist.wav"); ok {
		t.Fatal("expected miss for unreadable path")
	}
}

func TestNilCache(t *testing.T) {
	var cache *Cache
	cache.Put("x", audio.Waveform{})
	if _, ok := cache.Get("x"); ok {
		t.Fatal("nil cache must miss")
	}
	if cache.Len() != 0 {
		t.Fatal("nil cache has no entries")
	}
}
