// Package promptcache memoizes conditioned prompt waveforms so repeated
// requests against the same clip skip the decode and trim work.
package promptcache

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voxlabs/voxgate/internal/audio"
)

type entry struct {
	modTime time.Time
	size    int64
	wave    audio.Waveform
}

// Cache is an LRU keyed by source path. Entries are dropped when the file
// on disk no longer matches the recorded size and mtime. A nil *Cache is
// valid and caches nothing.
type Cache struct {
	lru *lru.Cache[string, entry]
}

func New(size int) (*Cache, error) {
	inner, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner}, nil
}

// Get returns a copy of the cached waveform for path, if the file is
// unchanged since Put.
func (c *Cache) Get(path string) (audio.Waveform, bool) {
	if c == nil {
		return audio.Waveform{}, false
	}
	ent, ok := c.lru.Get(path)
	if !ok {
		return audio.Waveform{}, false
	}
	st, err := os.Stat(path)
	if err != nil || st.Size() != ent.size || !st.ModTime().Equal(ent.modTime) {
		c.lru.Remove(path)
		return audio.Waveform{}, false
	}
	return ent.wave.Clone(), true
}

// Put records the waveform for path against the file's current size and
// mtime. Unreadable paths are not cached.
func (c *Cache) Put(path string, w audio.Waveform) {
	if c == nil {
		return
	}
	st, err := os.Stat(path)
	if err != nil {
		return
	}
	c.lru.Add(path, entry{modTime: st.ModTime(), size: st.Size(), wave: w.Clone()})
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
