package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCorrupted is returned when a stored entry cannot be decoded.
	ErrCorrupted = errors.New("cache data corrupted")
)

// Level identifies the tier an entry was served from.
type Level int

const (
	// LevelMemory is the in-process LRU.
	LevelMemory Level = iota
	// LevelDisk is the compressed on-disk store.
	LevelDisk
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one cache.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Cache is a byte-value store keyed by string.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Stats() Stats
}

// Key derives the cache key for a chunk of text spoken by voice.
func Key(voice, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s", voice, text)))
	return hex.EncodeToString(sum[:])
}
