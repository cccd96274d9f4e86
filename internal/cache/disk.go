package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const diskExt = ".zst"

// Disk stores zstd-compressed values as one file per key. The index is
// rebuilt from the directory on open, so entries survive restarts.
type Disk struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	stats    Stats
}

type diskEntry struct {
	size    int64
	modTime time.Time
}

// NewDisk opens (creating if needed) a disk cache in dir bounded by
// capacity compressed bytes. level is a zstd level from 1 to 22.
func NewDisk(dir string, capacity int64, level int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		enc:      enc,
		dec:      dec,
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// Get reads and decompresses key. Unreadable entries are dropped.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}
	raw, err := os.ReadFile(d.path(key))
	if err == nil {
		var out []byte
		out, err = d.dec.DecodeAll(raw, nil)
		if err == nil {
			now := time.Now()
			e.modTime = now
			_ = os.Chtimes(d.path(key), now, now)
			d.stats.Hits++
			return out, true
		}
	}
	d.dropLocked(key)
	d.stats.Misses++
	return nil, false
}

// Put compresses and writes value, evicting the oldest entries to fit.
func (d *Disk) Put(key string, value []byte) error {
	data := d.enc.EncodeAll(value, nil)
	n := int64(len(data))

	d.mu.Lock()
	defer d.mu.Unlock()

	if n > d.capacity {
		return ErrItemTooLarge
	}
	if _, ok := d.index[key]; ok {
		d.dropLocked(key)
	}
	for d.size+n > d.capacity && len(d.index) > 0 {
		d.dropLocked(d.oldestLocked())
		d.stats.Evictions++
	}

	tmp := d.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, d.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	d.index[key] = &diskEntry{size: n, modTime: time.Now()}
	d.size += n
	return nil
}

// Delete removes key if present.
func (d *Disk) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked(key)
	return nil
}

// Clear removes every entry.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.index {
		d.dropLocked(key)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity = d.capacity
	s.Size = d.size
	s.Items = len(d.index)
	return s
}

// Close releases the zstd coders.
func (d *Disk) Close() error {
	d.dec.Close()
	return d.enc.Close()
}

func (d *Disk) path(key string) string {
	return filepath.Join(d.dir, key+diskExt)
}

func (d *Disk) dropLocked(key string) {
	e, ok := d.index[key]
	if !ok {
		return
	}
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}
	delete(d.index, key)
	d.size -= e.size
}

func (d *Disk) oldestLocked() string {
	keys := make([]string, 0, len(d.index))
	for k := range d.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return d.index[keys[i]].modTime.Before(d.index[keys[j]].modTime)
	})
	return keys[0]
}

func (d *Disk) scan() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("read cache directory: %w", err)
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, diskExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, diskExt)
		d.index[key] = &diskEntry{size: info.Size(), modTime: info.ModTime()}
		d.size += info.Size()
	}
	return nil
}
