package cache

// Tiered checks memory first, then disk, promoting disk hits into memory.
// Writes go to both tiers.
type Tiered struct {
	mem  *Memory
	disk *Disk
}

// NewTiered combines a memory and a disk cache. disk may be nil.
func NewTiered(mem *Memory, disk *Disk) *Tiered {
	return &Tiered{mem: mem, disk: disk}
}

// Lookup returns the value and the tier that served it.
func (t *Tiered) Lookup(key string) ([]byte, Level, bool) {
	if v, ok := t.mem.Get(key); ok {
		return v, LevelMemory, true
	}
	if t.disk == nil {
		return nil, 0, false
	}
	v, ok := t.disk.Get(key)
	if !ok {
		return nil, 0, false
	}
	_ = t.mem.Put(key, v)
	return v, LevelDisk, true
}

// Get implements Cache.
func (t *Tiered) Get(key string) ([]byte, bool) {
	v, _, ok := t.Lookup(key)
	return v, ok
}

// Put implements Cache. An item too large for memory is still written to
// disk.
func (t *Tiered) Put(key string, value []byte) error {
	memErr := t.mem.Put(key, value)
	if t.disk == nil {
		return memErr
	}
	return t.disk.Put(key, value)
}

// Delete implements Cache.
func (t *Tiered) Delete(key string) error {
	_ = t.mem.Delete(key)
	if t.disk != nil {
		return t.disk.Delete(key)
	}
	return nil
}

// Clear implements Cache.
func (t *Tiered) Clear() error {
	_ = t.mem.Clear()
	if t.disk != nil {
		return t.disk.Clear()
	}
	return nil
}

// Stats implements Cache, summing both tiers.
func (t *Tiered) Stats() Stats {
	s := t.mem.Stats()
	if t.disk != nil {
		d := t.disk.Stats()
		s.Capacity += d.Capacity
		s.Size += d.Size
		s.Items += d.Items
		s.Hits += d.Hits
		s.Evictions += d.Evictions
		// a memory miss that hit disk is not a miss overall
		s.Misses = d.Misses
	}
	return s
}

// Close releases the disk tier.
func (t *Tiered) Close() error {
	if t.disk != nil {
		return t.disk.Close()
	}
	return nil
}
