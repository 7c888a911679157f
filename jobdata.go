package quartz

import (
	"maps"
	"slices"
	"strconv"
)

// JobDataMap is the key/value bag carried by jobs and triggers. Values are
// copied shallowly by Clone, so callers should store immutable values.
type JobDataMap struct {
	m     map[string]any
	dirty bool
}

// NewJobDataMap returns a map seeded with the given entries.
func NewJobDataMap(entries map[string]any) JobDataMap {
	m := make(map[string]any, len(entries))
	maps.Copy(m, entries)
	return JobDataMap{m: m}
}

// Put stores a value and marks the map dirty.
func (d *JobDataMap) Put(key string, value any) {
	if d.m == nil {
		d.m = make(map[string]any)
	}
	d.m[key] = value
	d.dirty = true
}

// Remove deletes a key and marks the map dirty if it was present.
func (d *JobDataMap) Remove(key string) {
	if _, ok := d.m[key]; ok {
		delete(d.m, key)
		d.dirty = true
	}
}

// Get returns the raw value for key.
func (d JobDataMap) Get(key string) (any, bool) {
	v, ok := d.m[key]
	return v, ok
}

// GetString returns the value for key rendered as a string.
func (d JobDataMap) GetString(key string) string {
	switch v := d.m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return ""
	}
}

// GetInt returns the value for key as an int; strings are parsed.
func (d JobDataMap) GetInt(key string) (int, bool) {
	switch v := d.m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// GetBool returns the value for key as a bool; strings are parsed.
func (d JobDataMap) GetBool(key string) bool {
	switch v := d.m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Len returns the number of entries.
func (d JobDataMap) Len() int { return len(d.m) }

// Keys returns the sorted keys.
func (d JobDataMap) Keys() []string {
	return slices.Sorted(maps.Keys(d.m))
}

// Dirty reports whether the map was modified since it was created or cleared.
func (d JobDataMap) Dirty() bool { return d.dirty }

// ClearDirtyFlag resets the modification marker.
func (d *JobDataMap) ClearDirtyFlag() { d.dirty = false }

// Clone returns an independent copy of the map.
func (d JobDataMap) Clone() JobDataMap {
	if d.m == nil {
		return JobDataMap{dirty: d.dirty}
	}
	return JobDataMap{m: maps.Clone(d.m), dirty: d.dirty}
}

// Merge returns a copy of d overlaid with the entries of other.
func (d JobDataMap) Merge(other JobDataMap) JobDataMap {
	out := d.Clone()
	for k, v := range other.m {
		if out.m == nil {
			out.m = make(map[string]any)
		}
		out.m[k] = v
	}
	return out
}

// ToMap returns a copy of the entries as a plain map.
func (d JobDataMap) ToMap() map[string]any {
	return maps.Clone(d.m)
}
