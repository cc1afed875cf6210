package devices

import "sort"

// Index maps fully-qualified datapoint ids to the device objects watching
// them. One id may map to more than one object; the common case is one.
type Index struct {
	entries map[string][]Device
}

func newIndex() *Index {
	return &Index{entries: make(map[string][]Device)}
}

// register adds d under id unless it is already registered there
func (ix *Index) register(id string, d Device) {
	for _, existing := range ix.entries[id] {
		if existing == d {
			return
		}
	}
	ix.entries[id] = append(ix.entries[id], d)
}

// Lookup returns the objects watching a datapoint id
func (ix *Index) Lookup(id string) []Device {
	if ix == nil {
		return nil
	}
	return ix.entries[id]
}

// Len returns the number of indexed datapoint ids
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// IDs returns every indexed datapoint id, sorted
func (ix *Index) IDs() []string {
	if ix == nil {
		return nil
	}
	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set is one immutable snapshot of device objects built from a single
// configuration load.
type Set struct {
	devices []Device
	byKey   map[string]Device
	index   *Index
}

// NewSet returns an empty set
func NewSet() *Set {
	return &Set{byKey: make(map[string]Device), index: newIndex()}
}

// add registers d and its datapoints. It reports false when the lookup key
// is already taken.
func (s *Set) add(d Device) bool {
	if _, exists := s.byKey[d.LookupKey()]; exists {
		return false
	}
	s.devices = append(s.devices, d)
	s.byKey[d.LookupKey()] = d
	for _, id := range d.Datapoints() {
		s.index.register(id, d)
	}
	return true
}

// All returns every device object in document order
func (s *Set) All() []Device {
	if s == nil {
		return nil
	}
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Len returns the number of device objects
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.devices)
}

// Get returns the device object with the given lookup key
func (s *Set) Get(lookupKey string) (Device, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.byKey[lookupKey]
	return d, ok
}

// ByCategory returns the device objects of one category in document order.
// An empty category returns all objects.
func (s *Set) ByCategory(category Category) []Device {
	if s == nil {
		return nil
	}
	if category == "" {
		return s.All()
	}
	var out []Device
	for _, d := range s.devices {
		if d.Category() == category {
			out = append(out, d)
		}
	}
	return out
}

// Index returns the datapoint index of the set
func (s *Set) Index() *Index {
	if s == nil {
		return nil
	}
	return s.index
}
