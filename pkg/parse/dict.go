// Package parse turns the textual fact files into integer-encoded triples:
// a dictionary interning term strings into the shared id namespace, a reader
// for the base dataset, and a reader for the +/- update file.
package parse

// Dict interns term strings into the single uint32 namespace shared by
// nodes, predicates and supernodes. Id 0 is never handed out; fresh ids grow
// upward from 1, so the high end of the space stays free for supernode ids
// minted by the bootstrap.
type Dict struct {
	byName map[string]uint32
	names  []string
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{byName: make(map[string]uint32)}
}

// Encode returns the id for name, assigning the next free one on first use.
func (d *Dict) Encode(name string) uint32 {
	if id, ok := d.byName[name]; ok {
		return id
	}
	d.names = append(d.names, name)
	id := uint32(len(d.names))
	d.byName[name] = id
	return id
}

// Lookup returns the id for name without inserting.
func (d *Dict) Lookup(name string) (uint32, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// NameOf returns the term string for a dictionary id.
func (d *Dict) NameOf(id uint32) (string, bool) {
	if id == 0 || int(id) > len(d.names) {
		return "", false
	}
	return d.names[id-1], true
}

// Len returns the number of interned terms.
func (d *Dict) Len() int {
	return len(d.names)
}
