package bridge

import (
	"sort"

	"simbridge.dev/internal/schema"
)

type refKind uint8

const (
	refSingle refKind = iota + 1
	refComposite
	refArray
)

// ObjectRefs is one buffered, partially-unresolved property value. It is a
// recursive tagged variant: a single reference, a struct captured as raw bits
// plus the set of refs inside it, or an array owning nested entries per
// element index.
type ObjectRefs struct {
	kind refKind

	// unresolved holds every ref this entry (including nested entries) is
	// still waiting on. The entry exists iff this set is non-empty.
	unresolved map[schema.Ref]struct{}

	slot        int // property slot in the owning object's flat layout
	parentIndex int // element position in the parent array, -1 at top level

	// single
	ref schema.Ref

	// composite/array: captured raw bit range and the type to re-decode with
	fieldType *schema.FieldType
	buf       []byte
	bitLen    int64

	// array
	children map[int]*ObjectRefs
}

// RefsMap holds the buffered entries of one (channel, object) pair, keyed by
// property slot at the top level and by element index inside arrays.
type RefsMap map[int]*ObjectRefs

// unresolvedRef reports whether ref names an object that does not exist
// locally yet.
func (b *Bridge) unresolvedRef(ref schema.Ref) bool {
	if ref.IsNull() {
		return false
	}
	_, ok := b.objects.ByRef(ref)
	return !ok
}

// buildObjectRefs inspects a decoded value and returns the buffered-entry
// tree for its unresolved parts, or nil when everything is resolvable. src is
// the buffer v was decoded from; composite and array entries capture their
// exact bit spans out of it.
func (b *Bridge) buildObjectRefs(v schema.Value, ft *schema.FieldType, src []byte, slot, parentIndex int) *ObjectRefs {
	switch v.Kind {
	case schema.KindRef:
		if !b.unresolvedRef(v.Ref) {
			return nil
		}
		return &ObjectRefs{
			kind:        refSingle,
			unresolved:  map[schema.Ref]struct{}{v.Ref: {}},
			slot:        slot,
			parentIndex: parentIndex,
			ref:         v.Ref,
			fieldType:   ft,
		}
	case schema.KindStruct:
		set := map[schema.Ref]struct{}{}
		schema.WalkRefs(v, func(r schema.Ref) {
			if b.unresolvedRef(r) {
				set[r] = struct{}{}
			}
		})
		if len(set) == 0 {
			return nil
		}
		return &ObjectRefs{
			kind:        refComposite,
			unresolved:  set,
			slot:        slot,
			parentIndex: parentIndex,
			fieldType:   ft,
			buf:         schema.ExtractBits(src, v.BitOff, v.BitLen),
			bitLen:      v.BitLen,
		}
	case schema.KindList:
		var children map[int]*ObjectRefs
		union := map[schema.Ref]struct{}{}
		for i, e := range v.Elems {
			child := b.buildObjectRefs(e, ft.Elem, src, slot, i)
			if child == nil {
				continue
			}
			if children == nil {
				children = map[int]*ObjectRefs{}
			}
			children[i] = child
			for r := range child.unresolved {
				union[r] = struct{}{}
			}
		}
		if len(children) == 0 {
			return nil
		}
		return &ObjectRefs{
			kind:        refArray,
			unresolved:  union,
			slot:        slot,
			parentIndex: parentIndex,
			fieldType:   ft,
			buf:         schema.ExtractBits(src, v.BitOff, v.BitLen),
			bitLen:      v.BitLen,
			children:    children,
		}
	}
	return nil
}

// contains reports whether the entry tree still waits on ref.
func (e *ObjectRefs) contains(ref schema.Ref) bool {
	_, ok := e.unresolved[ref]
	return ok
}

// drop removes ref from the entry tree's unresolved sets. Returns true when
// the entry is now fully resolved.
func (e *ObjectRefs) drop(ref schema.Ref) bool {
	delete(e.unresolved, ref)
	for i, child := range e.children {
		if child.drop(ref) {
			delete(e.children, i)
		}
	}
	return len(e.unresolved) == 0
}

// refs returns the unresolved set as a slice (index bookkeeping).
func (e *ObjectRefs) refs() []schema.Ref {
	out := make([]schema.Ref, 0, len(e.unresolved))
	for r := range e.unresolved {
		out = append(out, r)
	}
	return out
}

// queueUnresolved stores entry for (co, slot) and registers every ref it
// waits on in the resolution index. A previous entry for the same slot is
// superseded: its index registrations are dropped first.
func (b *Bridge) queueUnresolved(co ChannelObject, slot int, entry *ObjectRefs) {
	refsMap := b.refStore[co]
	if refsMap == nil {
		refsMap = RefsMap{}
		b.refStore[co] = refsMap
	}
	if old := refsMap[slot]; old != nil {
		delete(refsMap, slot)
		b.unindexEntry(co, old)
	}
	refsMap[slot] = entry
	for r := range entry.unresolved {
		set := b.incomingRefs[r]
		if set == nil {
			set = map[ChannelObject]struct{}{}
			b.incomingRefs[r] = set
		}
		set[co] = struct{}{}
	}
	b.stats.PropsBuffered++
}

// unindexEntry removes co from the index for every ref of entry that no
// remaining entry of co still waits on.
func (b *Bridge) unindexEntry(co ChannelObject, entry *ObjectRefs) {
	for _, r := range entry.refs() {
		if b.coStillWaitsOn(co, r) {
			continue
		}
		if set := b.incomingRefs[r]; set != nil {
			delete(set, co)
			if len(set) == 0 {
				delete(b.incomingRefs, r)
			}
		}
	}
}

func (b *Bridge) coStillWaitsOn(co ChannelObject, ref schema.Ref) bool {
	for _, e := range b.refStore[co] {
		if e.contains(ref) {
			return true
		}
	}
	return false
}

// decodeEntry re-decodes a fully resolved entry into its final value.
func (b *Bridge) decodeEntry(entry *ObjectRefs) (schema.Value, error) {
	if entry.kind == refSingle {
		return schema.RefValue(entry.ref), nil
	}
	r := schema.NewBitReader(entry.buf)
	v, err := schema.DecodeValue(r, entry.fieldType)
	if err != nil {
		return schema.Value{}, err
	}
	return v, nil
}

// sortedSlots gives deterministic iteration over a RefsMap.
func sortedSlots(m RefsMap) []int {
	out := make([]int, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}
