package bridge

import (
	"fmt"

	"simbridge.dev/internal/schema"
)

// Handle is a weak, generation-checked reference to a local object. A stale
// handle (object destroyed, slot reused) simply fails to resolve; nothing
// holds objects alive through a Handle.
type Handle struct {
	idx uint32
	gen uint32
}

var NilHandle Handle

func (h Handle) IsNil() bool { return h.idx == 0 }

// Object is one node of the local object graph: an actor, one of its
// sub-objects, or a level-placed template instance.
type Object struct {
	Class      string
	Name       string
	Level      string
	StablePath string
	Position   [3]float64
	Template   bool

	// NetRef is the runtime-assigned reference, null until registered.
	NetRef schema.Ref

	handle    Handle
	props     map[int]schema.Value
	repNotify func(slot int, v schema.Value)
}

func (o *Object) Handle() Handle { return o.handle }

func (o *Object) Prop(slot int) (schema.Value, bool) {
	v, ok := o.props[slot]
	return v, ok
}

func (o *Object) Slots() []int {
	out := make([]int, 0, len(o.props))
	for s := range o.props {
		out = append(out, s)
	}
	return out
}

// SetRepNotify installs a callback fired every time a property is applied.
func (o *Object) SetRepNotify(fn func(slot int, v schema.Value)) { o.repNotify = fn }

func (o *Object) setProp(slot int, v schema.Value) {
	o.props[slot] = v
	if o.repNotify != nil {
		o.repNotify(slot, v)
	}
}

type objectSlot struct {
	gen uint32
	obj *Object
}

// ObjectMap owns every local object and the ref<->object mapping. Handles
// index into a slot array; destroying an object bumps the slot generation so
// outstanding handles go stale instead of dangling.
type ObjectMap struct {
	slots []objectSlot
	free  []uint32

	byRef     map[schema.Ref]Handle
	templates map[string]Handle

	// pathEntities maps a stable level path to the entity id the runtime
	// assigned its network counterpart, learned from ENTITY_ADDED metadata.
	pathEntities map[string]int64

	// Template placeholders live in a reserved negative entity range so they
	// can never collide with runtime-assigned ids.
	nextTemplateID int64

	nextName uint64
}

func NewObjectMap() *ObjectMap {
	return &ObjectMap{
		slots:          make([]objectSlot, 1), // slot 0 reserved: nil handle
		byRef:          map[schema.Ref]Handle{},
		templates:      map[string]Handle{},
		pathEntities:   map[string]int64{},
		nextTemplateID: -1,
	}
}

func (m *ObjectMap) New(class, name string) *Object {
	if name == "" {
		m.nextName++
		name = fmt.Sprintf("%s_%d", class, m.nextName)
	}
	o := &Object{Class: class, Name: name, props: map[int]schema.Value{}}
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, objectSlot{})
		idx = uint32(len(m.slots) - 1)
	}
	m.slots[idx].obj = o
	o.handle = Handle{idx: idx, gen: m.slots[idx].gen}
	return o
}

func (m *ObjectMap) Get(h Handle) *Object {
	if h.IsNil() || int(h.idx) >= len(m.slots) {
		return nil
	}
	s := m.slots[h.idx]
	if s.gen != h.gen {
		return nil
	}
	return s.obj
}

func (m *ObjectMap) Alive(h Handle) bool { return m.Get(h) != nil }

// Destroy invalidates every outstanding handle to the object and drops its
// ref mapping.
func (m *ObjectMap) Destroy(h Handle) {
	o := m.Get(h)
	if o == nil {
		return
	}
	if !o.NetRef.IsNull() {
		delete(m.byRef, o.NetRef)
	}
	if o.Template && o.StablePath != "" {
		delete(m.templates, o.StablePath)
	}
	m.slots[h.idx].obj = nil
	m.slots[h.idx].gen++
	m.free = append(m.free, h.idx)
}

// RegisterNetRef binds an object to its runtime reference. A rebind replaces
// the old mapping.
func (m *ObjectMap) RegisterNetRef(h Handle, ref schema.Ref) {
	o := m.Get(h)
	if o == nil || ref.IsNull() {
		return
	}
	if !o.NetRef.IsNull() {
		delete(m.byRef, o.NetRef)
	}
	o.NetRef = ref
	m.byRef[ref] = h
}

func (m *ObjectMap) ByRef(ref schema.Ref) (Handle, bool) {
	h, ok := m.byRef[ref]
	if !ok {
		return NilHandle, false
	}
	if !m.Alive(h) {
		return NilHandle, false
	}
	return h, true
}

func (m *ObjectMap) Resolve(ref schema.Ref) *Object {
	h, ok := m.ByRef(ref)
	if !ok {
		return nil
	}
	return m.Get(h)
}

// RegisterTemplate creates a level-placed template object. Templates get a
// placeholder ref in the reserved negative range so template properties can
// reference each other with ordinary refs.
func (m *ObjectMap) RegisterTemplate(path, class, level string, props map[int]schema.Value) Handle {
	o := m.New(class, "")
	o.Template = true
	o.StablePath = path
	o.Level = level
	for slot, v := range props {
		o.props[slot] = v
	}
	ref := schema.Ref{Entity: m.nextTemplateID}
	m.nextTemplateID--
	m.RegisterNetRef(o.handle, ref)
	m.templates[path] = o.handle
	return o.handle
}

func (m *ObjectMap) TemplateByPath(path string) (Handle, bool) {
	h, ok := m.templates[path]
	if !ok || !m.Alive(h) {
		return NilHandle, false
	}
	return h, true
}

func (m *ObjectMap) SetPathEntity(path string, entityID int64) {
	m.pathEntities[path] = entityID
}

func (m *ObjectMap) PathEntity(path string) (int64, bool) {
	id, ok := m.pathEntities[path]
	return id, ok
}
