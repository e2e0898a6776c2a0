package schema

import "fmt"

// Field is a named component field.
type Field struct {
	Name string
	Type FieldType
}

// Layout describes one replicated component: its id, which sub-object of the
// entity it applies to (offset 0 = root), and its fields in wire order.
type Layout struct {
	ID     uint32
	Name   string
	Offset uint32
	Fields []Field

	// firstSlot is the component's base index in the owning object's flat
	// property layout, assigned at registration.
	firstSlot int
}

// CommandDef describes one command (RPC) hosted by a component.
type CommandDef struct {
	ComponentID uint32
	Index       uint32
	Name        string
	Args        FieldType // must be a struct type
}

// Registry holds all known component layouts and command definitions.
type Registry struct {
	byID     map[uint32]*Layout
	commands map[uint64]*CommandDef
	slots    []slotRef // index = flat property slot
	nextSlot int
}

type slotRef struct {
	layout *Layout
	field  int
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     map[uint32]*Layout{},
		commands: map[uint64]*CommandDef{},
	}
}

func (r *Registry) Register(l *Layout) error {
	if l.ID == 0 {
		return fmt.Errorf("component %s: id 0 is reserved", l.Name)
	}
	if _, ok := r.byID[l.ID]; ok {
		return fmt.Errorf("component id %d registered twice", l.ID)
	}
	l.firstSlot = r.nextSlot
	r.nextSlot += len(l.Fields)
	for i := range l.Fields {
		r.slots = append(r.slots, slotRef{layout: l, field: i})
	}
	r.byID[l.ID] = l
	return nil
}

func (r *Registry) RegisterCommand(def *CommandDef) error {
	if def.Args.Kind != KindStruct {
		return fmt.Errorf("command %s: args must be a struct", def.Name)
	}
	k := commandKey(def.ComponentID, def.Index)
	if _, ok := r.commands[k]; ok {
		return fmt.Errorf("command %d/%d registered twice", def.ComponentID, def.Index)
	}
	r.commands[k] = def
	return nil
}

func (r *Registry) Layout(id uint32) (*Layout, bool) {
	l, ok := r.byID[id]
	return l, ok
}

func (r *Registry) Command(componentID, index uint32) (*CommandDef, bool) {
	c, ok := r.commands[commandKey(componentID, index)]
	return c, ok
}

// SlotOf maps (component, field index) to the flat property slot used by the
// object graph and the reference store.
func (r *Registry) SlotOf(componentID uint32, field int) int {
	l, ok := r.byID[componentID]
	if !ok || field < 0 || field >= len(l.Fields) {
		return -1
	}
	return l.firstSlot + field
}

// FieldTypeOfSlot is the reverse of SlotOf: the field type a flat property
// slot decodes with.
func (r *Registry) FieldTypeOfSlot(slot int) (*FieldType, bool) {
	if slot < 0 || slot >= len(r.slots) {
		return nil, false
	}
	s := r.slots[slot]
	return &s.layout.Fields[s.field].Type, true
}

func commandKey(componentID, index uint32) uint64 {
	return uint64(componentID)<<32 | uint64(index)
}
