package schema

import "testing"

func TestLoadCatalog(t *testing.T) {
	reg, err := LoadCatalog("../../configs/components.yaml")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	transform, ok := reg.Layout(100)
	if !ok {
		t.Fatalf("missing component 100")
	}
	if transform.Name != "transform" || len(transform.Fields) != 5 {
		t.Fatalf("transform layout: %+v", transform)
	}
	if transform.Fields[4].Type.Kind != KindRef {
		t.Fatalf("attached_to should be a ref, got %s", transform.Fields[4].Type.Kind)
	}

	inv, ok := reg.Layout(102)
	if !ok {
		t.Fatalf("missing component 102")
	}
	if inv.Offset != 1 {
		t.Fatalf("inventory offset: got %d want 1", inv.Offset)
	}
	items := inv.Fields[0].Type
	if items.Kind != KindList || items.Elem == nil || items.Elem.Kind != KindStruct {
		t.Fatalf("items type: %+v", items)
	}

	// Slots are assigned in file order, contiguously per component.
	if got := reg.SlotOf(100, 0); got != 0 {
		t.Fatalf("SlotOf(100,0)=%d want 0", got)
	}
	if got := reg.SlotOf(101, 2); got != 7 {
		t.Fatalf("SlotOf(101,2)=%d want 7", got)
	}
	ft, ok := reg.FieldTypeOfSlot(reg.SlotOf(101, 2))
	if !ok || ft.Kind != KindRef {
		t.Fatalf("slot for last_attacker should map back to a ref field")
	}

	if _, ok := reg.Command(101, 1); !ok {
		t.Fatalf("missing command apply_damage")
	}
	def, ok := reg.Command(100, 1)
	if !ok || def.Name != "teleport" || def.Args.Kind != KindStruct {
		t.Fatalf("teleport command: %+v", def)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	l := &Layout{ID: 5, Name: "a", Fields: []Field{{Name: "x", Type: FieldType{Kind: KindInt}}}}
	if err := reg.Register(l); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(&Layout{ID: 5, Name: "b"}); err == nil {
		t.Fatalf("expected duplicate component id rejected")
	}
	cmd := &CommandDef{ComponentID: 5, Index: 1, Name: "go", Args: FieldType{Kind: KindStruct, Fields: []FieldType{{Kind: KindRef}}}}
	if err := reg.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := reg.RegisterCommand(cmd); err == nil {
		t.Fatalf("expected duplicate command rejected")
	}
}
