package bridge

import (
	"testing"

	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

func TestTemplateDuplicationRemapsTemplateRefs(t *testing.T) {
	b, _ := newTestBridge(t)
	b.OnLevelLoaded("Factory")

	// A door template whose target property points at a switch template.
	swHandle := b.Objects().RegisterTemplate("/Game/Factory.Switch_1", "switch", "Factory", nil)
	swPlaceholder := b.Objects().Get(swHandle).NetRef
	if swPlaceholder.Entity >= 0 {
		t.Fatalf("template placeholder should live in the reserved negative range: %s", swPlaceholder)
	}
	b.Objects().RegisterTemplate("/Game/Factory.Door_1", "door", "Factory", map[int]schema.Value{
		0: schema.RefValue(swPlaceholder),
		1: schema.IntValue(5),
	})

	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 100, Class: "switch", StablePath: "/Game/Factory.Switch_1", Level: "Factory",
	})
	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 101, Class: "door", StablePath: "/Game/Factory.Door_1", Level: "Factory",
	})

	door := b.Objects().Resolve(schema.Ref{Entity: 101})
	if door == nil || door.StablePath != "/Game/Factory.Door_1" {
		t.Fatalf("door not created from template: %+v", door)
	}
	v, ok := door.Prop(0)
	if !ok || v.Ref != (schema.Ref{Entity: 100}) {
		t.Fatalf("template ref not remapped to network counterpart: %+v", v)
	}
	if v, _ := door.Prop(1); v.Int != 5 {
		t.Fatalf("plain template property lost: %+v", v)
	}
}

func TestTemplateRefToUnseenEntityStaysBuffered(t *testing.T) {
	b, _ := newTestBridge(t)
	b.OnLevelLoaded("Factory")

	swHandle := b.Objects().RegisterTemplate("/Game/Factory.Switch_2", "switch", "Factory", nil)
	swPlaceholder := b.Objects().Get(swHandle).NetRef
	b.Objects().RegisterTemplate("/Game/Factory.Door_2", "door", "Factory", map[int]schema.Value{
		0: schema.RefValue(swPlaceholder),
	})

	// The switch's ENTITY_ADDED names the path before the door's own add, so
	// the counterpart id is known, but the switch entity itself arrives last.
	b.Objects().SetPathEntity("/Game/Factory.Switch_2", 200)
	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 201, Class: "door", StablePath: "/Game/Factory.Door_2", Level: "Factory",
	})

	door := b.Objects().Resolve(schema.Ref{Entity: 201})
	if v, _ := door.Prop(0); !v.Ref.IsNull() {
		t.Fatalf("seed ref to unseen entity should be nulled until it resolves: %+v", v)
	}
	if got := b.PendingRefs(); got != 1 {
		t.Fatalf("PendingRefs=%d want 1", got)
	}

	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 200, Class: "switch", StablePath: "/Game/Factory.Switch_2", Level: "Factory",
	})
	if v, _ := door.Prop(0); v.Ref != (schema.Ref{Entity: 200}) {
		t.Fatalf("seed ref did not resolve: %+v", v)
	}
}

func TestDeferredLevelReplaysCreations(t *testing.T) {
	b, _ := newTestBridge(t)
	b.Objects().RegisterTemplate("/Game/Dungeon.Chest_1", "chest", "Dungeon", map[int]schema.Value{
		1: schema.IntValue(9),
	})

	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 300, Class: "chest", StablePath: "/Game/Dungeon.Chest_1", Level: "Dungeon",
	})
	if b.Channel(300) != nil {
		t.Fatalf("creation should be deferred until the level loads")
	}

	b.OnLevelLoaded("Dungeon")
	if b.Channel(300) == nil {
		t.Fatalf("deferred creation not replayed")
	}
	chest := b.Objects().Resolve(schema.Ref{Entity: 300})
	if chest.Class != "chest" {
		t.Fatalf("not built from template: %+v", chest)
	}
	if v, _ := chest.Prop(1); v.Int != 9 {
		t.Fatalf("template property lost: %+v", v)
	}
}

func TestComponentsArrivingWhileDeferredTravelWithEntity(t *testing.T) {
	b, _ := newTestBridge(t)
	b.Objects().RegisterTemplate("/Game/Dungeon.Chest_2", "chest", "Dungeon", nil)

	b.OnAddEntity(&protocol.EntityAddedMsg{
		EntityID: 301, Class: "chest", StablePath: "/Game/Dungeon.Chest_2", Level: "Dungeon",
	})
	if b.Channel(301) != nil {
		t.Fatalf("creation should be deferred until the level loads")
	}

	// Component data lands after the deferral, outside any burst. It must be
	// parked with the deferred creation, not dropped.
	data := encodeComponent(t, b, compTracker, schema.RefValue(schema.NullRef), schema.IntValue(13))
	b.OnAddComponent(&protocol.ComponentAddedMsg{EntityID: 301, ComponentID: compTracker, Data: data})
	if b.Stats().Dropped != 0 {
		t.Fatalf("deferred entity's component dropped")
	}

	b.OnLevelLoaded("Dungeon")
	if b.Channel(301) == nil {
		t.Fatalf("deferred creation not replayed")
	}
	v, ok := prop(t, b, 301, 1)
	if !ok || v.Int != 13 {
		t.Fatalf("component data lost across deferral: %+v ok=%v", v, ok)
	}
}

func TestCreateActorCorrelatesResponse(t *testing.T) {
	b, s := newTestBridge(t)

	h := b.CreateActor("pawn", nil)
	if len(s.createRequests) != 1 {
		t.Fatalf("create requests: %d", len(s.createRequests))
	}
	reqID := s.createRequests[0]

	b.onCreateEntityResponse(&protocol.CreateEntityResponseMsg{
		RequestID: reqID, StatusCode: protocol.StatusOK, EntityID: 77,
	})

	o := b.Objects().Get(h)
	if o == nil || o.NetRef != (schema.Ref{Entity: 77}) {
		t.Fatalf("actor net ref not bound: %+v", o)
	}
	if b.Channel(77) == nil {
		t.Fatalf("channel not registered under assigned entity id")
	}

	// Duplicate and stale responses are no-ops.
	b.onCreateEntityResponse(&protocol.CreateEntityResponseMsg{
		RequestID: reqID, StatusCode: protocol.StatusOK, EntityID: 78,
	})
	b.onCreateEntityResponse(&protocol.CreateEntityResponseMsg{
		RequestID: "req-from-last-session", StatusCode: protocol.StatusOK, EntityID: 79,
	})
	if o.NetRef != (schema.Ref{Entity: 77}) || b.Channel(78) != nil || b.Channel(79) != nil {
		t.Fatalf("stale create response mutated state")
	}
}

func TestResponseDelegatesInvokedOnce(t *testing.T) {
	b, s := newTestBridge(t)

	var reserved []int64
	reqID := s.SendReserveEntityIDsRequest(3)
	b.AddReserveEntityIDsDelegate(reqID, func(m *protocol.ReserveEntityIDsResponseMsg) {
		reserved = append(reserved, m.FirstEntityID)
	})
	resp := &protocol.ReserveEntityIDsResponseMsg{RequestID: reqID, StatusCode: protocol.StatusOK, FirstEntityID: 1000, Count: 3}
	b.onReserveEntityIDsResponse(resp)
	b.onReserveEntityIDsResponse(resp) // duplicate delivery
	if len(reserved) != 1 || reserved[0] != 1000 {
		t.Fatalf("reserve delegate: %v", reserved)
	}

	var results [][]int64
	qID := s.SendEntityQueryRequest(compTracker)
	b.AddEntityQueryDelegate(qID, func(m *protocol.EntityQueryResponseMsg) {
		results = append(results, m.Results)
	})
	b.onEntityQueryResponse(&protocol.EntityQueryResponseMsg{
		RequestID: qID, StatusCode: protocol.StatusOK, ResultCount: 2, Results: []int64{4, 9},
	})
	b.onEntityQueryResponse(&protocol.EntityQueryResponseMsg{RequestID: qID})
	if len(results) != 1 || len(results[0]) != 2 {
		t.Fatalf("query delegate: %v", results)
	}
}
