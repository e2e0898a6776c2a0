package bridge

import (
	"fmt"
	"io"
	"log"
	"testing"

	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// Test component ids.
const (
	compTracker uint32 = 1 // target(ref), score(int) -> slots 0,1
	compSquad   uint32 = 2 // members(list of {ref,int}) -> slot 2
	compGear    uint32 = 3 // item(ref), offset 1 -> slot 3
)

const cmdFollow uint32 = 1

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("registry: %v", err)
		}
	}
	must(reg.Register(&schema.Layout{ID: compTracker, Name: "tracker", Fields: []schema.Field{
		{Name: "target", Type: schema.FieldType{Kind: schema.KindRef}},
		{Name: "score", Type: schema.FieldType{Kind: schema.KindInt}},
	}}))
	must(reg.Register(&schema.Layout{ID: compSquad, Name: "squad", Fields: []schema.Field{
		{Name: "members", Type: schema.FieldType{
			Kind: schema.KindList,
			Elem: &schema.FieldType{Kind: schema.KindStruct, Fields: []schema.FieldType{
				{Kind: schema.KindRef},
				{Kind: schema.KindInt},
			}},
		}},
	}}))
	must(reg.Register(&schema.Layout{ID: compGear, Name: "gear", Offset: 1, Fields: []schema.Field{
		{Name: "item", Type: schema.FieldType{Kind: schema.KindRef}},
	}}))
	must(reg.RegisterCommand(&schema.CommandDef{
		ComponentID: compTracker,
		Index:       cmdFollow,
		Name:        "follow",
		Args: schema.FieldType{Kind: schema.KindStruct, Fields: []schema.FieldType{
			{Kind: schema.KindRef},
		}},
	}))
	return reg
}

type sentCommand struct {
	requestID    string
	entityID     int64
	componentID  uint32
	commandIndex uint32
	payload      []byte
}

type sentResponse struct {
	requestID  string
	statusCode string
}

// fakeSender records everything the bridge puts on the wire and hands out
// deterministic request ids.
type fakeSender struct {
	nextID int

	createRequests  []string
	reserveRequests []string
	queryRequests   []string
	commandRequests []sentCommand
	responses       []sentResponse
	updates         int
}

func (s *fakeSender) newID() string {
	s.nextID++
	return fmt.Sprintf("req-%d", s.nextID)
}

func (s *fakeSender) SendCreateEntityRequest(entityID int64, components []protocol.ComponentSnapshot) string {
	id := s.newID()
	s.createRequests = append(s.createRequests, id)
	return id
}

func (s *fakeSender) SendReserveEntityIDsRequest(count int) string {
	id := s.newID()
	s.reserveRequests = append(s.reserveRequests, id)
	return id
}

func (s *fakeSender) SendEntityQueryRequest(componentID uint32) string {
	id := s.newID()
	s.queryRequests = append(s.queryRequests, id)
	return id
}

func (s *fakeSender) SendCommandRequest(entityID int64, componentID, commandIndex uint32, payload []byte) string {
	id := s.newID()
	s.commandRequests = append(s.commandRequests, sentCommand{
		requestID:    id,
		entityID:     entityID,
		componentID:  componentID,
		commandIndex: commandIndex,
		payload:      payload,
	})
	return id
}

func (s *fakeSender) SendCommandResponse(requestID, statusCode string, payload []byte) {
	s.responses = append(s.responses, sentResponse{requestID: requestID, statusCode: statusCode})
}

func (s *fakeSender) SendComponentUpdate(entityID int64, componentID uint32, data []byte) {
	s.updates++
}

func newTestBridge(t *testing.T) (*Bridge, *fakeSender) {
	t.Helper()
	s := &fakeSender{}
	b := New(Config{
		Log:      log.New(io.Discard, "", 0),
		Registry: testRegistry(t),
		Sender:   s,
	})
	return b, s
}

func addEntity(t *testing.T, b *Bridge, id int64) {
	t.Helper()
	b.OnAddEntity(&protocol.EntityAddedMsg{EntityID: id, Class: "character"})
	if b.Channel(id) == nil {
		t.Fatalf("entity %d: no channel after add", id)
	}
}

func encodeComponent(t *testing.T, b *Bridge, componentID uint32, values ...schema.Value) []byte {
	t.Helper()
	l, ok := b.Registry().Layout(componentID)
	if !ok {
		t.Fatalf("no layout %d", componentID)
	}
	data, err := schema.EncodeComponent(l, values)
	if err != nil {
		t.Fatalf("encode component %d: %v", componentID, err)
	}
	return data
}

func encodeFollowArgs(t *testing.T, b *Bridge, target schema.Ref) []byte {
	t.Helper()
	def, ok := b.Registry().Command(compTracker, cmdFollow)
	if !ok {
		t.Fatalf("follow command not registered")
	}
	w := schema.NewBitWriter()
	if err := schema.EncodeValue(w, &def.Args, schema.StructValue(schema.RefValue(target))); err != nil {
		t.Fatalf("encode follow args: %v", err)
	}
	return w.Bytes()
}

// prop fetches a property of the entity's root object.
func prop(t *testing.T, b *Bridge, entityID int64, slot int) (schema.Value, bool) {
	t.Helper()
	o := b.Objects().Resolve(schema.Ref{Entity: entityID})
	if o == nil {
		t.Fatalf("entity %d: no root object", entityID)
	}
	return o.Prop(slot)
}
