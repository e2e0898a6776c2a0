package bridge

import (
	"errors"
	"testing"

	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

func TestCommandWithUnresolvedArgsWaits(t *testing.T) {
	b, s := newTestBridge(t)
	addEntity(t, b, 1)

	var invoked []string
	b.RegisterCommandHandler(compTracker, cmdFollow, func(target *Object, args schema.Value) error {
		invoked = append(invoked, args.Fields[0].Ref.String())
		return nil
	})

	payload := encodeFollowArgs(t, b, schema.Ref{Entity: 5})
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r1", EntityID: 1, ComponentID: compTracker, CommandIndex: cmdFollow, Payload: payload,
	})
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r2", EntityID: 1, ComponentID: compTracker, CommandIndex: cmdFollow, Payload: payload,
	})

	if len(invoked) != 0 || len(s.responses) != 0 {
		t.Fatalf("command ran before its args resolved")
	}
	if b.Stats().RPCsQueued != 2 {
		t.Fatalf("RPCsQueued=%d want 2", b.Stats().RPCsQueued)
	}

	addEntity(t, b, 5)

	if len(invoked) != 2 {
		t.Fatalf("invoked=%v want both commands", invoked)
	}
	// Arrival order is preserved across the deferral.
	if len(s.responses) != 2 || s.responses[0].requestID != "r1" || s.responses[1].requestID != "r2" {
		t.Fatalf("responses: %+v", s.responses)
	}
	for _, r := range s.responses {
		if r.statusCode != protocol.StatusOK {
			t.Fatalf("response %s: %s", r.requestID, r.statusCode)
		}
	}
	if b.Stats().RPCsInvoked != 2 {
		t.Fatalf("RPCsInvoked=%d want 2", b.Stats().RPCsInvoked)
	}
}

func TestCommandWithResolvableArgsRunsImmediately(t *testing.T) {
	b, s := newTestBridge(t)
	addEntity(t, b, 1)
	addEntity(t, b, 5)

	b.RegisterCommandHandler(compTracker, cmdFollow, func(target *Object, args schema.Value) error {
		return nil
	})
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r1", EntityID: 1, ComponentID: compTracker, CommandIndex: cmdFollow,
		Payload: encodeFollowArgs(t, b, schema.Ref{Entity: 5}),
	})
	if len(s.responses) != 1 || s.responses[0].statusCode != protocol.StatusOK {
		t.Fatalf("responses: %+v", s.responses)
	}
}

func TestCommandFailureStatusCodes(t *testing.T) {
	b, s := newTestBridge(t)
	addEntity(t, b, 1)

	// Unknown entity.
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r1", EntityID: 99, ComponentID: compTracker, CommandIndex: cmdFollow,
		Payload: encodeFollowArgs(t, b, schema.NullRef),
	})
	// Unknown command.
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r2", EntityID: 1, ComponentID: compTracker, CommandIndex: 9,
		Payload: encodeFollowArgs(t, b, schema.NullRef),
	})
	// Handler error.
	b.RegisterCommandHandler(compTracker, cmdFollow, func(target *Object, args schema.Value) error {
		return errors.New("door is jammed")
	})
	b.OnCommandRequest(&protocol.CommandRequestMsg{
		RequestID: "r3", EntityID: 1, ComponentID: compTracker, CommandIndex: cmdFollow,
		Payload: encodeFollowArgs(t, b, schema.NullRef),
	})

	want := []sentResponse{
		{requestID: "r1", statusCode: protocol.ErrNotFound},
		{requestID: "r2", statusCode: protocol.ErrBadRequest},
		{requestID: "r3", statusCode: protocol.ErrApplicationError},
	}
	if len(s.responses) != len(want) {
		t.Fatalf("responses: %+v", s.responses)
	}
	for i, w := range want {
		if s.responses[i] != w {
			t.Fatalf("response %d: got %+v want %+v", i, s.responses[i], w)
		}
	}
}

func TestReliableCommandRetriesOnTransientFailure(t *testing.T) {
	b, s := newTestBridge(t)
	addEntity(t, b, 1)

	args := schema.StructValue(schema.RefValue(schema.NullRef))
	first := b.SendReliableCommand(1, compTracker, cmdFollow, args)
	if first == "" || len(s.commandRequests) != 1 {
		t.Fatalf("initial send: id=%q requests=%d", first, len(s.commandRequests))
	}

	// Authority flap: resent under a fresh request id.
	b.onCommandResponse(&protocol.CommandResponseMsg{RequestID: first, StatusCode: protocol.ErrAuthority})
	if len(s.commandRequests) != 2 {
		t.Fatalf("no resend after E_AUTHORITY")
	}
	second := s.commandRequests[1].requestID
	if second == first {
		t.Fatalf("resend reused the request id")
	}

	// Timeout: one more attempt allowed (cap is 3).
	b.onCommandResponse(&protocol.CommandResponseMsg{RequestID: second, StatusCode: protocol.ErrTimeout})
	if len(s.commandRequests) != 3 {
		t.Fatalf("no resend after E_TIMEOUT")
	}
	third := s.commandRequests[2].requestID

	// Attempts exhausted: give up.
	b.onCommandResponse(&protocol.CommandResponseMsg{RequestID: third, StatusCode: protocol.ErrAuthority})
	if len(s.commandRequests) != 3 {
		t.Fatalf("resent past the attempt cap")
	}

	// Permanent failure never retries.
	again := b.SendReliableCommand(1, compTracker, cmdFollow, args)
	b.onCommandResponse(&protocol.CommandResponseMsg{RequestID: again, StatusCode: protocol.ErrBadRequest})
	if len(s.commandRequests) != 4 {
		t.Fatalf("E_BAD_REQUEST should not be retried")
	}

	// A response nobody is waiting for is benign.
	b.onCommandResponse(&protocol.CommandResponseMsg{RequestID: "req-from-last-session", StatusCode: protocol.StatusOK})
}
