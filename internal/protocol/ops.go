package protocol

import (
	"encoding/json"
	"fmt"
)

// AnyOp is a decoded runtime op plus the raw JSON it came from (kept for
// journaling). Exactly one of the pointer fields is set.
type AnyOp struct {
	Type string
	Raw  json.RawMessage

	EntityAdded        *EntityAddedMsg
	ComponentAdded     *ComponentAddedMsg
	EntityRemoved      *EntityRemovedMsg
	AuthorityChanged   *AuthorityChangedMsg
	ComponentUpdated   *ComponentUpdatedMsg
	CommandRequest     *CommandRequestMsg
	CommandResponse    *CommandResponseMsg
	CriticalSection    *CriticalSectionMsg
	ReserveEntityIDs   *ReserveEntityIDsResponseMsg
	CreateEntity       *CreateEntityResponseMsg
	EntityQueryResults *EntityQueryResponseMsg
}

// DecodeOp parses one runtime op. Unknown types and version mismatches are
// errors; the caller decides whether to drop or disconnect.
func DecodeOp(b []byte) (AnyOp, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return AnyOp{}, err
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != Version {
		return AnyOp{}, fmt.Errorf("protocol version %q, want %q", base.ProtocolVersion, Version)
	}

	op := AnyOp{Type: base.Type, Raw: append(json.RawMessage(nil), b...)}
	var dst any
	switch base.Type {
	case OpEntityAdded:
		op.EntityAdded = &EntityAddedMsg{}
		dst = op.EntityAdded
	case OpComponentAdded:
		op.ComponentAdded = &ComponentAddedMsg{}
		dst = op.ComponentAdded
	case OpEntityRemoved:
		op.EntityRemoved = &EntityRemovedMsg{}
		dst = op.EntityRemoved
	case OpAuthorityChanged:
		op.AuthorityChanged = &AuthorityChangedMsg{}
		dst = op.AuthorityChanged
	case OpComponentUpdated:
		op.ComponentUpdated = &ComponentUpdatedMsg{}
		dst = op.ComponentUpdated
	case OpCommandRequest:
		op.CommandRequest = &CommandRequestMsg{}
		dst = op.CommandRequest
	case OpCommandResponse:
		op.CommandResponse = &CommandResponseMsg{}
		dst = op.CommandResponse
	case OpCriticalSection:
		op.CriticalSection = &CriticalSectionMsg{}
		dst = op.CriticalSection
	case OpReserveEntityIDsResponse:
		op.ReserveEntityIDs = &ReserveEntityIDsResponseMsg{}
		dst = op.ReserveEntityIDs
	case OpCreateEntityResponse:
		op.CreateEntity = &CreateEntityResponseMsg{}
		dst = op.CreateEntity
	case OpEntityQueryResponse:
		op.EntityQueryResults = &EntityQueryResponseMsg{}
		dst = op.EntityQueryResults
	default:
		return AnyOp{}, fmt.Errorf("unknown op type %q", base.Type)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return AnyOp{}, err
	}
	return op, nil
}
