package protocol

import "encoding/json"

const Version = "1.0"

// Handshake message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
)

// Runtime -> worker op types, dispatched in arrival order.
const (
	OpEntityAdded              = "ENTITY_ADDED"
	OpComponentAdded           = "COMPONENT_ADDED"
	OpEntityRemoved            = "ENTITY_REMOVED"
	OpAuthorityChanged         = "AUTHORITY_CHANGED"
	OpComponentUpdated         = "COMPONENT_UPDATED"
	OpCommandRequest           = "COMMAND_REQUEST"
	OpCommandResponse          = "COMMAND_RESPONSE"
	OpCriticalSection          = "CRITICAL_SECTION"
	OpReserveEntityIDsResponse = "RESERVE_ENTITY_IDS_RESPONSE"
	OpCreateEntityResponse     = "CREATE_ENTITY_RESPONSE"
	OpEntityQueryResponse      = "ENTITY_QUERY_RESPONSE"
)

// Worker -> runtime request types.
const (
	ReqCreateEntity     = "CREATE_ENTITY_REQUEST"
	ReqReserveEntityIDs = "RESERVE_ENTITY_IDS_REQUEST"
	ReqEntityQuery      = "ENTITY_QUERY_REQUEST"
	ReqComponentUpdate  = "COMPONENT_UPDATE"
	ReqCommandRequest   = "COMMAND_REQUEST"
	ReqCommandResponse  = "COMMAND_RESPONSE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
