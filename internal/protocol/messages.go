package protocol

// HELLO (worker -> runtime)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorkerID        string `json:"worker_id"`
	WorkerType      string `json:"worker_type"`
}

// WELCOME (runtime -> worker)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorkerID        string `json:"worker_id"`
	RuntimeID       string `json:"runtime_id,omitempty"`
}

// ENTITY_ADDED. Class/StablePath/Level describe how to construct the local
// object: a non-empty StablePath means the entity corresponds to a
// level-placed template instance owned by streaming level Level.
type EntityAddedMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	EntityID        int64      `json:"entity_id"`
	Class           string     `json:"class,omitempty"`
	StablePath      string     `json:"stable_path,omitempty"`
	Level           string     `json:"level,omitempty"`
	Position        [3]float64 `json:"position,omitempty"`
}

// COMPONENT_ADDED. Data is the component's initial payload (base64 in JSON).
type ComponentAddedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EntityID        int64  `json:"entity_id"`
	ComponentID     uint32 `json:"component_id"`
	Data            []byte `json:"data"`
}

// ENTITY_REMOVED
type EntityRemovedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EntityID        int64  `json:"entity_id"`
}

// AUTHORITY_CHANGED
type AuthorityChangedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EntityID        int64  `json:"entity_id"`
	ComponentID     uint32 `json:"component_id"`
	Authoritative   bool   `json:"authoritative"`
}

// COMPONENT_UPDATED
type ComponentUpdatedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EntityID        int64  `json:"entity_id"`
	ComponentID     uint32 `json:"component_id"`
	Data            []byte `json:"data"`
}

// COMMAND_REQUEST (both directions; RequestID correlates the response)
type CommandRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	EntityID        int64  `json:"entity_id"`
	ComponentID     uint32 `json:"component_id"`
	CommandIndex    uint32 `json:"command_index"`
	Payload         []byte `json:"payload"`
}

// COMMAND_RESPONSE (both directions)
type CommandResponseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	StatusCode      string `json:"status_code"`
	Message         string `json:"message,omitempty"`
	Payload         []byte `json:"payload,omitempty"`
}

// CRITICAL_SECTION brackets an atomic burst of lifecycle ops.
type CriticalSectionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	InSection       bool   `json:"in_section"`
}

// RESERVE_ENTITY_IDS_RESPONSE
type ReserveEntityIDsResponseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	StatusCode      string `json:"status_code"`
	Message         string `json:"message,omitempty"`
	FirstEntityID   int64  `json:"first_entity_id,omitempty"`
	Count           int    `json:"count,omitempty"`
}

// CREATE_ENTITY_RESPONSE
type CreateEntityResponseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	StatusCode      string `json:"status_code"`
	Message         string `json:"message,omitempty"`
	EntityID        int64  `json:"entity_id,omitempty"`
}

// ENTITY_QUERY_RESPONSE
type EntityQueryResponseMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RequestID       string  `json:"request_id"`
	StatusCode      string  `json:"status_code"`
	Message         string  `json:"message,omitempty"`
	ResultCount     int     `json:"result_count"`
	Results         []int64 `json:"results,omitempty"`
}

// ComponentSnapshot is one component's initial data inside an outbound
// CREATE_ENTITY_REQUEST.
type ComponentSnapshot struct {
	ComponentID uint32 `json:"component_id"`
	Data        []byte `json:"data"`
}

// CREATE_ENTITY_REQUEST (worker -> runtime)
type CreateEntityRequestMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	RequestID       string              `json:"request_id"`
	EntityID        int64               `json:"entity_id,omitempty"`
	Components      []ComponentSnapshot `json:"components,omitempty"`
}

// RESERVE_ENTITY_IDS_REQUEST (worker -> runtime)
type ReserveEntityIDsRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Count           int    `json:"count"`
}

// ENTITY_QUERY_REQUEST (worker -> runtime). The only query shape the bridge
// issues is "entities holding component X", which is all the creator needs.
type EntityQueryRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	ComponentID     uint32 `json:"component_id"`
}
