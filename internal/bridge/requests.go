package bridge

import (
	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// reliableRPC is the retry state for an outbound command that must be resent
// on transient failure. Retry policy is driven entirely by response arrival;
// the engine owns no clock.
type reliableRPC struct {
	channel      *Channel
	entityID     int64
	componentID  uint32
	commandIndex uint32
	payload      []byte
	attempts     int
}

// SendReliableCommand encodes and sends a command whose delivery is retried
// on E_AUTHORITY and E_TIMEOUT responses. Returns the initial request id, or
// "" when the args don't encode or no sender is wired.
func (b *Bridge) SendReliableCommand(entityID int64, componentID, commandIndex uint32, args schema.Value) string {
	if b.sender == nil {
		return ""
	}
	def, ok := b.registry.Command(componentID, commandIndex)
	if !ok {
		b.log.Printf("reliable command %d/%d: not registered", componentID, commandIndex)
		return ""
	}
	w := schema.NewBitWriter()
	if err := schema.EncodeValue(w, &def.Args, args); err != nil {
		b.log.Printf("reliable command %s: encode failed: %v", def.Name, err)
		return ""
	}
	payload := w.Bytes()
	reqID := b.sender.SendCommandRequest(entityID, componentID, commandIndex, payload)
	b.pendingReliableRPCs[reqID] = &reliableRPC{
		channel:      b.channels[entityID],
		entityID:     entityID,
		componentID:  componentID,
		commandIndex: commandIndex,
		payload:      payload,
		attempts:     1,
	}
	return reqID
}

// AddEntityQueryDelegate registers interest in an entity-query response.
func (b *Bridge) AddEntityQueryDelegate(requestID string, fn func(*protocol.EntityQueryResponseMsg)) {
	b.entityQueryDelegates[requestID] = fn
}

// AddReserveEntityIDsDelegate registers interest in a reserve-ids response.
func (b *Bridge) AddReserveEntityIDsDelegate(requestID string, fn func(*protocol.ReserveEntityIDsResponseMsg)) {
	b.reserveIDsDelegates[requestID] = fn
}

func (b *Bridge) onCommandResponse(m *protocol.CommandResponseMsg) {
	r, ok := b.pendingReliableRPCs[m.RequestID]
	if !ok {
		// Non-reliable command, or the owning channel was torn down before
		// the response arrived. Benign either way.
		return
	}
	delete(b.pendingReliableRPCs, m.RequestID)

	if m.StatusCode == protocol.StatusOK {
		return
	}
	if !protocol.Retryable(m.StatusCode) || r.attempts >= b.reliableRPCAttempts {
		b.log.Printf("reliable command to entity %d failed (%s) after %d attempts: %s",
			r.entityID, m.StatusCode, r.attempts, m.Message)
		return
	}
	r.attempts++
	reqID := b.sender.SendCommandRequest(r.entityID, r.componentID, r.commandIndex, r.payload)
	b.pendingReliableRPCs[reqID] = r
}

func (b *Bridge) onCreateEntityResponse(m *protocol.CreateEntityResponseMsg) {
	ch, ok := b.pendingActorRequests[m.RequestID]
	if !ok {
		return // stale or duplicate response
	}
	delete(b.pendingActorRequests, m.RequestID)

	if m.StatusCode != protocol.StatusOK {
		b.log.Printf("create entity request %s failed: %s %s", m.RequestID, m.StatusCode, m.Message)
		return
	}
	if ch.closed || !b.objects.Alive(ch.Actor) {
		return
	}
	ch.EntityID = m.EntityID
	b.channels[m.EntityID] = ch
	b.objects.RegisterNetRef(ch.Actor, schema.Ref{Entity: m.EntityID})
	b.ResolvePendingOperations(ch.Actor, schema.Ref{Entity: m.EntityID})
}

func (b *Bridge) onReserveEntityIDsResponse(m *protocol.ReserveEntityIDsResponseMsg) {
	fn, ok := b.reserveIDsDelegates[m.RequestID]
	if !ok {
		return
	}
	delete(b.reserveIDsDelegates, m.RequestID)
	fn(m)
}

func (b *Bridge) onEntityQueryResponse(m *protocol.EntityQueryResponseMsg) {
	fn, ok := b.entityQueryDelegates[m.RequestID]
	if !ok {
		return
	}
	delete(b.entityQueryDelegates, m.RequestID)
	fn(m)
}

// cleanupChannelRequests drops correlation entries owned by a channel being
// torn down; their responses, if they ever arrive, become benign no-ops.
func (b *Bridge) cleanupChannelRequests(ch *Channel) {
	for id, c := range b.pendingActorRequests {
		if c == ch {
			delete(b.pendingActorRequests, id)
		}
	}
	for id, r := range b.pendingReliableRPCs {
		if r.channel == ch {
			delete(b.pendingReliableRPCs, id)
		}
	}
}
