package bridge

import (
	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// Dispatch routes one runtime op. Lifecycle ops inside a critical section are
// buffered; everything else applies immediately. Must only be called from
// the dispatch goroutine.
func (b *Bridge) Dispatch(op protocol.AnyOp) {
	b.stats.Ops++
	if b.journal != nil {
		if err := b.journal.WriteOp(b.stats.Ops, op.Type, op.Raw); err != nil {
			b.log.Printf("op journal: %v", err)
		}
	}
	if b.index != nil {
		b.index.WriteOp(b.stats.Ops, op.Type, opEntityID(op), op.Raw)
	}

	switch op.Type {
	case protocol.OpCriticalSection:
		b.OnCriticalSection(op.CriticalSection)
	case protocol.OpEntityAdded:
		b.OnAddEntity(op.EntityAdded)
	case protocol.OpComponentAdded:
		b.OnAddComponent(op.ComponentAdded)
	case protocol.OpEntityRemoved:
		b.OnRemoveEntity(op.EntityRemoved)
	case protocol.OpAuthorityChanged:
		b.OnAuthorityChange(op.AuthorityChanged)
	case protocol.OpComponentUpdated:
		b.OnComponentUpdate(op.ComponentUpdated)
	case protocol.OpCommandRequest:
		b.OnCommandRequest(op.CommandRequest)
	case protocol.OpCommandResponse:
		b.onCommandResponse(op.CommandResponse)
	case protocol.OpReserveEntityIDsResponse:
		b.onReserveEntityIDsResponse(op.ReserveEntityIDs)
	case protocol.OpCreateEntityResponse:
		b.onCreateEntityResponse(op.CreateEntity)
	case protocol.OpEntityQueryResponse:
		b.onEntityQueryResponse(op.EntityQueryResults)
	default:
		b.log.Printf("unknown op %q dropped", op.Type)
		b.stats.Dropped++
	}
}

func (b *Bridge) OnCriticalSection(m *protocol.CriticalSectionMsg) {
	if m.InSection {
		b.enterCriticalSection()
	} else {
		b.leaveCriticalSection()
	}
}

func (b *Bridge) OnAddEntity(m *protocol.EntityAddedMsg) {
	meta := *m
	b.entityMeta[m.EntityID] = &meta
	if m.StablePath != "" {
		b.objects.SetPathEntity(m.StablePath, m.EntityID)
	}
	if b.crit.inBurst {
		b.crit.addEntities = append(b.crit.addEntities, m.EntityID)
		return
	}
	b.receiveActor(m.EntityID, nil)
}

func (b *Bridge) OnAddComponent(m *protocol.ComponentAddedMsg) {
	pc := pendingComponent{entityID: m.EntityID, componentID: m.ComponentID, data: m.Data}
	if b.crit.inBurst {
		b.crit.addComponents = append(b.crit.addComponents, pc)
		return
	}
	b.applyComponentToExisting(pc)
}

func (b *Bridge) OnRemoveEntity(m *protocol.EntityRemovedMsg) {
	if b.crit.inBurst {
		b.crit.removeEntities = append(b.crit.removeEntities, m.EntityID)
		return
	}
	b.removeActor(m.EntityID)
}

func (b *Bridge) OnAuthorityChange(m *protocol.AuthorityChangedMsg) {
	if b.crit.inBurst {
		b.crit.authorityChanges = append(b.crit.authorityChanges, *m)
		return
	}
	b.handleAuthority(*m)
}

func (b *Bridge) OnComponentUpdate(m *protocol.ComponentUpdatedMsg) {
	ch := b.channels[m.EntityID]
	if ch == nil || ch.closed {
		b.log.Printf("entity %d: component %d update for unknown entity dropped", m.EntityID, m.ComponentID)
		b.stats.Dropped++
		return
	}
	if ch.Authority[m.ComponentID] {
		// We author this component; the echo of our own update is not
		// re-applied.
		return
	}
	b.applyComponentData(ch, m.ComponentID, m.Data)
}

func (b *Bridge) OnCommandRequest(m *protocol.CommandRequestMsg) {
	ch := b.channels[m.EntityID]
	if ch == nil || ch.closed {
		b.respondCommand(m.RequestID, protocol.ErrNotFound, nil)
		return
	}
	def, ok := b.registry.Command(m.ComponentID, m.CommandIndex)
	if !ok {
		b.respondCommand(m.RequestID, protocol.ErrBadRequest, nil)
		return
	}
	l, _ := b.registry.Layout(m.ComponentID)
	var offset uint32
	if l != nil {
		offset = l.Offset
	}
	target := b.objectForOffset(ch, offset)

	r := schema.NewBitReader(m.Payload)
	args, err := schema.DecodeValue(r, &def.Args)
	if err != nil {
		b.log.Printf("entity %d: command %s payload decode failed: %v", m.EntityID, def.Name, err)
		b.respondCommand(m.RequestID, protocol.ErrBadRequest, nil)
		b.stats.Dropped++
		return
	}

	unresolved := map[schema.Ref]struct{}{}
	schema.WalkRefs(args, func(ref schema.Ref) {
		if b.unresolvedRef(ref) {
			unresolved[ref] = struct{}{}
		}
	})

	rpc := &pendingRPC{
		unresolved:   unresolved,
		channel:      ch,
		target:       target,
		componentID:  m.ComponentID,
		commandIndex: m.CommandIndex,
		requestID:    m.RequestID,
		payload:      m.Payload,
		countBits:    args.BitLen,
	}
	if len(unresolved) > 0 {
		b.queueIncomingRPC(rpc)
		return
	}
	b.invokeRPC(rpc)
}

// applyComponentToExisting applies a component addition to an entity whose
// actor already exists (it was not part of this burst's entity additions).
func (b *Bridge) applyComponentToExisting(pc pendingComponent) {
	ch := b.channels[pc.entityID]
	if ch == nil || ch.closed || !b.objects.Alive(ch.Actor) {
		// The entity may be parked on an unloaded streaming level; its data
		// must travel with the deferred creation.
		if b.levels.AppendComponent(pc.entityID, pc) {
			return
		}
		b.log.Printf("entity %d: component %d for unknown entity dropped", pc.entityID, pc.componentID)
		b.stats.Dropped++
		return
	}
	b.applyComponentData(ch, pc.componentID, pc.data)
}

// applyComponentData decodes one component payload onto its target object:
// resolvable parts apply immediately, unresolved parts are buffered and
// indexed per reference.
func (b *Bridge) applyComponentData(ch *Channel, componentID uint32, data []byte) {
	l, ok := b.registry.Layout(componentID)
	if !ok {
		b.log.Printf("entity %d: unknown component %d dropped", ch.EntityID, componentID)
		b.stats.Dropped++
		return
	}
	values, err := schema.DecodeComponent(l, data)
	if err != nil {
		b.log.Printf("entity %d: component %s decode failed, update dropped: %v", ch.EntityID, l.Name, err)
		b.stats.Dropped++
		return
	}

	target := b.objectForOffset(ch, l.Offset)
	co := ChannelObject{Channel: ch, Object: target}
	for i, v := range values {
		slot := b.registry.SlotOf(componentID, i)
		if entry := b.buildObjectRefs(v, &l.Fields[i].Type, data, slot, -1); entry != nil {
			b.queueUnresolved(co, slot, entry)
		} else if old := b.refStore[co][slot]; old != nil {
			// A fully resolvable update supersedes a buffered one.
			delete(b.refStore[co], slot)
			b.unindexEntry(co, old)
			if len(b.refStore[co]) == 0 {
				delete(b.refStore, co)
			}
		}
		b.applyProperty(co, slot, b.sanitizeRefs(v))
	}
}

func (b *Bridge) handleAuthority(m protocol.AuthorityChangedMsg) {
	ch := b.channels[m.EntityID]
	if ch == nil || ch.closed {
		b.log.Printf("entity %d: authority change for unknown entity dropped", m.EntityID)
		return
	}
	ch.Authority[m.ComponentID] = m.Authoritative
	if b.onAuthorityChanged != nil {
		b.onAuthorityChanged(m.EntityID, m.ComponentID, m.Authoritative)
	}
}

// removeActor tears the entity down and proactively purges every store,
// queue, and index entry its objects own.
func (b *Bridge) removeActor(entityID int64) {
	delete(b.entityMeta, entityID)
	ch := b.channels[entityID]
	if ch == nil {
		return
	}
	ch.closed = true

	for _, h := range ch.objectHandles() {
		co := ChannelObject{Channel: ch, Object: h}
		if refsMap := b.refStore[co]; refsMap != nil {
			for _, entry := range refsMap {
				b.unindexOwned(co, entry)
			}
			delete(b.refStore, co)
		}
		if list := b.rpcQueue[co]; list != nil {
			for _, rpc := range list {
				rpc.done = true
				for ref := range rpc.unresolved {
					b.dropRPCFromIndex(ref, rpc)
				}
			}
			delete(b.rpcQueue, co)
		}
		b.objects.Destroy(h)
	}

	delete(b.channels, entityID)
	b.cleanupChannelRequests(ch)
	b.stats.EntitiesRemoved++
}

// CleanupDeletedEntity purges all bridge state owned by an entity that was
// destroyed outside the normal remove-entity flow.
func (b *Bridge) CleanupDeletedEntity(entityID int64) {
	b.removeActor(entityID)
}

// unindexOwned removes co from the resolution index for every ref the entry
// waits on, unconditionally (teardown path).
func (b *Bridge) unindexOwned(co ChannelObject, entry *ObjectRefs) {
	for _, r := range entry.refs() {
		if set := b.incomingRefs[r]; set != nil {
			delete(set, co)
			if len(set) == 0 {
				delete(b.incomingRefs, r)
			}
		}
	}
}

func (b *Bridge) dropRPCFromIndex(ref schema.Ref, rpc *pendingRPC) {
	list := b.incomingRPCs[ref]
	for i, p := range list {
		if p == rpc {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.incomingRPCs, ref)
	} else {
		b.incomingRPCs[ref] = list
	}
}

// objectForOffset returns the channel's object for a component offset,
// creating the sub-object lazily and registering its net ref.
func (b *Bridge) objectForOffset(ch *Channel, offset uint32) Handle {
	if offset == 0 {
		return ch.Actor
	}
	if h, ok := ch.subObjects[offset]; ok && b.objects.Alive(h) {
		return h
	}
	actor := b.objects.Get(ch.Actor)
	class := "subobject"
	if actor != nil {
		class = actor.Class + "_sub"
	}
	o := b.objects.New(class, "")
	ch.subObjects[offset] = o.Handle()
	if ch.EntityID != 0 {
		ref := schema.Ref{Entity: ch.EntityID, Offset: offset}
		b.objects.RegisterNetRef(o.Handle(), ref)
		b.ResolvePendingOperations(o.Handle(), ref)
	}
	return o.Handle()
}

func opEntityID(op protocol.AnyOp) int64 {
	switch {
	case op.EntityAdded != nil:
		return op.EntityAdded.EntityID
	case op.ComponentAdded != nil:
		return op.ComponentAdded.EntityID
	case op.EntityRemoved != nil:
		return op.EntityRemoved.EntityID
	case op.AuthorityChanged != nil:
		return op.AuthorityChanged.EntityID
	case op.ComponentUpdated != nil:
		return op.ComponentUpdated.EntityID
	case op.CommandRequest != nil:
		return op.CommandRequest.EntityID
	}
	return 0
}
