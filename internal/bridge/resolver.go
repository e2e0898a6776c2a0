package bridge

import "simbridge.dev/internal/schema"

type resolvedObject struct {
	obj Handle
	ref schema.Ref
}

// ResolvePendingOperations re-drives every consumer waiting on ref, now that
// obj satisfies it. Calls made while a pass is already running (or while a
// critical section is buffering) are queued and processed after the current
// pass, so the index is never mutated under iteration and resolution depth
// stays bounded.
func (b *Bridge) ResolvePendingOperations(obj Handle, ref schema.Ref) {
	if b.resolving || b.crit.inBurst {
		b.resolvedQueue = append(b.resolvedQueue, resolvedObject{obj: obj, ref: ref})
		return
	}
	b.resolving = true
	b.resolvePending(obj, ref)
	b.resolving = false
	b.processResolvedQueue()
}

func (b *Bridge) processResolvedQueue() {
	for len(b.resolvedQueue) > 0 {
		queue := b.resolvedQueue
		b.resolvedQueue = nil
		for _, q := range queue {
			b.resolving = true
			b.resolvePending(q.obj, q.ref)
			b.resolving = false
		}
	}
}

func (b *Bridge) resolvePending(obj Handle, ref schema.Ref) {
	b.resolveIncomingOperations(obj, ref)
	b.resolveIncomingRPCs(obj, ref)
}

// resolveIncomingOperations replays buffered property updates waiting on ref.
// Waiters whose channel or object has died are skipped; their store entries
// are reclaimed on teardown, not here.
func (b *Bridge) resolveIncomingOperations(obj Handle, ref schema.Ref) {
	set := b.incomingRefs[ref]
	if len(set) == 0 {
		delete(b.incomingRefs, ref)
		return
	}
	delete(b.incomingRefs, ref)

	targets := make([]ChannelObject, 0, len(set))
	for co := range set {
		targets = append(targets, co)
	}

	for _, co := range targets {
		if co.Channel.closed || !b.objects.Alive(co.Object) {
			continue
		}
		refsMap := b.refStore[co]
		if refsMap == nil {
			continue
		}
		for _, slot := range sortedSlots(refsMap) {
			entry := refsMap[slot]
			if !entry.contains(ref) {
				continue
			}
			if !entry.drop(ref) {
				continue // still waiting on other refs
			}
			v, err := b.decodeEntry(entry)
			delete(refsMap, slot)
			if err != nil {
				b.log.Printf("entity %d slot %d: replay decode failed: %v", co.Channel.EntityID, slot, err)
				b.stats.Dropped++
				continue
			}
			b.applyProperty(co, slot, v)
			b.stats.PropsResolved++
		}
		if len(refsMap) == 0 {
			delete(b.refStore, co)
		}
	}

	if b.index != nil {
		b.index.WriteResolution(ref, len(targets), b.stats.Ops)
	}
}

// resolveIncomingRPCs invokes buffered commands whose last missing ref just
// resolved, in original arrival order.
func (b *Bridge) resolveIncomingRPCs(obj Handle, ref schema.Ref) {
	list := b.incomingRPCs[ref]
	if list == nil {
		return
	}
	delete(b.incomingRPCs, ref)

	for _, rpc := range list {
		if rpc.done {
			continue
		}
		delete(rpc.unresolved, ref)
		if len(rpc.unresolved) > 0 {
			continue
		}
		rpc.done = true
		b.removeQueuedRPC(rpc)
		if rpc.channel.closed || !b.objects.Alive(rpc.target) {
			continue
		}
		b.invokeRPC(rpc)
	}
}

// applyProperty writes a resolved value into the live object, firing its
// change notification.
func (b *Bridge) applyProperty(co ChannelObject, slot int, v schema.Value) {
	o := b.objects.Get(co.Object)
	if o == nil {
		return
	}
	o.setProp(slot, v)
}

// sanitizeRefs nulls out any ref that cannot be resolved yet, so the part of
// a value that is already resolvable can be applied immediately.
func (b *Bridge) sanitizeRefs(v schema.Value) schema.Value {
	return schema.MapRefs(v, func(r schema.Ref) schema.Ref {
		if b.unresolvedRef(r) {
			return schema.NullRef
		}
		return r
	})
}
