package bridge

import "simbridge.dev/internal/protocol"

type pendingComponent struct {
	entityID    int64
	componentID uint32
	data        []byte
	consumed    bool
}

// criticalBatcher buffers lifecycle ops that arrive inside one atomic burst.
// Replay order on burst close is fixed: entity additions, component
// additions, authority changes, entity removals. Authority must see fully
// initialized components, and removals must not race additions for the same
// id within one burst.
type criticalBatcher struct {
	inBurst bool

	addEntities      []int64
	addComponents    []pendingComponent
	authorityChanges []protocol.AuthorityChangedMsg
	removeEntities   []int64
}

func (b *Bridge) enterCriticalSection() {
	if b.crit.inBurst {
		b.log.Printf("critical section enter while already in one; ignoring")
		return
	}
	b.crit.inBurst = true
}

func (b *Bridge) leaveCriticalSection() {
	if !b.crit.inBurst {
		b.log.Printf("critical section leave without enter; ignoring")
		return
	}
	b.crit.inBurst = false

	adds := b.crit.addEntities
	comps := b.crit.addComponents
	auth := b.crit.authorityChanges
	removes := b.crit.removeEntities
	b.crit.addEntities = nil
	b.crit.addComponents = nil
	b.crit.authorityChanges = nil
	b.crit.removeEntities = nil

	for _, id := range adds {
		b.receiveActor(id, takeComponents(comps, id))
	}
	for i := range comps {
		if comps[i].consumed {
			continue
		}
		b.applyComponentToExisting(comps[i])
	}
	for _, op := range auth {
		b.handleAuthority(op)
	}
	for _, id := range removes {
		b.removeActor(id)
	}

	b.processResolvedQueue()
}

// takeComponents extracts (and marks consumed) the buffered component
// additions for one entity, preserving arrival order.
func takeComponents(comps []pendingComponent, entityID int64) []pendingComponent {
	var out []pendingComponent
	for i := range comps {
		if comps[i].entityID == entityID && !comps[i].consumed {
			comps[i].consumed = true
			out = append(out, comps[i])
		}
	}
	return out
}
