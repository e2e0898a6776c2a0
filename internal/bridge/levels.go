package bridge

import "simbridge.dev/internal/protocol"

// deferredActor is a whole entity creation parked until its streaming level
// loads. This is a coarser deferral than per-reference buffering and feeds
// the same creator through its own queue.
type deferredActor struct {
	entityID   int64
	meta       protocol.EntityAddedMsg
	components []pendingComponent
}

type levelManager struct {
	loaded   map[string]bool
	deferred map[string][]deferredActor
}

func newLevelManager() *levelManager {
	return &levelManager{
		// The empty level name means "not level-bound": always available.
		loaded:   map[string]bool{"": true},
		deferred: map[string][]deferredActor{},
	}
}

func (m *levelManager) IsLoaded(name string) bool { return m.loaded[name] }

func (m *levelManager) Defer(name string, da deferredActor) {
	m.deferred[name] = append(m.deferred[name], da)
}

// MarkLoaded records the level as available and hands back everything that
// was parked on it, in arrival order.
func (m *levelManager) MarkLoaded(name string) []deferredActor {
	m.loaded[name] = true
	out := m.deferred[name]
	delete(m.deferred, name)
	return out
}

func (m *levelManager) PendingFor(name string) int { return len(m.deferred[name]) }

// AppendComponent attaches a component addition to an entity whose creation
// is parked on an unloaded level, so the entity is later created with all of
// its data. Returns false when no deferred record owns the entity.
func (m *levelManager) AppendComponent(entityID int64, pc pendingComponent) bool {
	for name, list := range m.deferred {
		for i := range list {
			if list[i].entityID == entityID {
				list[i].components = append(list[i].components, pc)
				m.deferred[name] = list
				return true
			}
		}
	}
	return false
}

// OnLevelLoaded replays every deferred entity creation parked on the level.
func (b *Bridge) OnLevelLoaded(name string) {
	for _, da := range b.levels.MarkLoaded(name) {
		meta := da.meta
		b.entityMeta[da.entityID] = &meta
		b.receiveActor(da.entityID, da.components)
	}
	b.processResolvedQueue()
}
