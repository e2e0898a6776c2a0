package bridge

import (
	"sort"

	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// actorCreator runs one entity's creation end to end: construct or duplicate
// the local object, apply initial component data, register net refs, and let
// the new object satisfy anything that was waiting on it.
type actorCreator struct {
	b          *Bridge
	entityID   int64
	meta       protocol.EntityAddedMsg
	components []pendingComponent

	actor   Handle
	channel *Channel
}

// receiveActor constructs the local object for a newly arrived entity.
// Creation is deferred as a whole when the entity belongs to a streaming
// level that has not loaded yet.
func (b *Bridge) receiveActor(entityID int64, comps []pendingComponent) {
	if ch := b.channels[entityID]; ch != nil && b.objects.Alive(ch.Actor) {
		b.log.Printf("entity %d: duplicate add, ignoring", entityID)
		return
	}
	c := &actorCreator{b: b, entityID: entityID, components: comps}
	if meta := b.entityMeta[entityID]; meta != nil {
		c.meta = *meta
	}
	if !c.createActorForEntity() {
		return
	}
	c.applyAllComponentDatas()
	c.finalize()
}

func (c *actorCreator) createActorForEntity() bool {
	if c.meta.StablePath != "" {
		if !c.b.levels.IsLoaded(c.meta.Level) {
			c.b.levels.Defer(c.meta.Level, deferredActor{
				entityID:   c.entityID,
				meta:       c.meta,
				components: c.components,
			})
			return false
		}
		if tmpl, ok := c.b.objects.TemplateByPath(c.meta.StablePath); ok {
			c.createFromTemplate(tmpl)
			return true
		}
		c.b.log.Printf("entity %d: no template at %q, constructing fresh", c.entityID, c.meta.StablePath)
	}
	c.createFresh()
	return true
}

func (c *actorCreator) createFresh() {
	class := c.meta.Class
	if class == "" {
		class = "object"
	}
	o := c.b.objects.New(class, "")
	o.Level = c.meta.Level
	o.Position = c.meta.Position
	c.actor = o.Handle()
	c.register()
}

// createFromTemplate duplicates a level-placed template instance as the seed
// for the new object. Template properties that point at other template
// objects are remapped to the network counterpart of that template, which
// may itself be unresolved if its entity has not streamed in yet.
func (c *actorCreator) createFromTemplate(tmpl Handle) {
	t := c.b.objects.Get(tmpl)
	o := c.b.objects.New(t.Class, t.Name)
	o.Level = t.Level
	o.StablePath = t.StablePath
	o.Position = c.meta.Position
	c.actor = o.Handle()
	c.register()

	co := ChannelObject{Channel: c.channel, Object: c.actor}
	for _, slot := range sortedIntKeys(t.props) {
		seed := schema.MapRefs(t.props[slot], c.reResolveSeedRef)
		if ft, ok := c.b.registry.FieldTypeOfSlot(slot); ok {
			w := schema.NewBitWriter()
			if err := schema.EncodeValue(w, ft, seed); err == nil {
				r := schema.NewBitReader(w.Bytes())
				if spanned, err := schema.DecodeValue(r, ft); err == nil {
					if entry := c.b.buildObjectRefs(spanned, ft, w.Bytes(), slot, -1); entry != nil {
						c.b.queueUnresolved(co, slot, entry)
					}
				}
			}
		}
		o.props[slot] = c.b.sanitizeRefs(seed)
	}
}

// reResolveSeedRef remaps a template-space ref to the network ref of its
// counterpart. Unknown counterparts (level object never seen in any
// ENTITY_ADDED) become null.
func (c *actorCreator) reResolveSeedRef(r schema.Ref) schema.Ref {
	h, ok := c.b.objects.ByRef(r)
	if !ok {
		return r
	}
	o := c.b.objects.Get(h)
	if !o.Template {
		return r
	}
	net := c.b.ReResolveReference(h)
	if net.IsNull() {
		c.b.log.Printf("entity %d: template ref %s has no known network counterpart", c.entityID, o.StablePath)
	}
	return net
}

func (c *actorCreator) register() {
	ch := newChannel(c.entityID)
	ch.Actor = c.actor
	c.channel = ch
	c.b.channels[c.entityID] = ch
	c.b.objects.RegisterNetRef(c.actor, schema.Ref{Entity: c.entityID})
}

func (c *actorCreator) applyAllComponentDatas() {
	for _, pc := range c.components {
		c.b.applyComponentData(c.channel, pc.componentID, pc.data)
	}
}

func (c *actorCreator) finalize() {
	c.b.stats.EntitiesCreated++
	c.b.ResolvePendingOperations(c.actor, schema.Ref{Entity: c.entityID})
	for offset, h := range c.channel.subObjects {
		c.b.ResolvePendingOperations(h, schema.Ref{Entity: c.entityID, Offset: offset})
	}
	if c.b.onActorCreated != nil {
		c.b.onActorCreated(c.b.objects.Get(c.actor))
	}
}

// ReResolveReference maps a template object to the network counterpart it
// will be (or already is) replicated as. Returns the null ref when the
// counterpart's entity id is not known yet.
func (b *Bridge) ReResolveReference(template Handle) schema.Ref {
	o := b.objects.Get(template)
	if o == nil {
		return schema.NullRef
	}
	if !o.Template {
		return o.NetRef
	}
	if id, ok := b.objects.PathEntity(o.StablePath); ok {
		return schema.Ref{Entity: id}
	}
	return schema.NullRef
}

// CreateActor constructs a worker-authored object and asks the runtime to
// create its entity. The object has no net ref until the create-entity
// response arrives and is correlated back to the channel.
func (b *Bridge) CreateActor(class string, components []protocol.ComponentSnapshot) Handle {
	o := b.objects.New(class, "")
	ch := newChannel(0)
	ch.Actor = o.Handle()
	if b.sender != nil {
		reqID := b.sender.SendCreateEntityRequest(0, components)
		b.pendingActorRequests[reqID] = ch
	}
	return o.Handle()
}

func sortedIntKeys(m map[int]schema.Value) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
