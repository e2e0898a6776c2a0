package bridge

// Channel is the per-entity bookkeeping unit: the root actor object, lazily
// created sub-objects per component offset, and per-component authority.
type Channel struct {
	EntityID int64
	Actor    Handle

	subObjects map[uint32]Handle
	Authority  map[uint32]bool

	closed bool
}

func newChannel(entityID int64) *Channel {
	return &Channel{
		EntityID:   entityID,
		subObjects: map[uint32]Handle{},
		Authority:  map[uint32]bool{},
	}
}

func (c *Channel) Closed() bool { return c.closed }

// ChannelObject identifies one consumer in the resolution index: an object
// within a channel. Both halves are lookup-only relations; the channel's
// closed flag and the handle's generation make destruction detectable
// without eager scrubbing.
type ChannelObject struct {
	Channel *Channel
	Object  Handle
}

// objectHandles returns the actor and every sub-object handle.
func (c *Channel) objectHandles() []Handle {
	out := make([]Handle, 0, 1+len(c.subObjects))
	if !c.Actor.IsNil() {
		out = append(out, c.Actor)
	}
	for _, h := range c.subObjects {
		out = append(out, h)
	}
	return out
}
