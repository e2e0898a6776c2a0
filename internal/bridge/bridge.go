package bridge

import (
	"context"
	"log"
	"os"

	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// Sender is the outbound collaborator: it puts requests on the wire and
// returns the transport-generated request id the bridge correlates responses
// with.
type Sender interface {
	SendCreateEntityRequest(entityID int64, components []protocol.ComponentSnapshot) (requestID string)
	SendReserveEntityIDsRequest(count int) (requestID string)
	SendEntityQueryRequest(componentID uint32) (requestID string)
	SendCommandRequest(entityID int64, componentID, commandIndex uint32, payload []byte) (requestID string)
	SendCommandResponse(requestID, statusCode string, payload []byte)
	SendComponentUpdate(entityID int64, componentID uint32, data []byte)
}

// OpJournal records every received op (optional; see persistence/oplog).
type OpJournal interface {
	WriteOp(seq uint64, opType string, raw []byte) error
}

// OpIndex is an observational secondary index (optional; see
// persistence/opindex). Implementations must not block the dispatch thread.
type OpIndex interface {
	WriteOp(seq uint64, opType string, entityID int64, raw []byte)
	WriteResolution(ref schema.Ref, waiters int, seq uint64)
}

type Stats struct {
	Ops             uint64
	EntitiesCreated uint64
	EntitiesRemoved uint64
	PropsBuffered   uint64
	PropsResolved   uint64
	RPCsQueued      uint64
	RPCsInvoked     uint64
	Dropped         uint64
}

type Config struct {
	Log      *log.Logger
	Registry *schema.Registry
	Sender   Sender
	Journal  OpJournal
	Index    OpIndex

	InboxSize           int
	ReliableRPCAttempts int
}

// Bridge reconciles the runtime's replicated entity/component state with the
// local object graph. All state is owned by the dispatch goroutine that runs
// Run (or calls Dispatch directly); nothing here locks.
type Bridge struct {
	log      *log.Logger
	registry *schema.Registry
	sender   Sender
	journal  OpJournal
	index    OpIndex

	objects  *ObjectMap
	channels map[int64]*Channel
	levels   *levelManager

	entityMeta map[int64]*protocol.EntityAddedMsg

	// Reference store + resolution index. Entries keyed by dead channels or
	// objects are skipped lazily during resolution and reclaimed on
	// teardown.
	refStore     map[ChannelObject]RefsMap
	incomingRefs map[schema.Ref]map[ChannelObject]struct{}

	rpcQueue     map[ChannelObject][]*pendingRPC
	incomingRPCs map[schema.Ref][]*pendingRPC

	resolvedQueue []resolvedObject
	resolving     bool

	crit criticalBatcher

	pendingActorRequests map[string]*Channel
	pendingReliableRPCs  map[string]*reliableRPC
	entityQueryDelegates map[string]func(*protocol.EntityQueryResponseMsg)
	reserveIDsDelegates  map[string]func(*protocol.ReserveEntityIDsResponseMsg)

	commandHandlers map[commandHandlerKey]CommandHandler

	onActorCreated     func(*Object)
	onAuthorityChanged func(entityID int64, componentID uint32, authoritative bool)

	reliableRPCAttempts int

	inbox chan protocol.AnyOp
	stop  chan struct{}

	stats Stats
}

func New(cfg Config) *Bridge {
	logger := cfg.Log
	if logger == nil {
		logger = log.New(os.Stdout, "[bridge] ", log.LstdFlags)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = schema.NewRegistry()
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 1024
	}
	attempts := cfg.ReliableRPCAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Bridge{
		log:                  logger,
		registry:             reg,
		sender:               cfg.Sender,
		journal:              cfg.Journal,
		index:                cfg.Index,
		objects:              NewObjectMap(),
		channels:             map[int64]*Channel{},
		levels:               newLevelManager(),
		entityMeta:           map[int64]*protocol.EntityAddedMsg{},
		refStore:             map[ChannelObject]RefsMap{},
		incomingRefs:         map[schema.Ref]map[ChannelObject]struct{}{},
		rpcQueue:             map[ChannelObject][]*pendingRPC{},
		incomingRPCs:         map[schema.Ref][]*pendingRPC{},
		pendingActorRequests: map[string]*Channel{},
		pendingReliableRPCs:  map[string]*reliableRPC{},
		entityQueryDelegates: map[string]func(*protocol.EntityQueryResponseMsg){},
		reserveIDsDelegates:  map[string]func(*protocol.ReserveEntityIDsResponseMsg){},
		commandHandlers:      map[commandHandlerKey]CommandHandler{},
		reliableRPCAttempts:  attempts,
		inbox:                make(chan protocol.AnyOp, inboxSize),
		stop:                 make(chan struct{}),
	}
}

// SetSender installs the outbound transport. Call before Run; the dial
// sequence needs the bridge inbox, so the two are constructed in turn.
func (b *Bridge) SetSender(s Sender) { b.sender = s }

// Inbox is the hand-off point for worker goroutines (transport readers,
// deferred callbacks); everything sent here is dispatched on the bridge's
// own goroutine.
func (b *Bridge) Inbox() chan<- protocol.AnyOp { return b.inbox }

// Run drives the dispatch loop until ctx is cancelled or Stop is called.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stop:
			return nil
		case op := <-b.inbox:
			b.Dispatch(op)
		}
	}
}

func (b *Bridge) Stop() { close(b.stop) }

func (b *Bridge) Stats() Stats          { return b.stats }
func (b *Bridge) Objects() *ObjectMap   { return b.objects }
func (b *Bridge) Registry() *schema.Registry { return b.registry }

// Channel returns the live channel for an entity, or nil.
func (b *Bridge) Channel(entityID int64) *Channel {
	ch := b.channels[entityID]
	if ch == nil || ch.closed {
		return nil
	}
	return ch
}

// OnActorCreated installs a hook fired after each entity's local object is
// fully constructed and its initial components applied.
func (b *Bridge) OnActorCreated(fn func(*Object)) { b.onActorCreated = fn }

// OnAuthorityChanged installs a hook fired when component authority flips.
func (b *Bridge) OnAuthorityChanged(fn func(entityID int64, componentID uint32, authoritative bool)) {
	b.onAuthorityChanged = fn
}

// PendingRefs reports how many distinct references the index is waiting on.
func (b *Bridge) PendingRefs() int {
	n := len(b.incomingRefs)
	for ref := range b.incomingRPCs {
		if _, ok := b.incomingRefs[ref]; !ok {
			n++
		}
	}
	return n
}
