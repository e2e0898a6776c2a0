package bridge

import (
	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// CommandHandler executes one incoming command against its target object.
// A non-nil error is reported to the caller as E_APPLICATION.
type CommandHandler func(target *Object, args schema.Value) error

// pendingRPC is one buffered incoming command whose arguments reference
// objects that do not exist locally yet.
type pendingRPC struct {
	unresolved map[schema.Ref]struct{}

	channel *Channel
	target  Handle

	componentID  uint32
	commandIndex uint32
	requestID    string
	payload      []byte
	countBits    int64

	done bool
}

// queueIncomingRPC parks the call in the per-target queue (arrival order) and
// registers it against every ref it waits on.
func (b *Bridge) queueIncomingRPC(rpc *pendingRPC) {
	co := ChannelObject{Channel: rpc.channel, Object: rpc.target}
	b.rpcQueue[co] = append(b.rpcQueue[co], rpc)
	for r := range rpc.unresolved {
		b.incomingRPCs[r] = append(b.incomingRPCs[r], rpc)
	}
	b.stats.RPCsQueued++
}

func (b *Bridge) removeQueuedRPC(rpc *pendingRPC) {
	co := ChannelObject{Channel: rpc.channel, Object: rpc.target}
	list := b.rpcQueue[co]
	for i, p := range list {
		if p == rpc {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.rpcQueue, co)
	} else {
		b.rpcQueue[co] = list
	}
}

// invokeRPC decodes the (now fully resolvable) payload and runs the handler,
// then answers the runtime.
func (b *Bridge) invokeRPC(rpc *pendingRPC) {
	def, ok := b.registry.Command(rpc.componentID, rpc.commandIndex)
	if !ok {
		b.respondCommand(rpc.requestID, protocol.ErrBadRequest, nil)
		return
	}
	target := b.objects.Get(rpc.target)
	if target == nil {
		b.respondCommand(rpc.requestID, protocol.ErrNotFound, nil)
		return
	}
	r := schema.NewBitReader(rpc.payload)
	args, err := schema.DecodeValue(r, &def.Args)
	if err != nil {
		b.log.Printf("command %s: payload decode failed: %v", def.Name, err)
		b.respondCommand(rpc.requestID, protocol.ErrBadRequest, nil)
		return
	}

	handler := b.commandHandlers[commandHandlerKey{rpc.componentID, rpc.commandIndex}]
	if handler == nil {
		b.log.Printf("command %s: no handler registered", def.Name)
		b.respondCommand(rpc.requestID, protocol.ErrApplicationError, nil)
		return
	}
	if err := handler(target, args); err != nil {
		b.log.Printf("command %s: handler failed: %v", def.Name, err)
		b.respondCommand(rpc.requestID, protocol.ErrApplicationError, nil)
		return
	}
	b.stats.RPCsInvoked++
	b.respondCommand(rpc.requestID, protocol.StatusOK, nil)
}

func (b *Bridge) respondCommand(requestID, code string, payload []byte) {
	if requestID == "" || b.sender == nil {
		return
	}
	b.sender.SendCommandResponse(requestID, code, payload)
}

type commandHandlerKey struct {
	componentID  uint32
	commandIndex uint32
}

// RegisterCommandHandler installs the application-side executor for one
// command. Commands without a handler fail with E_APPLICATION.
func (b *Bridge) RegisterCommandHandler(componentID, commandIndex uint32, fn CommandHandler) {
	b.commandHandlers[commandHandlerKey{componentID, commandIndex}] = fn
}
