package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"simbridge.dev/internal/protocol"
)

// Client is the runtime connection: it performs the HELLO/WELCOME handshake,
// pumps received ops into the bridge inbox, and implements the bridge's
// Sender on the write side. Reads and writes run on their own goroutines;
// the bridge only ever sees ops through its inbox channel.
type Client struct {
	conn *websocket.Conn
	log  *log.Logger

	workerID string
	inbox    chan<- protocol.AnyOp
	out      chan []byte
}

const (
	writeDeadline = 5 * time.Second
	readDeadline  = 60 * time.Second
	outboxSize    = 256
)

// Dial connects, handshakes, and returns a client ready to Run.
func Dial(ctx context.Context, url, workerType string, inbox chan<- protocol.AnyOp, logger *log.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		log:      logger,
		workerID: uuid.NewString(),
		inbox:    inbox,
		out:      make(chan []byte, outboxSize),
	}
	if err := c.handshake(workerType); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) WorkerID() string { return c.workerID }

func (c *Client) handshake(workerType string) error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		WorkerID:        c.workerID,
		WorkerType:      workerType,
	}
	if err := c.writeJSON(hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(writeDeadline))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeWelcome {
		return fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.ProtocolVersion != protocol.Version {
		return fmt.Errorf("runtime speaks protocol %q, want %q", welcome.ProtocolVersion, protocol.Version)
	}
	if welcome.WorkerID != "" {
		c.workerID = welcome.WorkerID
	}
	return nil
}

// Run pumps the connection until ctx is cancelled or the peer goes away.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close()

	// Writer goroutine.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-c.out:
				if !ok {
					return
				}
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		op, err := protocol.DecodeOp(msg)
		if err != nil {
			c.log.Printf("bad op dropped: %v", err)
			continue
		}
		select {
		case c.inbox <- op:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Printf("marshal outbound: %v", err)
		return
	}
	select {
	case c.out <- b:
	default:
		// Outbox full: the connection is stalled; drop rather than block
		// the dispatch thread.
		c.log.Printf("outbox full, message dropped")
	}
}

// Sender implementation (called from the dispatch goroutine).

func (c *Client) SendCreateEntityRequest(entityID int64, components []protocol.ComponentSnapshot) string {
	reqID := uuid.NewString()
	c.send(protocol.CreateEntityRequestMsg{
		Type:            protocol.ReqCreateEntity,
		ProtocolVersion: protocol.Version,
		RequestID:       reqID,
		EntityID:        entityID,
		Components:      components,
	})
	return reqID
}

func (c *Client) SendReserveEntityIDsRequest(count int) string {
	reqID := uuid.NewString()
	c.send(protocol.ReserveEntityIDsRequestMsg{
		Type:            protocol.ReqReserveEntityIDs,
		ProtocolVersion: protocol.Version,
		RequestID:       reqID,
		Count:           count,
	})
	return reqID
}

func (c *Client) SendEntityQueryRequest(componentID uint32) string {
	reqID := uuid.NewString()
	c.send(protocol.EntityQueryRequestMsg{
		Type:            protocol.ReqEntityQuery,
		ProtocolVersion: protocol.Version,
		RequestID:       reqID,
		ComponentID:     componentID,
	})
	return reqID
}

func (c *Client) SendCommandRequest(entityID int64, componentID, commandIndex uint32, payload []byte) string {
	reqID := uuid.NewString()
	c.send(protocol.CommandRequestMsg{
		Type:            protocol.ReqCommandRequest,
		ProtocolVersion: protocol.Version,
		RequestID:       reqID,
		EntityID:        entityID,
		ComponentID:     componentID,
		CommandIndex:    commandIndex,
		Payload:         payload,
	})
	return reqID
}

func (c *Client) SendCommandResponse(requestID, statusCode string, payload []byte) {
	c.send(protocol.CommandResponseMsg{
		Type:            protocol.ReqCommandResponse,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		StatusCode:      statusCode,
		Payload:         payload,
	})
}

func (c *Client) SendComponentUpdate(entityID int64, componentID uint32, data []byte) {
	c.send(protocol.ComponentUpdatedMsg{
		Type:            protocol.ReqComponentUpdate,
		ProtocolVersion: protocol.Version,
		EntityID:        entityID,
		ComponentID:     componentID,
		Data:            data,
	})
}
