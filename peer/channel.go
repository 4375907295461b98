package peer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var logger = log.New(os.Stderr, "[peer] ", log.LstdFlags)

// ErrPeerGone is the error every pending reply completes with once the
// transport disconnects (spec §4.6 lifecycle).
var ErrPeerGone = errors.New("peer: transport disconnected")

// UnregisterFunc removes this channel's peer from the service registry;
// called exactly once, on the channel's first disconnect.
type UnregisterFunc func()

type replyResult struct {
	msg Message
	err error
}

type outboundItem struct {
	msg   Message
	reply chan replyResult
}

// Channel holds one open back-end peer connection. Outbound messages are
// queued and drained by a writer goroutine; inbound messages are
// dispatched by a reader goroutine that matches reply_to against a
// pending-replies table (spec §4.6/C6). Grounded on the teacher's
// ServerBridge one-shot response-channel idiom, generalized from a single
// request type to the full message union.
type Channel struct {
	id   string
	conn *websocket.Conn

	nameMu      sync.Mutex
	displayName string

	queueMu sync.Mutex
	queue   []outboundItem
	notify  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan replyResult

	closeOnce sync.Once
	closed    chan struct{}

	unregister UnregisterFunc
}

// NewChannel wraps conn and starts its reader/writer goroutines. id is
// the receiver-id this channel was registered under; displayName starts
// out equal to id until a connect message updates it (spec §3's Peer
// data model).
func NewChannel(id string, conn *websocket.Conn, unregister UnregisterFunc) *Channel {
	c := &Channel{
		id:          id,
		conn:        conn,
		displayName: id,
		notify:      make(chan struct{}, 1),
		pending:     make(map[string]chan replyResult),
		closed:      make(chan struct{}),
		unregister:  unregister,
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// ID returns the receiver-id this channel was registered under.
func (c *Channel) ID() string { return c.id }

// DisplayName returns the peer's current display name.
func (c *Channel) DisplayName() string {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	return c.displayName
}

func (c *Channel) setDisplayName(name string) {
	c.nameMu.Lock()
	c.displayName = name
	c.nameMu.Unlock()
}

func (c *Channel) enqueue(msg Message, reply chan replyResult) {
	c.queueMu.Lock()
	c.queue = append(c.queue, outboundItem{msg: msg, reply: reply})
	c.queueMu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) writeLoop() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.queueMu.Unlock()
			select {
			case <-c.notify:
				continue
			case <-c.closed:
				return
			}
		}
		item := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		if item.reply != nil {
			c.pendingMu.Lock()
			c.pending[item.msg.ID] = item.reply
			c.pendingMu.Unlock()
		}

		if err := c.conn.WriteJSON(item.msg); err != nil {
			logger.Printf("write to %s: %v", c.id, err)
			c.Close()
			return
		}
	}
}

func (c *Channel) readLoop() {
	defer c.Close()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg Message) {
	if msg.ReplyTo != "" {
		c.pendingMu.Lock()
		reply, ok := c.pending[msg.ReplyTo]
		if ok {
			delete(c.pending, msg.ReplyTo)
		}
		c.pendingMu.Unlock()

		if !ok {
			logger.Printf("unexpected reply_to %q (type %s) from %s, dropping", msg.ReplyTo, msg.Type, c.id)
			return
		}

		reply <- replyResult{msg: msg}
		return
	}

	switch p := msg.Payload.(type) {
	case *ConnectPayload:
		c.setDisplayName(p.DisplayName)
	default:
		logger.Printf("unsolicited message type %s from %s, ignoring", msg.Type, c.id)
	}
}

// Ask builds an askRequest, waits for the peer's askResponse (or ctx
// cancellation), and returns whether the transfer was accepted.
func (c *Channel) Ask(ctx context.Context, req AskRequestPayload) (bool, error) {
	msg := Message{ID: uuid.NewString(), Type: TypeAskRequest, Payload: req}

	res, err := c.roundTrip(ctx, msg)
	if err != nil {
		return false, err
	}

	payload, ok := res.Payload.(*AskResponsePayload)
	if !ok {
		return false, fmt.Errorf("peer: %s reply carried unexpected payload type %T", TypeAskResponse, res.Payload)
	}
	return payload.Accepted, nil
}

// NotifyUploaded tells the peer a file is ready at url and waits for its
// acknowledgement.
func (c *Channel) NotifyUploaded(ctx context.Context, name, url string, size int64) error {
	msg := Message{
		ID:      uuid.NewString(),
		Type:    TypeFileUploadRequest,
		Payload: FileUploadRequestPayload{Name: name, URL: url, Size: size},
	}
	_, err := c.roundTrip(ctx, msg)
	return err
}

func (c *Channel) roundTrip(ctx context.Context, msg Message) (Message, error) {
	reply := make(chan replyResult, 1)
	c.enqueue(msg, reply)

	select {
	case res := <-reply:
		return res.msg, res.err
	case <-c.closed:
		// The channel closed before (or while) this request became
		// pending, so Close may never have seen it.
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
		select {
		case res := <-reply:
			return res.msg, res.err
		default:
			return Message{}, ErrPeerGone
		}
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
		return Message{}, ctx.Err()
	}
}

// Close disconnects the channel if not already closed, failing every
// pending reply with ErrPeerGone and unregistering from the registry.
// Safe to call more than once (spec §4.6's "second disconnect during
// shutdown is idempotent").
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[string]chan replyResult)
		c.pendingMu.Unlock()

		for _, reply := range pending {
			select {
			case reply <- replyResult{err: ErrPeerGone}:
			default:
			}
		}

		if c.unregister != nil {
			c.unregister()
		}
	})
}
