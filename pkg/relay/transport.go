package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// DefaultInactivityTimeout is how long a session may go without a
// client message before it is torn down, per spec §5.
const DefaultInactivityTimeout = 5 * time.Minute

// OnMessage is invoked for each MCP frame received on the session's
// toserver channel.
type OnMessage func(msg json.RawMessage, extra *Extra)

// ServerRedisTransport is the server-side half of a single MCP
// session's transport, materialized over Redis pub/sub so any gateway
// replica can own the in-process MCP server instance for this session.
type ServerRedisTransport struct {
	client  redis.UniversalClient
	sid     string
	timeout time.Duration

	onMessage OnMessage
	onClose   func()

	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	timer     *time.Timer
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewServerRedisTransport constructs a transport for session sid. If
// timeout is zero, DefaultInactivityTimeout applies.
func NewServerRedisTransport(client redis.UniversalClient, sid string, onMessage OnMessage, onClose func(), timeout time.Duration) *ServerRedisTransport {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &ServerRedisTransport{
		client:    client,
		sid:       sid,
		timeout:   timeout,
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// Start subscribes to this session's toserver and control channels and
// arms the inactivity timer. The read loop runs in a background
// goroutine until Close is called or the control channel carries
// SHUTDOWN.
func (t *ServerRedisTransport) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.pubsub = t.client.Subscribe(loopCtx, toServerChannel(t.sid), controlChannel(t.sid))
	if _, err := t.pubsub.Receive(loopCtx); err != nil {
		cancel()
		return err
	}

	t.resetTimer()
	go t.readLoop(loopCtx)
	return nil
}

func (t *ServerRedisTransport) readLoop(ctx context.Context) {
	ch := t.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleRaw(msg.Payload)
		}
	}
}

func (t *ServerRedisTransport) handleRaw(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Warnw("relay: dropped malformed envelope", "sid", t.sid, "error", err)
		return
	}

	t.resetTimer()

	switch env.Type {
	case envelopeTypeControl:
		if env.Action == shutdownAction {
			t.Close()
		}
	case envelopeTypeMCP:
		if t.onMessage != nil {
			t.onMessage(env.Message, env.Extra)
		}
	}
}

func (t *ServerRedisTransport) resetTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, t.onInactive)
}

func (t *ServerRedisTransport) onInactive() {
	logger.Infow("relay: session inactivity timeout, publishing shutdown", "sid", t.sid)
	env := envelope{Type: envelopeTypeControl, Action: shutdownAction, Timestamp: 0}
	b, err := json.Marshal(env)
	if err != nil {
		logger.Errorw("relay: failed to marshal shutdown envelope", "sid", t.sid, "error", err)
		return
	}
	if err := t.client.Publish(context.Background(), controlChannel(t.sid), b).Err(); err != nil {
		logger.Errorw("relay: failed to publish shutdown", "sid", t.sid, "error", err)
	}
}

// Send publishes msg to the appropriate client-facing channel: the
// per-request response channel if relatedRequestID is non-empty,
// otherwise the long-lived server-initiated stream channel.
func (t *ServerRedisTransport) Send(ctx context.Context, msg json.RawMessage, relatedRequestID string) error {
	env := envelope{Type: envelopeTypeMCP, Message: msg}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	channel := toClientStreamChannel(t.sid)
	if relatedRequestID != "" {
		channel = toClientRequestChannel(t.sid, relatedRequestID)
	}
	return t.client.Publish(ctx, channel, b).Err()
}

// Close cancels the inactivity timer, unsubscribes from both channels,
// and invokes onClose exactly once.
func (t *ServerRedisTransport) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()

		if t.cancel != nil {
			t.cancel()
		}
		if t.pubsub != nil {
			_ = t.pubsub.Close()
		}
		if t.onClose != nil {
			t.onClose()
		}
	})
}
