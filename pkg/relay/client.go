package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// ClientRelay is the HTTP-handler-facing half of the session transport:
// it publishes inbound client frames to the session's toserver channel
// and, for request frames (those carrying an id), waits for the
// matching response on a per-request channel.
type ClientRelay struct {
	client redis.UniversalClient
}

// NewClientRelay wraps an existing redis client.
func NewClientRelay(client redis.UniversalClient) *ClientRelay {
	return &ClientRelay{client: client}
}

// IsLive reports whether any server-side transport currently holds a
// subscription on the session's toserver channel.
func (c *ClientRelay) IsLive(ctx context.Context, sid string) (bool, error) {
	counts, err := c.client.PubSubNumSub(ctx, toServerChannel(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("relay: numsub: %w", err)
	}
	return counts[toServerChannel(sid)] > 0, nil
}

// Publish publishes msg to sid's toserver channel one-way, without
// waiting for or correlating any response. Used by transports (like
// legacy SSE) where every server->client frame — replies included —
// arrives on the single stream channel rather than a per-request one.
func (c *ClientRelay) Publish(ctx context.Context, sid string, msg json.RawMessage, authInfo *flow.AuthInfo) error {
	env := envelope{Type: envelopeTypeMCP, Message: msg}
	if authInfo != nil {
		env.Extra = &Extra{AuthInfo: authInfo}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: marshal envelope: %w", err)
	}
	if err := c.client.Publish(ctx, toServerChannel(sid), b).Err(); err != nil {
		return ghaerrors.NewInternalError("relay: publish to session failed", err)
	}
	return nil
}

// Forward publishes msg to sid's toserver channel. If msg is a request
// (carries a non-null id), Forward subscribes to the matching
// toclient:{sid}:{id} channel first and blocks until a response
// arrives or ctx is done, returning the raw response frame.
// Notifications (no id) are forwarded one-way and Forward returns nil.
func (c *ClientRelay) Forward(ctx context.Context, sid string, msg json.RawMessage, authInfo *flow.AuthInfo) (json.RawMessage, error) {
	requestID, isRequest := jsonrpcID(msg)

	var sub *redis.PubSub
	var responseCh <-chan *redis.Message
	if isRequest {
		sub = c.client.Subscribe(ctx, toClientRequestChannel(sid, requestID))
		if _, err := sub.Receive(ctx); err != nil {
			return nil, fmt.Errorf("relay: subscribe response channel: %w", err)
		}
		defer func() { _ = sub.Close() }()
		responseCh = sub.Channel()
	}

	env := envelope{
		Type:    envelopeTypeMCP,
		Message: msg,
	}
	if authInfo != nil {
		env.Extra = &Extra{AuthInfo: authInfo}
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("relay: marshal envelope: %w", err)
	}

	if err := c.client.Publish(ctx, toServerChannel(sid), b).Err(); err != nil {
		return nil, ghaerrors.NewInternalError("relay: publish to session failed", err)
	}

	if !isRequest {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-responseCh:
		if !ok {
			return nil, ghaerrors.NewSessionGoneError("relay: response channel closed before reply", nil)
		}
		var respEnvelope envelope
		if err := json.Unmarshal([]byte(msg.Payload), &respEnvelope); err != nil {
			return nil, fmt.Errorf("relay: unmarshal response envelope: %w", err)
		}
		return respEnvelope.Message, nil
	}
}

// SubscribeStream opens the session's server-initiated notification
// channel, used by the long-lived GET /mcp and GET /sse streams.
func (c *ClientRelay) SubscribeStream(ctx context.Context, sid string) (*redis.PubSub, error) {
	sub := c.client.Subscribe(ctx, toClientStreamChannel(sid))
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// PublishControl sends a control-plane action (currently only
// SHUTDOWN) on the session's control channel.
func (c *ClientRelay) PublishControl(ctx context.Context, sid string, action string) error {
	env := envelope{Type: envelopeTypeControl, Action: action}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, controlChannel(sid), b).Err()
}
