package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/omniagentpay/payguard/internal/domain"
)

// StreamURL returns the websocket URL of the event stream, narrowed to one
// intent when intentID is set.
func (c *Client) StreamURL(intentID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/events/stream")
	if err != nil {
		return "", errors.Wrapf(err, "invalid server URL %q", c.baseURL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Newf("unsupported server URL scheme %q", u.Scheme)
	}
	if intentID != "" {
		u.RawQuery = url.Values{"intent_id": {intentID}}.Encode()
	}
	return u.String(), nil
}

// WatchEvents streams events to fn until fn returns false, ctx is done or
// the server closes the stream. A normal close is not an error.
func (c *Client) WatchEvents(ctx context.Context, intentID string, fn func(domain.Event) bool) error {
	addr, err := c.StreamURL(intentID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", addr)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "failed to read event")
		}
		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return errors.Wrapf(err, "failed to decode event %q", strings.TrimSpace(string(data)))
		}
		if !fn(ev) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
