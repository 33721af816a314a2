package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/freightdesk/internal/api/apiv1"
)

// WatchUnread streams the caller's unread count into fn until ctx ends or
// the connection drops. The first call carries the current count.
func (c *Client) WatchUnread(ctx context.Context, fn func(count int)) error {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/ws/unread"
	dialer := websocket.Dialer{Jar: c.jar, HandshakeTimeout: c.http.Timeout}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return &StatusError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("dial unread stream: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var f apiv1.UnreadFrame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if f.Type == apiv1.FrameUnread {
			fn(f.Count)
		}
	}
}
