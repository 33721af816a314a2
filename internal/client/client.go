// Package client talks to a running freightd: HTTP for conversation
// actions, a websocket for the live unread count and the control socket for
// health.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/chat"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/lock"
	"github.com/matheus3301/freightdesk/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("freightd: %d %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	// BaseURL of the HTTP API, e.g. http://127.0.0.1:8787.
	BaseURL string
	// SocketPath of the control socket; empty disables Health.
	SocketPath string
	Timeout    time.Duration
}

// Client wraps the HTTP and gRPC connections to the daemon.
type Client struct {
	base   string
	http   *http.Client
	jar    http.CookieJar
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

var _ chat.Backend = (*Client)(nil)

// New prepares a client. No request is made until a method is called.
func New(opts Options) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	c := &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{Jar: jar, Timeout: opts.Timeout},
		jar:  jar,
	}
	if opts.SocketPath != "" {
		conn, err := grpc.NewClient(
			"unix://"+opts.SocketPath,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, fmt.Errorf("dial daemon: %w", err)
		}
		c.conn = conn
		c.health = healthpb.NewHealthClient(conn)
	}
	return c, nil
}

// DaemonURL returns the API base URL of the daemon running instanceName, as
// advertised in its lock file, or fallbackAddr when no daemon holds it.
func DaemonURL(instanceName, fallbackAddr string) string {
	addr := fallbackAddr
	if info, err := lock.Read(instance.Dir(instanceName)); err == nil && info.HTTPAddr != "" {
		addr = info.HTTPAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// Close closes the control socket connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr apiv1.Error
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health asks the control socket whether the daemon is READY.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if c.health == nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("no control socket configured")
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "freightdesk"})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// DaemonState returns the daemon status reported by /health.
func (c *Client) DaemonState(ctx context.Context) (string, error) {
	var h apiv1.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return "", err
	}
	return h.State, nil
}

// Login establishes the session cookie for userID.
func (c *Client) Login(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/session", apiv1.LoginRequest{UserID: userID}, nil)
}

// Logout clears the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

// WhoAmI returns the user bound to the session.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var s apiv1.Session
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &s); err != nil {
		return "", err
	}
	return s.UserID, nil
}

// UpsertProfile creates or updates the caller's profile.
func (c *Client) UpsertProfile(ctx context.Context, p apiv1.Profile) (*apiv1.Profile, error) {
	var out apiv1.Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostShipment creates a shipment owned by the caller.
func (c *Client) PostShipment(ctx context.Context, origin, destination string) (*apiv1.Shipment, error) {
	var out apiv1.Shipment
	req := apiv1.CreateShipmentRequest{OriginCity: origin, DestinationCity: destination}
	if err := c.do(ctx, http.MethodPost, "/api/shipments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignTransporter opens a shipment's conversation.
func (c *Client) AssignTransporter(ctx context.Context, shipmentID, transporterID string) error {
	req := apiv1.AssignTransporterRequest{TransporterID: transporterID}
	return c.do(ctx, http.MethodPut, "/api/shipments/"+shipmentID+"/transporter", req, nil)
}

// Conversations lists the caller's conversations.
func (c *Client) Conversations(ctx context.Context) ([]apiv1.Conversation, error) {
	var out []apiv1.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessages returns a conversation's history, oldest first.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	var out []apiv1.Message
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]store.Message, 0, len(out))
	for _, m := range out {
		msgs = append(msgs, m.Store())
	}
	return msgs, nil
}

// SendMessage sends text to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*store.Message, error) {
	var out apiv1.Message
	req := apiv1.SendMessageRequest{Content: text}
	if err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", req, &out); err != nil {
		return nil, err
	}
	m := out.Store()
	return &m, nil
}

// MarkMessagesAsRead marks a conversation read for the caller.
func (c *Client) MarkMessagesAsRead(ctx context.Context, conversationID string) (int, error) {
	var out apiv1.MarkReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/read", nil, &out); err != nil {
		return 0, err
	}
	return out.Marked, nil
}

// Shipment returns the chat header of a conversation.
func (c *Client) Shipment(ctx context.Context, conversationID string) (*apiv1.ChatShipment, error) {
	var out apiv1.ChatShipment
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/shipment", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unread returns the caller's unread count.
func (c *Client) Unread(ctx context.Context) (int, error) {
	var out apiv1.UnreadResponse
	if err := c.do(ctx, http.MethodGet, "/api/unread", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
