package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/trellisml/trellis/internal/debug"
	"github.com/trellisml/trellis/internal/lockfile"
	"github.com/trellisml/trellis/internal/status"
)

// ClientVersion is the version the client reports in each request. It is set
// by the CLI at startup so the daemon can flag mismatched clients.
var ClientVersion = "0.0.0"

// Client is a connection to a running trellis daemon. It is not safe for
// concurrent use; a CLI invocation issues requests sequentially.
type Client struct {
	conn       net.Conn
	socketPath string
	timeout    time.Duration
	actor      string
}

// TryConnect attempts to connect to the daemon socket. It returns (nil, nil)
// when no daemon is running, so callers can fall back to direct storage
// access.
func TryConnect(socketPath string) (*Client, error) {
	return TryConnectWithTimeout(socketPath, 200*time.Millisecond)
}

// TryConnectWithTimeout is TryConnect with an explicit dial timeout.
func TryConnectWithTimeout(socketPath string, dialTimeout time.Duration) (*Client, error) {
	// Fast probe: when the socket is missing and nothing holds the daemon
	// lock there is no daemon, skip the dial.
	if !endpointExists(socketPath) {
		running, _ := lockfile.TryDaemonLock(filepath.Dir(socketPath))
		if !running {
			debug.Logf("no daemon: socket missing and lock free")
			return nil, nil
		}
		// Lock held but socket missing: the daemon may be starting up.
		// Re-check once before giving up.
		if !endpointExists(socketPath) {
			debug.Logf("daemon lock held but socket missing: %s", socketPath)
			return nil, nil
		}
	}

	if dialTimeout <= 0 {
		dialTimeout = 200 * time.Millisecond
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		debug.Logf("failed to dial daemon socket: %v", err)
		// Stale socket from a crashed daemon: clean it up so the next
		// daemon start does not trip over it.
		if running, _ := lockfile.TryDaemonLock(filepath.Dir(socketPath)); !running {
			_ = os.Remove(socketPath)
		}
		return nil, nil
	}

	client := &Client{
		conn:       conn,
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}

	if err := client.Ping(); err != nil {
		debug.Logf("daemon ping failed: %v", err)
		_ = conn.Close()
		return nil, nil
	}
	return client, nil
}

// Dial connects to the daemon socket, failing with ErrDaemonUnavailable when
// no healthy daemon answers. Use it where a daemon is required rather than
// optional.
func Dial(socketPath string) (*Client, error) {
	client, err := TryConnect(socketPath)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w at %s", ErrDaemonUnavailable, socketPath)
	}
	return client, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SetActor records who is performing operations, for the daemon's traces.
func (c *Client) SetActor(actor string) {
	c.actor = actor
}

// Execute sends one operation and reads its response. A response carrying a
// failure is returned together with its coded error.
func (c *Client) Execute(operation string, args any) (*Response, error) {
	var argsJSON json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, status.Internalf("marshal %s args: %v", operation, err)
		}
		argsJSON = data
	}

	req := Request{
		Operation:     operation,
		Args:          argsJSON,
		Actor:         c.actor,
		ClientVersion: ClientVersion,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, status.Internalf("marshal request: %v", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush request: %w", err)
	}

	reader := bufio.NewReader(c.conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.Success {
		return &resp, resp.Err()
	}
	return &resp, nil
}

// Call executes operation with args and decodes the response data into Resp.
// It carries the daemon's coded errors through unchanged, so callers branch
// on status.CodeOf exactly as they would against a local store.
func Call[Resp any](c *Client, operation string, args any) (*Resp, error) {
	resp, err := c.Execute(operation, args)
	if err != nil {
		return nil, err
	}
	result := new(Resp)
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return nil, status.Internalf("decode %s response: %v", operation, err)
		}
	}
	return result, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	_, err := c.Execute(OpPing, nil)
	return err
}

// Status fetches the daemon's status report.
func (c *Client) Status() (*StatusResult, error) {
	return Call[StatusResult](c, OpStatus, nil)
}

// Shutdown asks the daemon to stop. The daemon finishes this request before
// exiting.
func (c *Client) Shutdown() error {
	_, err := c.Execute(OpShutdown, nil)
	return err
}
