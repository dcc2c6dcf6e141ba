package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a minimal IPC client used by the status and console
// subcommands; the graphical front-ends speak the same protocol.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// Dial connects to a running daemon.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", socketPath, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	return &Client{conn: conn, scanner: scanner}, nil
}

// Do sends one request and returns the raw response line.
func (c *Client) Do(req Request) (json.RawMessage, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.DoRaw(data)
}

// DoRaw sends a pre-encoded request line and reads one response line.
func (c *Client) DoRaw(line []byte) (json.RawMessage, error) {
	if err := c.conn.SetDeadline(time.Now().Add(messageTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}
		return nil, fmt.Errorf("daemon closed the connection")
	}
	return json.RawMessage(append([]byte(nil), c.scanner.Bytes()...)), nil
}

// GetState fetches and decodes the daemon state.
func (c *Client) GetState() (*StateResponse, error) {
	raw, err := c.Do(Request{Type: ReqGetState})
	if err != nil {
		return nil, err
	}
	var resp StateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
