package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Postbox.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests daemon shutdown.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Postbox.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit captures a new submission in the local queue.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Postbox.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncNow asks the daemon for an immediate drain attempt.
func (c *Client) SyncNow() (*SyncNowResponse, error) {
	var resp SyncNowResponse
	if err := c.client.Call("Postbox.SyncNow", SyncNowRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns records optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Postbox.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueShow returns details for a single record.
func (c *Client) QueueShow(id string) (*QueueShowResponse, error) {
	var resp QueueShowResponse
	req := QueueShowRequest{ID: id}
	if err := c.client.Call("Postbox.QueueShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes records, optionally restricted by status.
func (c *Client) QueueClear(statuses []string) (*QueueClearResponse, error) {
	var resp QueueClearResponse
	req := QueueClearRequest{Statuses: statuses}
	if err := c.client.Call("Postbox.QueueClear", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueuePrune removes delivered records older than the given age in days.
func (c *Client) QueuePrune(olderThanDays int) (*QueuePruneResponse, error) {
	var resp QueuePruneResponse
	req := QueuePruneRequest{OlderThanDays: olderThanDays}
	if err := c.client.Call("Postbox.QueuePrune", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryFlagged resets flagged records back to queued.
func (c *Client) RetryFlagged(ids []string) (*RetryFlaggedResponse, error) {
	var resp RetryFlaggedResponse
	req := RetryFlaggedRequest{IDs: ids}
	if err := c.client.Call("Postbox.RetryFlagged", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Postbox.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Postbox.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
