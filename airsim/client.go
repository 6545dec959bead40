// Package airsim is a minimal AirSim RPC client: enough of the msgpack-rpc
// API to pull camera images from a running simulator.
package airsim

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultAddress is where AirSim listens for RPC clients.
const DefaultAddress = "127.0.0.1:41451"

// ImageType selects what a simulator camera renders.
type ImageType int

const (
	ImageTypeScene ImageType = iota
	ImageTypeDepthPlanar
	ImageTypeDepthPerspective
	ImageTypeDepthVis
	ImageTypeDisparityNormalized
	ImageTypeSegmentation
	ImageTypeSurfaceNormals
	ImageTypeInfrared
	ImageTypeOpticalFlow
	ImageTypeOpticalFlowVis
)

const (
	msgRequest  = 0
	msgResponse = 1
)

// RPCError is an error reported by the server for a call.
type RPCError struct {
	Method string
	Value  interface{}
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("airsim: %s failed: %v", e.Method, e.Value)
}

type request struct {
	_msgpack struct{} `msgpack:",as_array"`
	Type     int
	ID       uint32
	Method   string
	Params   []interface{}
}

// Client is a synchronous msgpack-rpc connection to an AirSim server.
type Client struct {
	// Vehicle is sent with vehicle-scoped calls. Empty selects the default vehicle.
	Vehicle string
	// Timeout bounds each call when the context has no deadline.
	Timeout time.Duration

	mu    sync.Mutex
	conn  net.Conn
	w     *bufio.Writer
	enc   *msgpack.Encoder
	dec   *msgpack.Decoder
	msgID uint32
}

// Dial connects to an AirSim server.
//
// Arguments:
//   - ctx: Bounds the connection attempt.
//   - address: host:port of the RPC server, DefaultAddress when empty.
//
// Returns:
//   - *Client: The connected client.
//   - error: An error if the server is unreachable.
func Dial(ctx context.Context, address string) (*Client, error) {
	if address == "" {
		address = DefaultAddress
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("airsim: cannot connect to %v: %w", address, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	w := bufio.NewWriter(conn)
	return &Client{
		Timeout: 10 * time.Second,
		conn:    conn,
		w:       w,
		enc:     msgpack.NewEncoder(w),
		dec:     msgpack.NewDecoder(bufio.NewReader(conn)),
	}
}

// Call invokes method with params and decodes the reply into result, which
// may be nil to discard it.
func (c *Client) Call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	if conn == nil {
		return fmt.Errorf("airsim: client is closed")
	}
	deadline, ok := ctx.Deadline()
	if !ok && c.Timeout > 0 {
		deadline = time.Now().Add(c.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	// Unblock a pending read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	c.msgID++
	id := c.msgID
	if params == nil {
		params = []interface{}{}
	}
	if err := c.enc.Encode(&request{Type: msgRequest, ID: id, Method: method, Params: params}); err != nil {
		return c.fail(ctx, method, err)
	}
	if err := c.w.Flush(); err != nil {
		return c.fail(ctx, method, err)
	}

	for {
		gotID, rpcErr, err := c.readHeader()
		if err != nil {
			return c.fail(ctx, method, err)
		}
		if gotID != id {
			// A late reply to an abandoned call.
			if err := c.dec.Skip(); err != nil {
				return c.fail(ctx, method, err)
			}
			continue
		}
		if rpcErr != nil {
			if err := c.dec.Skip(); err != nil {
				return c.fail(ctx, method, err)
			}
			return &RPCError{Method: method, Value: rpcErr}
		}
		if result == nil {
			err = c.dec.Skip()
		} else {
			err = c.dec.Decode(result)
		}
		if err != nil {
			return c.fail(ctx, method, err)
		}
		return nil
	}
}

// readHeader consumes [1, msgid, error] of a response and leaves the
// decoder positioned on the result.
func (c *Client) readHeader() (uint32, interface{}, error) {
	n, err := c.dec.DecodeArrayLen()
	if err != nil {
		return 0, nil, err
	}
	if n != 4 {
		return 0, nil, fmt.Errorf("malformed response with %d elements", n)
	}
	typ, err := c.dec.DecodeInt()
	if err != nil {
		return 0, nil, err
	}
	if typ != msgResponse {
		return 0, nil, fmt.Errorf("unexpected message type %d", typ)
	}
	id, err := c.dec.DecodeUint32()
	if err != nil {
		return 0, nil, err
	}
	rpcErr, err := c.dec.DecodeInterface()
	if err != nil {
		return 0, nil, err
	}
	return id, rpcErr, nil
}

func (c *Client) fail(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	} else if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		err = context.DeadlineExceeded
	}
	return fmt.Errorf("airsim: %s: %w", method, err)
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	var ok bool
	if err := c.Call(ctx, "ping", &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("airsim: ping was refused")
	}
	return nil
}

// SimGetImage returns one compressed (PNG) image from a camera, or nil when
// the camera produced no image.
//
// Arguments:
//   - ctx: Bounds the call.
//   - camera: Camera name or index, e.g. "0" or "front_center".
//   - imageType: What the camera should render.
//
// Returns:
//   - []byte: The encoded image, nil if there is none.
//   - error: An error if the call failed.
func (c *Client) SimGetImage(ctx context.Context, camera string, imageType ImageType) ([]byte, error) {
	var raw interface{}
	if err := c.Call(ctx, "simGetImage", &raw, camera, int(imageType), c.Vehicle, false); err != nil {
		return nil, err
	}
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil, fmt.Errorf("airsim: simGetImage returned %T", raw)
	}
	if len(data) == 0 || (len(data) == 1 && data[0] == 0) {
		return nil, nil
	}
	return data, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
