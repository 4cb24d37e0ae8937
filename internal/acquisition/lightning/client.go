// Package lightning maintains the persistent connection to the lightning
// detection network feed. The feed speaks a fixed-size binary frame
// protocol over TCP: the client authenticates with a partner handshake,
// then reads 56-byte frames until the connection drops, reconnecting
// forever. Staying connected is the availability contract for this feed.
package lightning

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
)

const (
	// FrameSize is the fixed length of every frame on the feed
	FrameSize = 56

	// offset 1 carries the frame type; '9' marks a keep-alive
	keepAliveMarker = '9'

	readIdleTimeout  = 60 * time.Second
	innerRetryDelay  = 3 * time.Second
	outerRetryDelay  = 15 * time.Second
	handshakeTimeout = 10 * time.Second
)

// FrameHandler receives one in-box data frame for storage
type FrameHandler func(ctx context.Context, frame []byte) error

// Client is the reconnecting feed consumer
type Client struct {
	cfg     *config.LightningData
	handler FrameHandler
	logger  *zap.SugaredLogger

	// dial is swappable for tests
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewClient(cfg *config.LightningData, handler FrameHandler, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: handshakeTimeout, KeepAlive: 15 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Run connects, authenticates and consumes frames until ctx is cancelled.
// A failure inside an established session backs off 3 seconds; a failed
// connect backs off 15.
func (c *Client) Run(ctx context.Context) {
	addr := net.JoinHostPort(c.cfg.Hostname, c.cfg.Port)
	c.logger.Infow("starting lightning feed client", "server", addr)

	for {
		if err := c.session(ctx, addr); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("lightning feed client shutting down")
				return
			}
			delay := innerRetryDelay
			if isConnectError(err) {
				delay = outerRetryDelay
			}
			c.logger.Errorw("lightning feed session ended", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

type connectError struct{ err error }

func (e *connectError) Error() string { return e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

func isConnectError(err error) bool {
	_, ok := err.(*connectError)
	return ok
}

func (c *Client) session(ctx context.Context, addr string) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return &connectError{fmt.Errorf("connecting to lightning server %s: %w", addr, err)}
	}
	defer conn.Close()

	// drop the socket promptly on shutdown so the blocking read returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	c.logger.Info("lightning feed authenticated")

	return c.consume(ctx, conn)
}

func (c *Client) authenticate(conn net.Conn) error {
	handshake := fmt.Sprintf(`{"p":"%s","v":3,"f":2,"t":1}`, c.cfg.PartnerID)
	conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if _, err := conn.Write([]byte(handshake)); err != nil {
		return fmt.Errorf("sending lightning handshake: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})
	return nil
}

// consume reads fixed-size frames until an error or a clean close. The
// feed sends keep-alives well inside the idle window, so a 60s silent
// socket means the session is dead.
func (c *Client) consume(ctx context.Context, conn net.Conn) error {
	frame := make([]byte, FrameSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		if _, err := io.ReadFull(conn, frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading lightning frame: %w", err)
		}

		if frame[1] == keepAliveMarker {
			c.logger.Debug("lightning keep-alive")
			continue
		}

		lat, lon := DecodeCoordinates(frame)
		if !c.inBounds(lat, lon) {
			continue
		}

		stored := make([]byte, FrameSize)
		copy(stored, frame)
		if err := c.handler(ctx, stored); err != nil {
			c.logger.Errorw("failed to store lightning frame", "latitude", lat, "longitude", lon, "error", err)
		}
	}
}

func (c *Client) inBounds(lat, lon float64) bool {
	return lat >= c.cfg.MinLatitude && lat <= c.cfg.MaxLatitude &&
		lon >= c.cfg.MinLongitude && lon <= c.cfg.MaxLongitude
}

// DecodeCoordinates extracts the strike position from a data frame:
// signed big-endian microdegree-scale integers at offsets 10 and 14.
func DecodeCoordinates(frame []byte) (lat, lon float64) {
	lat = float64(int32(binary.BigEndian.Uint32(frame[10:14]))) / 1e7
	lon = float64(int32(binary.BigEndian.Uint32(frame[14:18]))) / 1e7
	return lat, lon
}
