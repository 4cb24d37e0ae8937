package lightning

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
)

func testConfig() *config.LightningData {
	return &config.LightningData{
		Hostname:     "feed.example.org",
		Port:         "10125",
		PartnerID:    "testpartner",
		MinLatitude:  15,
		MaxLatitude:  19,
		MinLongitude: -90,
		MaxLongitude: -87,
	}
}

func dataFrame(lat, lon float64) []byte {
	frame := make([]byte, FrameSize)
	frame[1] = '1'
	binary.BigEndian.PutUint32(frame[10:14], uint32(int32(lat*1e7)))
	binary.BigEndian.PutUint32(frame[14:18], uint32(int32(lon*1e7)))
	return frame
}

func TestDecodeCoordinates(t *testing.T) {
	lat, lon := DecodeCoordinates(dataFrame(17.5123456, -88.9876543))
	assert.InDelta(t, 17.5123456, lat, 1e-6)
	assert.InDelta(t, -88.9876543, lon, 1e-6)
}

func TestDecodeCoordinatesSouthernHemisphere(t *testing.T) {
	lat, lon := DecodeCoordinates(dataFrame(-33.45, 151.2))
	assert.InDelta(t, -33.45, lat, 1e-6)
	assert.InDelta(t, 151.2, lon, 1e-6)
}

func TestInBounds(t *testing.T) {
	c := NewClient(testConfig(), nil, zap.NewNop().Sugar())

	tests := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{"inside", 17.5, -88.0, true},
		{"south edge", 15.0, -88.0, true},
		{"north edge", 19.0, -88.0, true},
		{"too far north", 30.0, -88.0, false},
		{"too far west", 17.5, -95.0, false},
		{"too far east", 17.5, -80.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.inBounds(tt.lat, tt.lon))
		})
	}
}

// TestSessionFrameFlow drives one full session over an in-memory pipe:
// handshake, a keep-alive, an in-box frame, an out-of-box frame, then a
// close. Only the in-box frame must reach the handler.
func TestSessionFrameFlow(t *testing.T) {
	client, server := net.Pipe()

	var mu sync.Mutex
	var stored [][]byte
	handler := func(ctx context.Context, frame []byte) error {
		mu.Lock()
		defer mu.Unlock()
		stored = append(stored, frame)
		return nil
	}

	c := NewClient(testConfig(), handler, zap.NewNop().Sugar())
	c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		return client, nil
	}

	serverDone := make(chan error, 1)
	go func() {
		defer server.Close()

		handshake := make([]byte, len(`{"p":"testpartner","v":3,"f":2,"t":1}`))
		if _, err := server.Read(handshake); err != nil {
			serverDone <- err
			return
		}
		assert.Equal(t, `{"p":"testpartner","v":3,"f":2,"t":1}`, string(handshake))

		keepAlive := make([]byte, FrameSize)
		keepAlive[1] = keepAliveMarker
		frames := [][]byte{
			keepAlive,
			dataFrame(17.5, -88.0), // in box
			dataFrame(30.0, -88.0), // out of box
		}
		for _, f := range frames {
			if _, err := server.Write(f); err != nil {
				serverDone <- err
				return
			}
		}
		serverDone <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.session(ctx, "feed.example.org:10125")
	require.Error(t, err, "session must end when the feed closes")
	require.NoError(t, <-serverDone)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stored, 1)
	lat, lon := DecodeCoordinates(stored[0])
	assert.InDelta(t, 17.5, lat, 1e-6)
	assert.InDelta(t, -88.0, lon, 1e-6)
}

func TestConnectErrorClassification(t *testing.T) {
	inner := &connectError{err: assert.AnError}
	assert.True(t, isConnectError(inner))
	assert.False(t, isConnectError(assert.AnError))
}
