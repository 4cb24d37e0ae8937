package managers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseInterval(t *testing.T) {
	def := 5 * time.Minute

	assert.Equal(t, def, ParseInterval("", def))
	assert.Equal(t, def, ParseInterval("not-a-duration", def))
	assert.Equal(t, def, ParseInterval("-2m", def))
	assert.Equal(t, 90*time.Second, ParseInterval("90s", def))
	assert.Equal(t, 2*time.Hour, ParseInterval("2h", def))
}

func TestJobManagerRunsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var runs int64
	m := NewJobManager(ctx, &wg, zap.NewNop().Sugar())
	m.Register("counter", time.Hour, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})
	m.Start()

	// the first run fires before the first tick
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	wg.Wait()
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))
}
