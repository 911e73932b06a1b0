package pose

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/visiontrack/visiontrack/internal/monitoring"
)

// Packet counters are written by the read loop while the stats goroutine
// reads them; this drives both sides together so the race detector can see
// any unsynchronized access.
func TestUDPSourceStatsConcurrentWithPackets(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	s := NewUDPSource(UDPSourceConfig{LogInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.startStatsLogging(ctx)

	good := []byte(`{"timestamp_ms":1,"people":[]}`)
	bad := []byte(`not a frame`)
	for i := 0; i < 500; i++ {
		s.handlePacket(good)
		s.handlePacket(bad)
	}

	if got := s.received.Load(); got != 1000 {
		t.Errorf("received = %d, want 1000", got)
	}
	if got := s.badFrame.Load(); got != 500 {
		t.Errorf("badFrame = %d, want 500", got)
	}
	// No consumer drains the channel, so the overflow path must have fired.
	if s.dropped.Load() == 0 {
		t.Error("dropped = 0, want overflow drops with no consumer")
	}
}
