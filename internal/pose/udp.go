package pose

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/visiontrack/visiontrack/internal/monitoring"
	"github.com/visiontrack/visiontrack/internal/timeutil"
)

// Source delivers pose frames to the pipeline. Implementations close the
// channel when no more frames will arrive.
type Source interface {
	Frames() <-chan Frame
}

// UDPSourceConfig contains configuration options for the UDP frame source.
type UDPSourceConfig struct {
	Address       string
	RcvBuf        int
	MinVisibility float64
	LogInterval   time.Duration
	Clock         timeutil.Clock
}

// UDPSource receives JSON pose frames over UDP from the external estimator
// process and publishes them on a channel. Frames arriving faster than the
// consumer drains are dropped, newest-wins, so the pipeline never falls
// behind real time.
type UDPSource struct {
	address       string
	rcvBuf        int
	minVisibility float64
	logInterval   time.Duration
	clock         timeutil.Clock

	conn   *net.UDPConn
	frames chan Frame

	// Written by the read loop, read by the stats goroutine.
	received atomic.Uint64
	dropped  atomic.Uint64
	badFrame atomic.Uint64
}

// NewUDPSource creates a UDP frame source with the provided configuration.
func NewUDPSource(config UDPSourceConfig) *UDPSource {
	minVis := config.MinVisibility
	if minVis == 0 {
		minVis = DefaultMinVisibility
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	var clock timeutil.Clock = timeutil.RealClock{}
	if config.Clock != nil {
		clock = config.Clock
	}
	return &UDPSource{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		minVisibility: minVis,
		logInterval:   logInterval,
		clock:         clock,
		frames:        make(chan Frame, 4),
	}
}

// Frames returns the frame channel. It is closed when Start returns.
func (s *UDPSource) Frames() <-chan Frame {
	return s.frames
}

// Start begins listening for UDP frames and blocks until ctx is cancelled.
func (s *UDPSource) Start(ctx context.Context) error {
	defer close(s.frames)

	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	if s.rcvBuf > 0 {
		if err := conn.SetReadBuffer(s.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", s.rcvBuf, err)
		}
	}

	monitoring.Logf("pose UDP source listening on %s", s.address)
	go s.startStatsLogging(ctx)

	buffer := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("pose UDP source stopping")
			return ctx.Err()
		default:
			// Short deadline so context cancellation is noticed between reads.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("pose UDP read error: %v", err)
				continue
			}
			s.handlePacket(buffer[:n])
		}
	}
}

func (s *UDPSource) handlePacket(packet []byte) {
	s.received.Add(1)
	frame, err := DecodeFrame(packet, s.minVisibility, s.clock.Now())
	if err != nil {
		s.badFrame.Add(1)
		monitoring.Logf("pose frame decode failed: %v", err)
		return
	}

	select {
	case s.frames <- frame:
	default:
		// Consumer is behind; drop the oldest queued frame and retry once.
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
		select {
		case s.frames <- frame:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *UDPSource) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(s.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.Logf("pose UDP source: %d frames received, %d dropped, %d undecodable",
				s.received.Load(), s.dropped.Load(), s.badFrame.Load())
		}
	}
}

// ChanSource adapts an existing frame channel to the Source interface. Tests
// and file replays feed frames through it directly.
type ChanSource struct {
	C chan Frame
}

// Frames returns the underlying channel.
func (s *ChanSource) Frames() <-chan Frame {
	return s.C
}
