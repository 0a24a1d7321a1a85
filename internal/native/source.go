package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-viewer/internal/pipeline"
)

const (
	defaultChunkSize   = 4096
	defaultDialTimeout = 5 * time.Second
)

// Source is a TCP client source. It connects on Ready -> Paused and pushes
// whatever it reads, in chunks, to its output.
type Source struct {
	stage

	out         *Pad
	dialTimeout time.Duration
	chunkSize   int

	mu       sync.Mutex
	host     string
	port     int
	conn     net.Conn
	stopping atomic.Bool
	wg       sync.WaitGroup

	bytesRead atomic.Uint64
}

func newSource(name string, dialTimeout time.Duration, chunkSize int) *Source {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	s := &Source{
		out:         newSrcPad("src"),
		dialTimeout: dialTimeout,
		chunkSize:   chunkSize,
	}
	s.init(name, pipeline.RoleSource)
	return s
}

func (s *Source) Input() pipeline.ConnectionPoint  { return nil }
func (s *Source) Output() pipeline.ConnectionPoint { return s.out }

// SetTarget configures host and port. Only allowed before Paused.
func (s *Source) SetTarget(host string, port int) error {
	if host == "" {
		return errors.New("empty host")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	if s.current() >= pipeline.StatePaused {
		return errors.New("cannot change target while streaming")
	}

	s.mu.Lock()
	s.host, s.port = host, port
	s.mu.Unlock()
	return nil
}

func (s *Source) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// BytesRead returns the number of bytes received so far
func (s *Source) BytesRead() uint64 { return s.bytesRead.Load() }

func (s *Source) changeState(next pipeline.RunState, _ func()) (bool, error) {
	cur := s.current()

	switch {
	case cur == pipeline.StateReady && next == pipeline.StatePaused:
		if err := s.start(); err != nil {
			return false, err
		}
	case cur == pipeline.StatePaused && next == pipeline.StateReady:
		s.stop()
	}

	s.setState(next)
	return false, nil
}

func (s *Source) start() error {
	addr := s.address()

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.postError("Could not open resource for reading.",
			fmt.Sprintf("Failed to connect to host '%s': %v", addr, err))
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	slog.Info("native: connected", "stage", s.name, "addr", addr)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.stopping.Store(false)

	s.wg.Add(1)
	go s.loop(conn)
	return nil
}

func (s *Source) stop() {
	s.stopping.Store(true)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *Source) loop(conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, s.chunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.bytesRead.Add(uint64(n))
			metrics.BytesReceivedTotal.Add(float64(n))

			if perr := s.out.push(Buffer{Data: data}); perr != nil {
				if !errors.Is(perr, errFlushing) && !errors.Is(perr, errFlow) {
					slog.Debug("native: source push failed", "stage", s.name, "error", perr)
				}
				return
			}
		}

		if err != nil {
			if s.stopping.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				slog.Debug("native: server closed the connection", "stage", s.name)
				s.out.pushEOS()
				return
			}
			s.postError("Could not read from resource.", err.Error())
			return
		}
	}
}

// Release stops the connection and drops the element to Null
func (s *Source) Release() error {
	return settle(s, pipeline.StateNull)
}
