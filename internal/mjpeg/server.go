package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ServerOptions controls what each connection receives
type ServerOptions struct {
	// Frames per connection; 0 streams until the client goes away
	Frames int
	// Interval between frames
	Interval time.Duration
	// ContentTypes are cycled across parts (default image/jpeg)
	ContentTypes []string
	Width        int
	Height       int
	Quality      int
	Boundary     string
	// Hold keeps the connection open after the last frame instead of
	// writing the closing delimiter and hanging up.
	Hold bool
	// CorruptFrom > 0 makes every image/jpeg part from that index on carry
	// undecodable data.
	CorruptFrom int
}

func (o *ServerOptions) setDefaults() {
	if len(o.ContentTypes) == 0 {
		o.ContentTypes = []string{"image/jpeg"}
	}
	if o.Width <= 0 {
		o.Width = 320
	}
	if o.Height <= 0 {
		o.Height = 240
	}
	if o.Quality <= 0 {
		o.Quality = 80
	}
}

// Server streams multipart JPEG to every TCP client that connects
type Server struct {
	opts ServerOptions
	ln   net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Listen binds addr ("127.0.0.1:0" picks a free port)
func Listen(addr string, opts ServerOptions) (*Server, error) {
	opts.setDefaults()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		opts:  opts,
		ln:    ln,
		conns: map[net.Conn]struct{}{},
		done:  make(chan struct{}),
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

// Serve accepts clients until ctx is done or Close is called
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	slog.Info("mjpeg: client connected", "remote", remote)

	n, err := s.stream(conn)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("mjpeg: client stream ended", "remote", remote, "frames", n, "error", err)
		return
	}
	slog.Info("mjpeg: client done", "remote", remote, "frames", n)
}

func (s *Server) stream(conn net.Conn) (int, error) {
	w, err := NewWriter(conn, s.opts.Boundary)
	if err != nil {
		return 0, err
	}

	n := 0
	for s.opts.Frames == 0 || n < s.opts.Frames {
		ct := s.opts.ContentTypes[n%len(s.opts.ContentTypes)]
		data, err := s.payload(ct, n)
		if err != nil {
			return n, err
		}
		if err := w.WriteFrame(ct, data); err != nil {
			return n, err
		}
		n++

		if s.opts.Interval > 0 {
			select {
			case <-s.done:
				return n, net.ErrClosed
			case <-time.After(s.opts.Interval):
			}
		}
	}

	if s.opts.Hold {
		<-s.done
		return n, nil
	}
	return n, w.Close()
}

func (s *Server) payload(contentType string, n int) ([]byte, error) {
	if contentType == "image/jpeg" {
		if s.opts.CorruptFrom > 0 && n >= s.opts.CorruptFrom {
			return []byte("\xff\xd8 truncated"), nil
		}
		return EncodeTestFrame(s.opts.Width, s.opts.Height, n, s.opts.Quality)
	}
	return []byte(fmt.Sprintf("part %d\n", n)), nil
}

// Close stops accepting, disconnects every client and waits for their
// handlers to return. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	err := s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
