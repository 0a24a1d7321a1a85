package mjpeg

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriterParts(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBoundary, w.Boundary())
	assert.Equal(t, "multipart/x-mixed-replace; boundary="+DefaultBoundary, w.ContentType())

	frame, err := EncodeTestFrame(32, 24, 1, 90)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame("text/plain", []byte("hello")))
	require.NoError(t, w.WriteFrame("image/jpeg", frame))
	require.NoError(t, w.Close())

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("--"+DefaultBoundary+"\r\n")))

	r := multipart.NewReader(&buf, DefaultBoundary)

	p, err := r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", p.Header.Get("Content-Type"))
	assert.Equal(t, "5", p.Header.Get("Content-Length"))
	body, err := io.ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	p, err = r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", p.Header.Get("Content-Type"))
	img, err := jpeg.Decode(p)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())

	_, err = r.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncodeTestFrameRejectsBadSize(t *testing.T) {
	_, err := EncodeTestFrame(0, 10, 0, 90)
	assert.Error(t, err)
}

func TestServerStreamsFramesThenCloses(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", ServerOptions{
		Frames:       3,
		ContentTypes: []string{"text/plain", "image/jpeg"},
		Width:        16,
		Height:       16,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	r := multipart.NewReader(conn, DefaultBoundary)
	var types []string
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, p.Header.Get("Content-Type"))
	}
	assert.Equal(t, []string{"text/plain", "image/jpeg", "text/plain"}, types)

	cancel()
	require.NoError(t, <-served)
	require.NoError(t, srv.Close())
}

func TestServerCloseDisconnectsHeldClients(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", ServerOptions{Frames: 1, Hold: true, Width: 8, Height: 8})
	require.NoError(t, err)

	go srv.Serve(context.Background())

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := multipart.NewReader(conn, DefaultBoundary)
	_, err = r.NextPart()
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}
