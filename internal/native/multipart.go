package native

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// maxPartSize bounds a single multipart part
const maxPartSize = 16 << 20

var errPartTooLarge = errors.New("multipart part too large")

// partReader reads the parts of a multipart/x-mixed-replace stream whose
// opening delimiter has already been consumed.
//
// A part that declares Content-Length is returned as soon as its body has
// arrived; the delimiter that follows it is consumed on the next call.
// Parts without Content-Length end at the next delimiter line.
type partReader struct {
	br    *bufio.Reader
	tp    *textproto.Reader
	delim []byte
	max   int

	// pending is set when the delimiter after the last part is still unread
	pending bool
	done    bool
}

func newPartReader(br *bufio.Reader, boundary string, max int) *partReader {
	return &partReader{
		br:    br,
		tp:    textproto.NewReader(br),
		delim: []byte("--" + boundary),
		max:   max,
	}
}

// next returns the headers and body of the next part. io.EOF means the
// closing delimiter was seen or the stream ended between parts;
// io.ErrUnexpectedEOF means it ended inside a part.
func (r *partReader) next() (textproto.MIMEHeader, []byte, error) {
	if r.pending {
		r.pending = false
		_, closing, err := r.scan(false)
		if err != nil {
			return nil, nil, err
		}
		r.done = closing
	}
	if r.done {
		return nil, nil, io.EOF
	}

	hdr, err := r.tp.ReadMIMEHeader()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && len(hdr) == 0:
		return nil, nil, io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, nil, io.ErrUnexpectedEOF
	default:
		return nil, nil, fmt.Errorf("part header: %w", err)
	}

	if cl := strings.TrimSpace(hdr.Get("Content-Length")); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			if n > r.max {
				return nil, nil, fmt.Errorf("%w: Content-Length %d exceeds %d", errPartTooLarge, n, r.max)
			}
			data := make([]byte, n)
			if _, err := io.ReadFull(r.br, data); err != nil {
				return nil, nil, io.ErrUnexpectedEOF
			}
			r.pending = true
			return hdr, data, nil
		}
	}

	data, closing, err := r.scan(true)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	r.done = closing
	return hdr, data, nil
}

// scan reads up to and including the next delimiter line. With keep set
// it returns the bytes before the delimiter, minus the line break that
// belongs to the delimiter. closing reports a "--boundary--" line.
func (r *partReader) scan(keep bool) ([]byte, bool, error) {
	var buf []byte
	read := 0
	lineStart := true

	for {
		line, err := r.br.ReadSlice('\n')
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			if len(line) == 0 && read == 0 {
				return nil, false, io.EOF
			}
			return nil, false, io.ErrUnexpectedEOF
		}

		if lineStart && bytes.HasPrefix(line, r.delim) {
			rest := bytes.TrimRight(line[len(r.delim):], " \t\r\n")
			switch {
			case len(rest) == 0 && err == nil:
				return trimLineBreak(buf), false, nil
			case bytes.Equal(rest, []byte("--")) && err == nil:
				return trimLineBreak(buf), true, nil
			}
		}

		read += len(line)
		if read > r.max {
			return nil, false, fmt.Errorf("%w: no delimiter within %d bytes", errPartTooLarge, r.max)
		}
		if keep {
			buf = append(buf, line...)
		}
		lineStart = err == nil
	}
}

func trimLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}
