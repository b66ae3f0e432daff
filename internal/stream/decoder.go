// Package stream decodes the chat backend's Server-Sent-Event stream into
// typed events.
//
// The backend writes one frame per line, "data: <json>\n". Chunks handed to
// a Decoder may split frames (and UTF-8 runes) anywhere; the decoder keeps
// the unterminated tail in a byte buffer and only ever decodes whole lines.
package stream

import (
	"bytes"
	"errors"
	"io"
)

const dataPrefix = "data: "

// Reason says why a frame was dropped.
type Reason int

const (
	ReasonMalformedJSON Reason = iota + 1
	ReasonUnknownShape
)

func (r Reason) String() string {
	switch r {
	case ReasonMalformedJSON:
		return "malformed_json"
	case ReasonUnknownShape:
		return "unknown_shape"
	default:
		return "unknown"
	}
}

// Diagnostic describes a dropped frame. Dropped frames never interrupt the
// stream.
type Diagnostic struct {
	Reason Reason
	Line   string
	Err    error
}

type Option func(*Decoder)

// WithDiagnostics registers an observer for dropped frames.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(d *Decoder) { d.diag = fn }
}

// Decoder is the per-response decoding session. It is not safe for
// concurrent use; chunks must be fed in arrival order.
type Decoder struct {
	handler Handler
	diag    func(Diagnostic)
	buf     []byte
	done    bool
	chatID  string
}

func NewDecoder(h Handler, opts ...Option) *Decoder {
	d := &Decoder{handler: h}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode appends chunk to the buffer and handles every complete line in it.
// It reports whether a Done frame has been seen; once it has, further input
// is ignored.
func (d *Decoder) Decode(chunk []byte) bool {
	if d.done {
		return true
	}
	d.buf = append(d.buf, chunk...)
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		d.line(line)
	}
	if d.done {
		d.buf = nil
	} else if len(d.buf) == 0 {
		// Reset so the backing array does not grow without bound.
		d.buf = d.buf[:0:0]
	}
	return d.done
}

// Finalize handles whatever is left in the buffer as a final line. Servers
// may close the stream without terminating the last frame.
func (d *Decoder) Finalize() bool {
	if d.done || len(d.buf) == 0 {
		return d.done
	}
	rest := d.buf
	d.buf = nil
	for _, line := range bytes.Split(rest, []byte{'\n'}) {
		if d.done {
			break
		}
		d.line(line)
	}
	return d.done
}

// ReadFrom feeds r into the decoder until a Done frame or EOF. On EOF the
// buffer is flushed through Finalize. Read errors other than io.EOF are
// returned as is; events decoded before the error have already been
// delivered.
func (d *Decoder) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		total += int64(n)
		if n > 0 && d.Decode(buf[:n]) {
			return total, nil
		}
		if errors.Is(err, io.EOF) {
			d.Finalize()
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Done reports whether the terminal frame has been decoded.
func (d *Decoder) Done() bool { return d.done }

// ChatID returns the chat id carried by the Done frame.
func (d *Decoder) ChatID() (string, bool) {
	return d.chatID, d.done
}

func (d *Decoder) line(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
	if !ok || len(bytes.TrimSpace(payload)) == 0 {
		return
	}

	ev, err := Classify(payload)
	if err != nil {
		if d.diag != nil {
			reason := ReasonUnknownShape
			if errors.Is(err, ErrMalformedFrame) {
				reason = ReasonMalformedJSON
			}
			d.diag(Diagnostic{Reason: reason, Line: string(line), Err: err})
		}
		return
	}

	if ev.Kind == KindDone {
		d.done = true
		d.chatID = ev.ChatID
	}
	if d.handler != nil {
		d.handler(ev)
	}
}
