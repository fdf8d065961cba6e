// Package frame decodes the upstream's length-prefixed frame stream
// (spec.md §4.3/§6.2): one type byte, a 4-byte big-endian length, and that
// many payload bytes, optionally gzip-compressed.
package frame

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"io"
)

// ErrEmptyStream indicates the accumulated buffer is shorter than the
// 5-byte header; not a failure, just "nothing to do yet".
var ErrEmptyStream = errors.New("frame: buffer shorter than header")

const headerLen = 5

// Kind is the logical payload kind carried by type>>1.
type Kind uint8

const (
	KindProtobuf Kind = 0
	KindJSON     Kind = 1
)

// Frame is one decoded wire unit. Gzip, if present, has already been
// undone: Payload is always the logical (plain) bytes. A frame whose
// decompression fails is dropped by Decode itself and never returned,
// nor treated as a stream failure.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Decode parses as many complete frames as are present in buf and returns
// them along with the number of bytes consumed. The caller must retain
// buf[consumed:] and append future reads to it. Decode never mutates buf.
//
// Contract (spec.md §4.3):
//   - len(buf) < 5: consumed == 0, err == ErrEmptyStream, frames == nil.
//   - a frame whose declared length extends past the available bytes:
//     stop, do not consume it this round (it may complete on a later call).
//   - payload length 0 is a valid, tolerated frame.
func Decode(buf []byte) (frames []Frame, consumed int, err error) {
	if len(buf) < headerLen {
		return nil, 0, ErrEmptyStream
	}

	off := 0
	for {
		if len(buf)-off < headerLen {
			break
		}
		typ := buf[off]
		length := binary.BigEndian.Uint32(buf[off+1 : off+5])
		total := headerLen + int(length)
		if len(buf)-off < total {
			break
		}

		raw := buf[off+headerLen : off+total]
		payload, ok := undoGzip(typ, raw)
		off += total

		if ok {
			frames = append(frames, Frame{Kind: Kind(typ >> 1), Payload: payload})
		}
		// A gzip decompression failure silently drops the frame rather
		// than failing the whole stream (spec.md §4.3).
	}
	return frames, off, nil
}

func undoGzip(typ byte, raw []byte) ([]byte, bool) {
	if typ&1 == 0 {
		return raw, true
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Encode builds one wire frame from a logical kind and payload, optionally
// gzip-compressing it. Used by the outbound adapter and by tests that
// construct synthetic upstream streams.
func Encode(kind Kind, payload []byte, gzipCompress bool) []byte {
	body := payload
	typ := byte(kind) << 1
	if gzipCompress {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, _ = w.Write(payload)
		_ = w.Close()
		body = buf.Bytes()
		typ |= 1
	}
	out := make([]byte, headerLen+len(body))
	out[0] = typ
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out
}
