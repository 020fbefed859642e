// Package dbproxy implements the DB wire proxy (C8): an opaque TCP
// forwarder for database wire protocols, augmented with protocol-aware
// observers that extract query text and classify server responses without
// attempting a full re-implementation of the wire protocol (spec's
// Non-goals explicitly exclude full wire parsing beyond query/status
// extraction). PostgreSQL's simple/extended query sub-protocol is the
// reference implementation; other protocols pass through as opaque bytes.
package dbproxy

import (
	"encoding/binary"
	"errors"
	"io"
)

var errShortFrame = errors.New("dbproxy: short frame")

// message is one tagged Postgres backend/frontend protocol message: a
// single byte tag followed by a 4-byte big-endian length (inclusive of the
// length field itself) and a payload.
type message struct {
	tag     byte
	payload []byte
}

// readMessage reads one tagged message from r. Postgres's startup message
// (the very first frontend frame on a connection) has no tag byte, so
// callers that need to skip it use readStartupMessage instead.
func readMessage(r io.Reader) (message, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return message{}, err
	}
	tag := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length < 4 {
		return message{}, errShortFrame
	}
	payload := make([]byte, length-4)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return message{}, err
		}
	}
	return message{tag: tag, payload: payload}, nil
}

// writeMessage serializes a tagged message in Postgres's wire format.
func writeMessage(w io.Writer, tag byte, payload []byte) error {
	length := uint32(4 + len(payload))
	header := make([]byte, 5)
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], length)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}

// readStartupMessage reads the untagged length-prefixed startup frame and
// returns its raw payload (protocol version plus key/value parameters).
func readStartupMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return nil, errShortFrame
	}
	payload := make([]byte, length-4)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func cString(b []byte) (string, []byte) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:]
		}
	}
	return string(b), nil
}
