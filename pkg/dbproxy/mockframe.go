package dbproxy

import (
	"encoding/binary"
	"encoding/json"

	"wiretap/pkg/wireerr"
)

const component = "dbproxy"

// mockPayload is the structured shape a kind=db Mock's Body is expected to
// decode as JSON into. Shape selects which frame family gets fabricated.
type mockPayload struct {
	Shape   string           `json:"shape"` // "ok" | "rows" | "error"
	Command string           `json:"command,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Rows    [][]string       `json:"rows,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// BuildMockFrames fabricates a protocol-legal backend response for mock's
// structured body, ending in CommandComplete/ErrorResponse + ReadyForQuery
// as a real Postgres backend would for one simple query. Returns a
// MockIncompatible error if the body's shape can't be mapped to a frame.
func BuildMockFrames(mockBody string) ([]byte, error) {
	var p mockPayload
	if err := json.Unmarshal([]byte(mockBody), &p); err != nil {
		return nil, wireerr.Wrap(component, wireerr.MockIncompatible, "mock body is not a valid structured payload", err)
	}

	switch p.Shape {
	case "ok":
		return buildOKFrame(p), nil
	case "rows":
		return buildRowsFrame(p), nil
	case "error":
		return buildErrorFrame(p), nil
	default:
		return nil, wireerr.New(component, wireerr.MockIncompatible, "unknown mock shape: "+p.Shape)
	}
}

func buildOKFrame(p mockPayload) []byte {
	command := p.Command
	if command == "" {
		command = "OK"
	}
	var out []byte
	out = appendMessage(out, tagCommandComplete, append([]byte(command), 0))
	out = appendMessage(out, tagReadyForQuery, []byte{'I'})
	return out
}

func buildRowsFrame(p mockPayload) []byte {
	var out []byte
	out = appendMessage(out, tagRowDescription, encodeRowDescription(p.Columns))
	for _, row := range p.Rows {
		out = appendMessage(out, tagDataRow, encodeDataRow(row))
	}
	command := p.Command
	if command == "" {
		command = "SELECT " + itoa(len(p.Rows))
	}
	out = appendMessage(out, tagCommandComplete, append([]byte(command), 0))
	out = appendMessage(out, tagReadyForQuery, []byte{'I'})
	return out
}

func buildErrorFrame(p mockPayload) []byte {
	code := p.Code
	if code == "" {
		code = "XX000"
	}
	msg := p.Message
	if msg == "" {
		msg = "mocked error"
	}

	var payload []byte
	payload = append(payload, 'S')
	payload = append(payload, "ERROR"...)
	payload = append(payload, 0)
	payload = append(payload, 'C')
	payload = append(payload, code...)
	payload = append(payload, 0)
	payload = append(payload, 'M')
	payload = append(payload, msg...)
	payload = append(payload, 0)
	payload = append(payload, 0) // terminator

	var out []byte
	out = appendMessage(out, tagErrorResponse, payload)
	out = appendMessage(out, tagReadyForQuery, []byte{'I'})
	return out
}

func encodeRowDescription(columns []string) []byte {
	var payload []byte
	count := uint16(len(columns))
	payload = appendUint16(payload, count)
	for _, col := range columns {
		payload = append(payload, col...)
		payload = append(payload, 0)
		payload = appendUint32(payload, 0)  // table OID
		payload = appendUint16(payload, 0)  // column attr number
		payload = appendUint32(payload, 25) // type OID: text
		payload = appendUint16(payload, 0xffff)
		payload = appendUint32(payload, 0xffffffff)
		payload = appendUint16(payload, 0)
	}
	return payload
}

func encodeDataRow(values []string) []byte {
	var payload []byte
	payload = appendUint16(payload, uint16(len(values)))
	for _, v := range values {
		payload = appendUint32(payload, uint32(len(v)))
		payload = append(payload, v...)
	}
	return payload
}

func appendMessage(buf []byte, tag byte, payload []byte) []byte {
	header := make([]byte, 5)
	header[0] = tag
	binary.BigEndian.PutUint32(header[1:], uint32(4+len(payload)))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return append(buf, b...)
}

func appendUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
