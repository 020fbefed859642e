// Package codec decompresses captured request/response bodies and decides
// whether the result is safe to render as text, the way the MITM and DB
// proxies need before handing a body to the recorder or the mock store.
// Decompression failure and binary content never propagate an error past
// this package; both resolve to a documented sentinel string instead.
package codec

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

// textContentTypePrefixes are the Content-Type prefixes treated as text without
// sampling the body.
var textContentTypePrefixes = []string{
	"application/json",
	"text/",
	"application/xml",
	"application/javascript",
	"application/x-www-form-urlencoded",
}

const sniffSampleSize = 512

// Decompress inflates buffer according to contentEncoding (gzip, deflate,
// br; anything else or empty is passed through unchanged), then decides
// whether the result should be rendered as text or replaced with a
// sentinel. It never returns an error: decompression failure and binary
// content both resolve to a sentinel string.
func Decompress(buffer []byte, contentEncoding, contentType string) string {
	if len(buffer) == 0 {
		return ""
	}

	decoded, decompErr := decompressBuffer(buffer, contentEncoding)
	if decompErr != nil {
		return fmt.Sprintf("[Compressed content: %s, %d bytes - decompression failed]", contentEncoding, len(buffer))
	}

	if isText(decoded, contentType) {
		return string(decoded)
	}
	return fmt.Sprintf("[Binary content: %s, %d bytes]", contentType, len(decoded))
}

func decompressBuffer(buffer []byte, contentEncoding string) ([]byte, error) {
	enc := strings.ToLower(contentEncoding)
	switch {
	case strings.Contains(enc, "gzip"):
		r, err := gzip.NewReader(bytes.NewReader(buffer))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.Contains(enc, "br"):
		r := brotli.NewReader(bytes.NewReader(buffer))
		return io.ReadAll(r)
	case strings.Contains(enc, "deflate"):
		r := flate.NewReader(bytes.NewReader(buffer))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return buffer, nil
	}
}

// isText implements the §4.2 text-detection rule: trust a recognized
// Content-Type outright, otherwise sample the first 512 bytes for control
// bytes or invalid UTF-8.
func isText(data []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, prefix := range textContentTypePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}

	sample := data
	if len(sample) > sniffSampleSize {
		sample = sample[:sniffSampleSize]
	}
	for _, b := range sample {
		if b == 0x00 {
			return false
		}
		if b < 0x20 && b != '\t' && b != '\r' && b != '\n' {
			return false
		}
	}
	if utf8.ValidString(string(sample)) {
		return !bytes.ContainsRune(sample, utf8.RuneError)
	}
	return false
}
