// Package envelope implements the gateway's self-describing wire format: the
// header region that precedes a serialized payload in one Redis list entry.
//
// Three envelope grammars are supported, richer versions superseding older
// ones: V1 is a bare MsgPack payload, V2 prefixes a single content-type
// header, and V3 prefixes a magic string followed by any number of
// semicolon-terminated key:value headers (content-type, chunk-count,
// chunk-id).
package envelope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Magic is the V3 envelope prefix.
const Magic = "pysoa-redis/3//"

// ErrMalformedEnvelope is returned when the envelope's header region cannot
// be parsed: a V2 header missing its terminating ';', or a V3 chunk-count/
// chunk-id header whose value isn't an integer.
var ErrMalformedEnvelope = errors.New("envelope: malformed header")

// DebugLogger is satisfied by *logging.Logger; kept as a narrow interface so
// this package doesn't import logging and create a cycle.
type DebugLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
}

// Header holds the V2/V3 header fields recognized by the grammar. ChunkCount
// and ChunkID are zero when the envelope carries no chunk headers.
type Header struct {
	ContentType string
	ChunkCount  int
	ChunkID     int
}

// Envelope is a fully decoded wire entry: its protocol version, header
// fields, and the remaining payload bytes.
type Envelope struct {
	ProtocolVersion int
	Header          Header
	Payload         []byte
}

// IsChunk reports whether this envelope carries a chunk of a larger message.
func (e *Envelope) IsChunk() bool {
	return e.Header.ChunkCount > 0
}

// Encode builds a non-chunked envelope for the given protocol version and
// content type. Version 1 ignores contentType (MsgPack is implied).
func Encode(version int, contentType string, payload []byte) ([]byte, error) {
	return EncodeChunk(version, contentType, 0, 0, payload)
}

// EncodeChunk builds an envelope, optionally carrying chunk-count/chunk-id
// headers. chunkCount == 0 means "not chunked"; chunking requires version 3.
func EncodeChunk(version int, contentType string, chunkCount, chunkID int, payload []byte) ([]byte, error) {
	if chunkCount > 0 && version != 3 {
		return nil, fmt.Errorf("envelope: chunking requires protocol version 3, got %d", version)
	}

	switch version {
	case 1:
		return payload, nil
	case 2:
		var b strings.Builder
		b.WriteString("content-type:")
		b.WriteString(contentType)
		b.WriteByte(';')
		b.Write(payload)
		return []byte(b.String()), nil
	case 3:
		var b strings.Builder
		b.WriteString(Magic)
		b.WriteString("content-type:")
		b.WriteString(contentType)
		b.WriteByte(';')
		if chunkCount > 0 {
			b.WriteString("chunk-count:")
			b.WriteString(strconv.Itoa(chunkCount))
			b.WriteByte(';')
			b.WriteString("chunk-id:")
			b.WriteString(strconv.Itoa(chunkID))
			b.WriteByte(';')
		}
		b.Write(payload)
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("envelope: unsupported protocol version %d", version)
	}
}

// Decode inspects the envelope prefix and returns the protocol version,
// parsed headers, and remaining payload. Unknown V3 header keys are ignored
// and, if logger is non-nil, logged at debug level.
func Decode(data []byte, logger DebugLogger) (*Envelope, error) {
	if bytes.HasPrefix(data, []byte(Magic)) {
		rest := data[len(Magic):]
		header, payload, err := parseHeaders(rest, logger)
		if err != nil {
			return nil, err
		}
		return &Envelope{ProtocolVersion: 3, Header: header, Payload: payload}, nil
	}

	if bytes.HasPrefix(data, []byte("content-type:")) {
		idx := bytes.IndexByte(data, ';')
		if idx < 0 {
			return nil, fmt.Errorf("%w: unterminated content-type header", ErrMalformedEnvelope)
		}
		value := strings.TrimSpace(string(data[len("content-type:"):idx]))
		return &Envelope{
			ProtocolVersion: 2,
			Header:          Header{ContentType: value},
			Payload:         data[idx+1:],
		}, nil
	}

	return &Envelope{
		ProtocolVersion: 1,
		Header:          Header{ContentType: "application/msgpack"},
		Payload:         data,
	}, nil
}

func isHeaderKeyByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || b == '-'
}

// parseHeaders consumes zero or more "key:value;" pairs from the front of
// data, stopping at the first byte sequence that doesn't look like a header
// key. This is what lets the payload (which is arbitrary binary data) follow
// directly without its own terminator.
func parseHeaders(data []byte, logger DebugLogger) (Header, []byte, error) {
	var h Header

	for {
		colon := bytes.IndexByte(data, ':')
		if colon <= 0 {
			break
		}

		key := data[:colon]
		validKey := true
		for _, b := range key {
			if !isHeaderKeyByte(b) {
				validKey = false
				break
			}
		}
		if !validKey {
			break
		}

		rest := data[colon+1:]
		semi := bytes.IndexByte(rest, ';')
		if semi < 0 {
			break
		}
		value := strings.TrimSpace(string(rest[:semi]))

		switch string(key) {
		case "content-type":
			h.ContentType = value
		case "chunk-count":
			n, err := strconv.Atoi(value)
			if err != nil {
				return h, nil, fmt.Errorf("%w: chunk-count %q is not an integer", ErrMalformedEnvelope, value)
			}
			h.ChunkCount = n
		case "chunk-id":
			n, err := strconv.Atoi(value)
			if err != nil {
				return h, nil, fmt.Errorf("%w: chunk-id %q is not an integer", ErrMalformedEnvelope, value)
			}
			h.ChunkID = n
		default:
			if logger != nil {
				logger.DebugContext(context.Background(), "ignoring unknown v3 header", "key", string(key))
			}
		}

		data = rest[semi+1:]
	}

	return h, data, nil
}
