// Package serializer implements the wire codecs the gateway transport can
// negotiate per message: MsgPack (the default) and JSON.
package serializer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies a serializer by its envelope content-type name.
type Kind string

const (
	// KindMsgPack is the default serializer and the only one version 1
	// envelopes can carry.
	KindMsgPack Kind = "msgpack"
	// KindJSON is the V2/V3 content-type option.
	KindJSON Kind = "json"
)

// ContentType returns the MIME type this Kind maps to in a V2/V3 envelope
// header.
func (k Kind) ContentType() string {
	switch k {
	case KindJSON:
		return "application/json"
	default:
		return "application/msgpack"
	}
}

// ErrUnknownSerializer is returned when a configured or negotiated
// serializer name/content-type isn't recognized.
var ErrUnknownSerializer = errors.New("serializer: unknown serializer")

// KindFromContentType maps an envelope content-type header back to a Kind.
func KindFromContentType(contentType string) (Kind, error) {
	switch contentType {
	case "application/msgpack", "":
		return KindMsgPack, nil
	case "application/json":
		return KindJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSerializer, contentType)
	}
}

// KindFromName maps a configuration-file serializer name to a Kind.
func KindFromName(name string) (Kind, error) {
	switch name {
	case "msgpack", "":
		return KindMsgPack, nil
	case "json":
		return KindJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSerializer, name)
	}
}

// Serializer encodes and decodes the {request_id, meta, body} triple that
// rides inside an envelope's payload.
type Serializer interface {
	Kind() Kind
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// For returns the Serializer implementation for a Kind.
func For(kind Kind) (Serializer, error) {
	switch kind {
	case KindMsgPack:
		return msgPackSerializer{}, nil
	case KindJSON:
		return jsonSerializer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, kind)
	}
}

type msgPackSerializer struct{}

func (msgPackSerializer) Kind() Kind { return KindMsgPack }

func (msgPackSerializer) Serialize(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: msgpack marshal: %w", err)
	}
	return data, nil
}

func (msgPackSerializer) Deserialize(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("serializer: msgpack unmarshal: %w", err)
	}
	return nil
}

type jsonSerializer struct{}

func (jsonSerializer) Kind() Kind { return KindJSON }

func (jsonSerializer) Serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: json marshal: %w", err)
	}
	return data, nil
}

func (jsonSerializer) Deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("serializer: json unmarshal: %w", err)
	}
	return nil
}
