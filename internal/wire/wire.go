package wire

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Content types understood by the relay.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Codec serialises bundles, messages and envelopes for transport.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

// ForFormat returns the codec named by a config value: "json" (default) or "cbor".
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("wire format %q: want json or cbor", format)
	}
}

// ForContentType picks the codec matching an HTTP Content-Type header,
// falling back to JSON.
func ForContentType(ct string) Codec {
	mt, _, err := mime.ParseMediaType(ct)
	if err == nil && mt == ContentTypeCBOR {
		return CBOR{}
	}
	return JSON{}
}

// JSON is the default, human-readable encoding. Keys are base64 strings.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) ContentType() string                { return ContentTypeJSON }

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if cborDec, err = (cbor.DecOptions{MaxArrayElements: 1 << 16}).DecMode(); err != nil {
		panic(err)
	}
}

// CBOR is the compact encoding: keys travel as raw byte strings and field
// names follow the JSON tags.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error)      { return cborEnc.Marshal(v) }
func (CBOR) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }
func (CBOR) ContentType() string                { return ContentTypeCBOR }
