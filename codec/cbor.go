// Package codec is the single place where stored values are encoded.
// Every badger value written by the relay is CBOR with Core Deterministic
// Encoding, so identical records produce identical bytes.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

// decMode ignores unknown fields so older binaries can read newer records.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

type Encoder = cbor.Encoder

type Decoder = cbor.Decoder

func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) of data.
// Used by the inspection tools to print stored values.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
