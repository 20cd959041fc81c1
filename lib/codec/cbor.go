// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the repository-standard CBOR encoding: Core
// Deterministic Encoding (RFC 8949 §4.2) on the way out, lenient
// decoding with unknown fields ignored on the way in. The view cache
// persists the last-known-good device snapshot through this package so
// the bytes on disk are stable for identical logical state.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// When the decode target is any-typed, produce map[string]any
		// rather than the CBOR default map[any]any, so decoded values
		// interoperate with encoding/json and the rest of the code.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored for
// forward compatibility with older cache files.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
