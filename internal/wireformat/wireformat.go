// Package wireformat wraps encoding/gob for the wire messages
// exchanged by internal/transport, warning once per type about
// lower-case fields that gob would silently drop.
package wireformat

import (
	"encoding/gob"
	"fmt"
	"io"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"
)

var (
	mu      sync.Mutex
	checked = map[reflect.Type]bool{}
)

// Encoder is a thin wrapper over gob.Encoder that checks the type of
// each encoded value for fields gob cannot serialize.
type Encoder struct {
	enc *gob.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: gob.NewEncoder(w)}
}

func (e *Encoder) Encode(v interface{}) error {
	checkValue(v)
	return e.enc.Encode(v)
}

// Decoder is a thin wrapper over gob.Decoder.
type Decoder struct {
	dec *gob.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: gob.NewDecoder(r)}
}

func (d *Decoder) Decode(v interface{}) error {
	checkValue(v)
	return d.dec.Decode(v)
}

func checkValue(v interface{}) {
	if v == nil {
		return
	}
	checkType(reflect.TypeOf(v))
}

func checkType(t reflect.Type) {
	if t == nil {
		return
	}
	k := t.Kind()

	mu.Lock()
	if checked[t] {
		mu.Unlock()
		return
	}
	checked[t] = true
	mu.Unlock()

	switch k {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			r, _ := utf8.DecodeRuneInString(f.Name)
			if !unicode.IsUpper(r) {
				fmt.Printf("wireformat: unexported field %s of %s will not survive encoding\n", f.Name, t.Name())
			}
			checkType(f.Type)
		}
	case reflect.Slice, reflect.Array, reflect.Ptr:
		checkType(t.Elem())
	case reflect.Map:
		checkType(t.Key())
		checkType(t.Elem())
	}
}
