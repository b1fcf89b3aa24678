package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Property values travel as Core Deterministic CBOR (RFC 8949 §4.2), so
// the same logical value always produces the same bytes and property
// lists can be compared byte-wise.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// ErrMalformedValue is returned when a property value is not a single
// well-formed CBOR data item.
var ErrMalformedValue = errors.New("protocol: malformed property value")

// Property is one named value of a shared object. The server never
// interprets Value; viewers agree on its type per property name.
type Property struct {
	Name  string
	Value cbor.RawMessage
}

// NewProperty encodes v as a property value.
func NewProperty(name string, v any) (Property, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return Property{}, fmt.Errorf("protocol: encode property %q: %w", name, err)
	}
	return Property{Name: name, Value: raw}, nil
}

// MustProperty is like NewProperty but panics on error. It is meant for
// tests and for values whose types are known to encode.
func MustProperty(name string, v any) Property {
	p, err := NewProperty(name, v)
	if err != nil {
		panic(err)
	}
	return p
}

// Decode unmarshals the property value into v.
func (p Property) Decode(v any) error {
	return decMode.Unmarshal(p.Value, v)
}

// Equal reports whether p and o have the same name and encoded value.
func (p Property) Equal(o Property) bool {
	return p.Name == o.Name && bytes.Equal(p.Value, o.Value)
}

// PropertyList is an ordered list of named values. Names are unique
// within a list produced by Merge.
type PropertyList []Property

// Get returns the property named name.
func (l PropertyList) Get(name string) (Property, bool) {
	for _, p := range l {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Clone returns a deep copy of l.
func (l PropertyList) Clone() PropertyList {
	if l == nil {
		return nil
	}
	out := make(PropertyList, len(l))
	for i, p := range l {
		out[i] = Property{Name: p.Name, Value: bytes.Clone(p.Value)}
	}
	return out
}

// Merge returns l with every property of update applied: existing names
// are replaced in place, new names are appended in update order. l is
// not modified.
func (l PropertyList) Merge(update PropertyList) PropertyList {
	out := l.Clone()
	for _, p := range update {
		replaced := false
		for i := range out {
			if out[i].Name == p.Name {
				out[i].Value = bytes.Clone(p.Value)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, Property{Name: p.Name, Value: bytes.Clone(p.Value)})
		}
	}
	return out
}

// Equal reports whether l and o hold the same properties in the same order.
func (l PropertyList) Equal(o PropertyList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if !l[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Names returns the property names in order.
func (l PropertyList) Names() []string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return names
}

// EncodePropertyListTo encodes a property list using the provided encoder.
func EncodePropertyListTo(e *Encoder, l PropertyList) {
	e.WriteUvarint(uint64(len(l)))
	for _, p := range l {
		e.WriteString(p.Name)
		e.WriteLenBytes(p.Value)
	}
}

// DecodePropertyListFrom decodes a property list from a decoder. Each
// value must be exactly one well-formed CBOR data item.
func DecodePropertyListFrom(d *Decoder) (PropertyList, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	l := make(PropertyList, count)
	for i := range l {
		l[i].Name, err = d.ReadString()
		if err != nil {
			return nil, err
		}
		value, err := d.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		if err := decMode.Wellformed(value); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedValue, l[i].Name, err)
		}
		l[i].Value = value
	}
	return l, nil
}
