package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewPropertyDeterministic(t *testing.T) {
	value := map[string]any{"z": 1, "a": []float64{0.5, 1.5}, "m": "mid"}

	first, err := NewProperty("transform", value)
	if err != nil {
		t.Fatalf("NewProperty() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again := MustProperty("transform", value)
		if !bytes.Equal(first.Value, again.Value) {
			t.Fatalf("encoding not deterministic: %x != %x", first.Value, again.Value)
		}
	}
}

func TestPropertyDecode(t *testing.T) {
	p := MustProperty("angle", 10)
	if !bytes.Equal(p.Value, []byte{0x0a}) {
		t.Errorf("Value = %x, want 0a", p.Value)
	}

	var angle int
	if err := p.Decode(&angle); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if angle != 10 {
		t.Errorf("Decode() = %d, want 10", angle)
	}

	var generic any
	if err := MustProperty("meta", map[string]any{"k": "v"}).Decode(&generic); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m, ok := generic.(map[string]any); !ok || m["k"] != "v" {
		t.Errorf("Decode() into any = %#v, want map[string]any{k: v}", generic)
	}
}

func TestPropertyListMerge(t *testing.T) {
	base := PropertyList{
		MustProperty("a", 1),
		MustProperty("b", 2),
	}
	update := PropertyList{
		MustProperty("c", 3),
		MustProperty("a", 10),
	}

	merged := base.Merge(update)

	want := PropertyList{
		MustProperty("a", 10),
		MustProperty("b", 2),
		MustProperty("c", 3),
	}
	if !merged.Equal(want) {
		t.Errorf("Merge() names = %v, want %v", merged.Names(), want.Names())
	}

	// The receiver is left untouched.
	if a, _ := base.Get("a"); !bytes.Equal(a.Value, []byte{0x01}) {
		t.Errorf("Merge() modified receiver: a = %x", a.Value)
	}
}

func TestPropertyListGet(t *testing.T) {
	l := PropertyList{MustProperty("x", "y")}

	if _, ok := l.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
	p, ok := l.Get("x")
	if !ok || p.Name != "x" {
		t.Errorf("Get(x) = %v, %v", p, ok)
	}
}

func TestPropertyListCloneIsDeep(t *testing.T) {
	l := PropertyList{MustProperty("x", 1)}
	c := l.Clone()
	c[0].Value[0] = 0xFF

	if l[0].Value[0] == 0xFF {
		t.Error("Clone() shares value bytes with the original")
	}
	if PropertyList(nil).Clone() != nil {
		t.Error("Clone() of nil list should be nil")
	}
}

func TestDecodePropertyListRejectsMalformedCBOR(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"empty", nil},
		{"truncated string", []byte{0x63, 'a'}},
		{"two items", []byte{0x01, 0x02}},
		{"reserved additional info", []byte{0x1c}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			e.WriteUvarint(1)
			e.WriteString("bad")
			e.WriteLenBytes(tc.value)

			_, err := DecodePropertyListFrom(NewDecoder(e.Bytes()))
			if !errors.Is(err, ErrMalformedValue) {
				t.Errorf("DecodePropertyListFrom() error = %v, want ErrMalformedValue", err)
			}
		})
	}
}

func TestPropertyListRoundTrip(t *testing.T) {
	l := PropertyList{
		MustProperty("position", []float64{1, 2, 3}),
		MustProperty("visible", true),
		MustProperty("label", "femur"),
	}

	e := NewEncoder()
	EncodePropertyListTo(e, l)

	d := NewDecoder(e.Bytes())
	got, err := DecodePropertyListFrom(d)
	if err != nil {
		t.Fatalf("DecodePropertyListFrom() error = %v", err)
	}
	if !got.Equal(l) {
		t.Errorf("round trip = %v, want %v", got.Names(), l.Names())
	}
	if !d.EOF() {
		t.Errorf("%d bytes left after decode", d.Remaining())
	}
}
