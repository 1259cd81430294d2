package codec

import (
	"bytes"
	"errors"
	"testing"
)

type sample struct {
	Payer  string `json:"payer"  cbor:"payer"`
	Amount uint64 `json:"amount" cbor:"amount"`
}

func TestDecodeJSONStripsBOM(t *testing.T) {
	var s sample
	b := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"payer":"alice","amount":7}`)...)
	if err := DecodeJSON(b, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Payer != "alice" || s.Amount != 7 {
		t.Fatalf("unexpected: %+v", s)
	}
}

func TestMarshalCBORIsDeterministic(t *testing.T) {
	a, err := MarshalCBOR(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := MarshalCBOR(map[string]any{"c": 3, "a": 2, "b": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ: %x vs %x", a, b)
	}
}

func TestDecodeByContentType(t *testing.T) {
	body, err := MarshalCBOR(sample{Payer: "bob", Amount: 100})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var s sample
	if err := Decode("application/cbor", body, &s); err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	if s.Payer != "bob" || s.Amount != 100 {
		t.Fatalf("unexpected: %+v", s)
	}

	s = sample{}
	if err := Decode("", []byte(`{"payer":"carol","amount":1}`), &s); err != nil {
		t.Fatalf("sniffed json: %v", err)
	}
	if s.Payer != "carol" {
		t.Fatalf("unexpected: %+v", s)
	}

	if err := Decode("text/plain", []byte("hello"), &s); !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("want ErrUnsupportedContentType, got %v", err)
	}
}
