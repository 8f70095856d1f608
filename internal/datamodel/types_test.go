package datamodel

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeUint16LittleEndian(t *testing.T) {
	buf := make([]byte, 2)
	if err := EncodeUint16(buf, 0x1234); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x34, 0x12}) {
		t.Errorf("encoded % X, want 34 12", buf)
	}
}

func TestEncodeUint32LittleEndian(t *testing.T) {
	buf := make([]byte, 4)
	if err := EncodeUint32(buf, 0x01020304); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Errorf("encoded % X, want 04 03 02 01", buf)
	}
}

func TestEncodeSizeMismatch(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"bool short", func() error { return EncodeBool(nil, true) }},
		{"bool long", func() error { return EncodeBool(make([]byte, 2), true) }},
		{"uint8 long", func() error { return EncodeUint8(make([]byte, 4), 1) }},
		{"uint16 short", func() error { return EncodeUint16(make([]byte, 1), 1) }},
		{"uint32 short", func() error { return EncodeUint32(make([]byte, 2), 1) }},
		{"char string empty", func() error { return EncodeCharString(nil, "x") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrBufferSize) {
				t.Errorf("err = %v, want ErrBufferSize", err)
			}
		})
	}
}

func TestCharStringRoundTrip(t *testing.T) {
	buf := make([]byte, CharStringSize)
	if err := EncodeCharString(buf, "Light 1"); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 {
		t.Errorf("length prefix = %d, want 7", buf[0])
	}
	got, err := DecodeCharString(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Light 1" {
		t.Errorf("decoded %q, want %q", got, "Light 1")
	}
}

func TestCharStringTruncatesAndZeroes(t *testing.T) {
	buf := bytes.Repeat([]byte{0xAA}, 8)
	if err := EncodeCharString(buf, "abcdefghijkl"); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 {
		t.Errorf("length prefix = %d, want 7", buf[0])
	}
	if string(buf[1:]) != "abcdefg" {
		t.Errorf("payload = %q, want %q", buf[1:], "abcdefg")
	}

	if err := EncodeCharString(buf, "ab"); err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d = 0x%02X, want 0", i, buf[i])
		}
	}
}

func TestDecodeCharStringBadPrefix(t *testing.T) {
	if _, err := DecodeCharString([]byte{5, 'a'}); !errors.Is(err, ErrBufferSize) {
		t.Errorf("err = %v, want ErrBufferSize", err)
	}
}

func TestEncodeValueFromJSONNumbers(t *testing.T) {
	level := &AttributeDef{Name: "CurrentLevel", Type: TypeInt8u, Size: 1}
	buf := make([]byte, 1)
	if err := EncodeValue(level, buf, float64(200)); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 200 {
		t.Errorf("encoded %d, want 200", buf[0])
	}

	if err := EncodeValue(level, buf, float64(300)); !errors.Is(err, ErrValueRange) {
		t.Errorf("300: err = %v, want ErrValueRange", err)
	}
	if err := EncodeValue(level, buf, -1); !errors.Is(err, ErrValueRange) {
		t.Errorf("-1: err = %v, want ErrValueRange", err)
	}
	if err := EncodeValue(level, buf, 1.5); !errors.Is(err, ErrValueRange) {
		t.Errorf("1.5: err = %v, want ErrValueRange", err)
	}
	if err := EncodeValue(level, buf, "bright"); !errors.Is(err, ErrValueType) {
		t.Errorf("string: err = %v, want ErrValueType", err)
	}
}

func TestEncodeDecodeValueBoolean(t *testing.T) {
	def := &AttributeDef{Name: "OnOff", Type: TypeBoolean, Size: 1}
	buf := make([]byte, 1)
	for _, in := range []any{true, "ON", float64(1)} {
		if err := EncodeValue(def, buf, in); err != nil {
			t.Fatalf("EncodeValue(%v): %v", in, err)
		}
		v, err := DecodeValue(def, buf)
		if err != nil {
			t.Fatal(err)
		}
		if v != true {
			t.Errorf("DecodeValue after %v = %v, want true", in, v)
		}
	}
}

func TestDecodeValueUint32(t *testing.T) {
	def := &AttributeDef{Name: "ConfigurationVersion", Type: TypeInt32u, Size: 4}
	v, err := DecodeValue(def, []byte{0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v.(uint32) != 1 {
		t.Errorf("got %v, want 1", v)
	}
}

func TestUnsupportedType(t *testing.T) {
	def := &AttributeDef{Name: "PartsList", Type: TypeArray}
	if _, err := DecodeValue(def, nil); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestTypeSize(t *testing.T) {
	tests := []struct {
		typ  uint8
		size int
	}{
		{TypeBoolean, 1},
		{TypeInt8u, 1},
		{TypeBitmap8, 1},
		{TypeInt16u, 2},
		{TypeInt32u, 4},
		{TypeBitmap32, 4},
		{TypeCharString, -1},
	}
	for _, tt := range tests {
		if got := TypeSize(tt.typ); got != tt.size {
			t.Errorf("TypeSize(%s) = %d, want %d", TypeName(tt.typ), got, tt.size)
		}
	}
}

func TestStatusString(t *testing.T) {
	if StatusUnsupportedAttribute.String() != "UNSUPPORTED_ATTRIBUTE" {
		t.Errorf("got %q", StatusUnsupportedAttribute.String())
	}
	if Status(0x42).String() != "STATUS(0x42)" {
		t.Errorf("got %q", Status(0x42).String())
	}
	if !StatusSuccess.OK() || StatusFailure.OK() {
		t.Error("OK() mismatch")
	}
}
