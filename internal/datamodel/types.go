package datamodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Attribute data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeBoolean    uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap32   uint8 = 0x1B
	TypeInt8u      uint8 = 0x20
	TypeInt16u     uint8 = 0x21
	TypeInt32u     uint8 = 0x23
	TypeEnum8      uint8 = 0x30
	TypeCharString uint8 = 0x42
	TypeArray      uint8 = 0x48
)

// CharStringSize is the buffer size used for label-like char strings,
// including the one-byte length prefix.
const CharStringSize = 32

var (
	ErrBufferSize      = errors.New("datamodel: buffer size mismatch")
	ErrValueRange      = errors.New("datamodel: value out of range")
	ErrValueType       = errors.New("datamodel: unsupported value type")
	ErrUnsupportedType = errors.New("datamodel: unsupported attribute type")
)

// TypeSize returns the fixed size in bytes of a type, or -1 for variable-length types.
func TypeSize(typeID uint8) int {
	switch typeID {
	case TypeNoData:
		return 0
	case TypeBoolean, TypeInt8u, TypeEnum8, TypeBitmap8:
		return 1
	case TypeInt16u, TypeBitmap16:
		return 2
	case TypeInt32u, TypeBitmap32:
		return 4
	default:
		return -1
	}
}

// TypeName returns a human-readable name for a type.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBoolean:
		return "boolean"
	case TypeBitmap8:
		return "bitmap8"
	case TypeBitmap16:
		return "bitmap16"
	case TypeBitmap32:
		return "bitmap32"
	case TypeInt8u:
		return "int8u"
	case TypeInt16u:
		return "int16u"
	case TypeInt32u:
		return "int32u"
	case TypeEnum8:
		return "enum8"
	case TypeCharString:
		return "char_string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}

func checkSize(buf []byte, want int) error {
	if len(buf) != want {
		return fmt.Errorf("%w: have %d, want %d", ErrBufferSize, len(buf), want)
	}
	return nil
}

// EncodeBool writes a boolean into a 1-byte buffer.
func EncodeBool(buf []byte, v bool) error {
	if err := checkSize(buf, 1); err != nil {
		return err
	}
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	return nil
}

// EncodeUint8 writes v into a 1-byte buffer.
func EncodeUint8(buf []byte, v uint8) error {
	if err := checkSize(buf, 1); err != nil {
		return err
	}
	buf[0] = v
	return nil
}

// EncodeUint16 writes v little-endian into a 2-byte buffer.
func EncodeUint16(buf []byte, v uint16) error {
	if err := checkSize(buf, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf, v)
	return nil
}

// EncodeUint32 writes v little-endian into a 4-byte buffer.
func EncodeUint32(buf []byte, v uint32) error {
	if err := checkSize(buf, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf, v)
	return nil
}

// EncodeCharString writes a length-prefixed string. The string is truncated to
// len(buf)-1 bytes and the unused tail is zeroed.
func EncodeCharString(buf []byte, s string) error {
	if len(buf) < 1 {
		return fmt.Errorf("%w: char string needs at least 1 byte", ErrBufferSize)
	}
	n := len(s)
	if n > len(buf)-1 {
		n = len(buf) - 1
	}
	if n > math.MaxUint8 {
		n = math.MaxUint8
	}
	buf[0] = byte(n)
	copy(buf[1:], s[:n])
	clear(buf[1+n:])
	return nil
}

// DecodeBool reads a boolean from a 1-byte buffer.
func DecodeBool(buf []byte) (bool, error) {
	if err := checkSize(buf, 1); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// DecodeUint8 reads a 1-byte value.
func DecodeUint8(buf []byte) (uint8, error) {
	if err := checkSize(buf, 1); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// DecodeCharString reads a length-prefixed string.
func DecodeCharString(buf []byte) (string, error) {
	if len(buf) < 1 {
		return "", fmt.Errorf("%w: char string needs at least 1 byte", ErrBufferSize)
	}
	n := int(buf[0])
	if n > len(buf)-1 {
		return "", fmt.Errorf("%w: length prefix %d exceeds buffer", ErrBufferSize, n)
	}
	return string(buf[1 : 1+n]), nil
}

// EncodeValue converts a Go value into the attribute's wire representation.
// Numeric values decoded from JSON (float64) are accepted for integer types.
func EncodeValue(def *AttributeDef, buf []byte, value any) error {
	switch def.Type {
	case TypeBoolean:
		b, ok := toBool(value)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, value, def.Name)
		}
		return EncodeBool(buf, b)
	case TypeInt8u, TypeEnum8, TypeBitmap8:
		n, err := toUint(value, math.MaxUint8, def.Name)
		if err != nil {
			return err
		}
		return EncodeUint8(buf, uint8(n))
	case TypeInt16u, TypeBitmap16:
		n, err := toUint(value, math.MaxUint16, def.Name)
		if err != nil {
			return err
		}
		return EncodeUint16(buf, uint16(n))
	case TypeInt32u, TypeBitmap32:
		n, err := toUint(value, math.MaxUint32, def.Name)
		if err != nil {
			return err
		}
		return EncodeUint32(buf, uint32(n))
	case TypeCharString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrValueType, value, def.Name)
		}
		return EncodeCharString(buf, s)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, TypeName(def.Type))
	}
}

// DecodeValue converts an attribute buffer into a Go value.
func DecodeValue(def *AttributeDef, buf []byte) (any, error) {
	switch def.Type {
	case TypeBoolean:
		return DecodeBool(buf)
	case TypeInt8u, TypeEnum8, TypeBitmap8:
		return DecodeUint8(buf)
	case TypeInt16u, TypeBitmap16:
		if err := checkSize(buf, 2); err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint16(buf), nil
	case TypeInt32u, TypeBitmap32:
		if err := checkSize(buf, 4); err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint32(buf), nil
	case TypeCharString:
		return DecodeCharString(buf)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, TypeName(def.Type))
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case uint8:
		return b != 0, true
	case string:
		switch b {
		case "on", "ON", "true", "1":
			return true, true
		case "off", "OFF", "false", "0":
			return false, true
		}
	}
	return false, false
}

func toUint(v any, max uint64, name string) (uint64, error) {
	var n uint64
	switch x := v.(type) {
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case int:
		if x < 0 {
			return 0, fmt.Errorf("%w: %d for %s", ErrValueRange, x, name)
		}
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("%w: %d for %s", ErrValueRange, x, name)
		}
		n = uint64(x)
	case float64:
		if x < 0 || x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %v for %s", ErrValueRange, x, name)
		}
		n = uint64(x)
	default:
		return 0, fmt.Errorf("%w: %T for %s", ErrValueType, v, name)
	}
	if n > max {
		return 0, fmt.Errorf("%w: %d for %s", ErrValueRange, n, name)
	}
	return n, nil
}
