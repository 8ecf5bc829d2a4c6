package field

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Boolean spellings accepted by Decode, compared case-insensitively.
var (
	trueWords  = map[string]bool{"1": true, "true": true, "on": true, "yes": true}
	falseWords = map[string]bool{"0": true, "false": true, "off": true, "no": true}
)

// Decode converts raw command text to a typed value for the leaf field.
//
// Surrounding whitespace is ignored. Floats take decimal or scientific
// notation, inf and nan; hexadecimal floats are rejected. Enum kinds go through MatchEnum;
// message kinds accept protobuf JSON. Failures are KindConversion errors
// (or the enum kinds from MatchEnum) naming the field and the raw input.
func Decode(fi *FieldInfo, raw string) (protoreflect.Value, error) {
	text := strings.TrimSpace(raw)

	switch fi.Kind {
	case protoreflect.BoolKind:
		lowered := strings.ToLower(text)
		if trueWords[lowered] {
			return protoreflect.ValueOfBool(true), nil
		}
		if falseWords[lowered] {
			return protoreflect.ValueOfBool(false), nil
		}
		return protoreflect.Value{}, conversionError(fi, raw, "boolean", nil)

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "integer", err)
		}
		return protoreflect.ValueOfInt32(int32(n)), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "integer", err)
		}
		return protoreflect.ValueOfInt64(n), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "integer", err)
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "integer", err)
		}
		return protoreflect.ValueOfUint64(n), nil

	case protoreflect.FloatKind:
		f, err := parseFloat(text, 32)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "float", err)
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil

	case protoreflect.DoubleKind:
		f, err := parseFloat(text, 64)
		if err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "float", err)
		}
		return protoreflect.ValueOfFloat64(f), nil

	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes([]byte(text)), nil

	case protoreflect.EnumKind:
		n, err := MatchEnum(fi.Enum, fi.Name, text)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfEnum(n), nil

	case protoreflect.MessageKind, protoreflect.GroupKind:
		m := dynamicpb.NewMessage(fi.Message)
		if err := protojson.Unmarshal([]byte(text), m); err != nil {
			return protoreflect.Value{}, conversionError(fi, raw, "message", err)
		}
		return protoreflect.ValueOfMessage(m), nil

	default:
		return protoreflect.ValueOfString(text), nil
	}
}

// Text renders a decoded leaf value as acknowledgement text. Decode(Text(v))
// yields an equal value for every kind Decode accepts.
func Text(fi *FieldInfo, v protoreflect.Value) string {
	switch fi.Kind {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10)
	case protoreflect.FloatKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case protoreflect.BytesKind:
		return BytesText(v.Bytes())
	case protoreflect.EnumKind:
		return EnumText(fi.Enum, v.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		b, err := protojson.Marshal(v.Message().Interface())
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return v.String()
	}
}

// BytesText decodes b as UTF-8, replacing undecodable sequences.
func BytesText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

var errHexFloat = errors.New("hexadecimal floats are not accepted")

// parseFloat accepts decimal and scientific notation plus inf, infinity and
// nan in any case. Hexadecimal mantissas are rejected.
func parseFloat(text string, bitSize int) (float64, error) {
	digits := strings.TrimLeft(text, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, errHexFloat
	}
	return strconv.ParseFloat(text, bitSize)
}

func conversionError(fi *FieldInfo, raw, want string, cause error) *Error {
	return &Error{Kind: KindConversion, Field: fi.Name, Input: raw, Want: want, Err: cause}
}
