package field

import (
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// enumSeparator delimits the segments of an enum value name.
const enumSeparator = "_"

// normalizeEnumText upper-cases text and maps spaces and hyphens to underscores.
func normalizeEnumText(text string) string {
	n := strings.ToUpper(text)
	n = strings.ReplaceAll(n, " ", enumSeparator)
	return strings.ReplaceAll(n, "-", enumSeparator)
}

// MatchEnum resolves free text to a value number of ed.
//
// Attempts, in order:
//  1. exact match of the normalized text against a value name
//  2. unique match of the normalized text against the trailing
//     underscore-delimited part of value names ("on" → ALWAYS_ON)
//  3. the text as a base-10 number of a declared value
//
// fieldName only labels errors. More than one suffix match is a
// KindAmbiguousEnum error; no match at all is KindUnknownEnum.
func MatchEnum(ed protoreflect.EnumDescriptor, fieldName, text string) (protoreflect.EnumNumber, error) {
	values := ed.Values()
	normalized := normalizeEnumText(text)

	if v := values.ByName(protoreflect.Name(normalized)); v != nil {
		return v.Number(), nil
	}

	suffix := enumSeparator + normalized
	var matches []protoreflect.EnumNumber
	for i := 0; i < values.Len(); i++ {
		v := values.Get(i)
		if !strings.HasSuffix(string(v.Name()), suffix) {
			continue
		}
		if !containsNumber(matches, v.Number()) {
			matches = append(matches, v.Number())
		}
	}
	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		return 0, &Error{Kind: KindAmbiguousEnum, Field: fieldName, Input: text}
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32); err == nil {
		if v := values.ByNumber(protoreflect.EnumNumber(n)); v != nil {
			return v.Number(), nil
		}
	}

	return 0, &Error{
		Kind:      KindUnknownEnum,
		Field:     fieldName,
		Input:     text,
		Supported: enumNames(ed),
	}
}

// EnumText renders a value number as the shortest text that MatchEnum maps
// back to the same number: the lower-cased trailing name segment when it is
// unambiguous, else the full value name. Undeclared numbers render as digits.
func EnumText(ed protoreflect.EnumDescriptor, n protoreflect.EnumNumber) string {
	v := ed.Values().ByNumber(n)
	if v == nil {
		return strconv.FormatInt(int64(n), 10)
	}
	name := string(v.Name())

	short := name
	if i := strings.LastIndex(name, enumSeparator); i >= 0 && i < len(name)-1 {
		short = name[i+1:]
	}
	short = strings.ToLower(short)

	if got, err := MatchEnum(ed, "", short); err == nil && got == n {
		return short
	}
	return name
}

// EnumName renders a value number by its declared name, or as digits when
// the number is not declared.
func EnumName(ed protoreflect.EnumDescriptor, n protoreflect.EnumNumber) any {
	if v := ed.Values().ByNumber(n); v != nil {
		return string(v.Name())
	}
	return int32(n)
}

func enumNames(ed protoreflect.EnumDescriptor) []string {
	values := ed.Values()
	names := make([]string, 0, values.Len())
	for i := 0; i < values.Len(); i++ {
		names = append(names, string(values.Get(i).Name()))
	}
	return names
}

func containsNumber(list []protoreflect.EnumNumber, n protoreflect.EnumNumber) bool {
	for _, x := range list {
		if x == n {
			return true
		}
	}
	return false
}
