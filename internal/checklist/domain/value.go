package domain

import (
	"encoding/json"

	"github.com/jmoiron/sqlx/types"
)

// ValueKind discriminates FieldValue.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindNumber
	KindText
	KindBool
	KindFile
	KindGroup
)

// FieldValue is the tagged value of one field response. Exactly one payload
// is meaningful, selected by Kind.
type FieldValue struct {
	kind  ValueKind
	num   float64
	text  string
	b     bool
	group json.RawMessage
}

func NumberValue(v float64) FieldValue { return FieldValue{kind: KindNumber, num: v} }
func TextValue(v string) FieldValue    { return FieldValue{kind: KindText, text: v} }
func BoolValue(v bool) FieldValue      { return FieldValue{kind: KindBool, b: v} }
func FileValue(url string) FieldValue  { return FieldValue{kind: KindFile, text: url} }

// GroupValue wraps the JSON array of a repeating group's elements.
func GroupValue(elements json.RawMessage) FieldValue {
	return FieldValue{kind: KindGroup, group: elements}
}

func (v FieldValue) Kind() ValueKind { return v.kind }
func (v FieldValue) IsZero() bool    { return v.kind == KindNone }

func (v FieldValue) Number() (float64, bool) { return v.num, v.kind == KindNumber }
func (v FieldValue) Text() (string, bool)    { return v.text, v.kind == KindText }
func (v FieldValue) Bool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v FieldValue) FileURL() (string, bool) { return v.text, v.kind == KindFile }

func (v FieldValue) Group() (json.RawMessage, bool) { return v.group, v.kind == KindGroup }

// Interface returns the value as a plain Go value for comparisons and JSON.
func (v FieldValue) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText, KindFile:
		return v.text
	case KindBool:
		return v.b
	case KindGroup:
		return v.group
	}
	return nil
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.kind == KindGroup {
		return v.group, nil
	}
	return json.Marshal(v.Interface())
}

// Slots is the five-column storage shape of a FieldValue.
type Slots struct {
	Text   *string
	Number *float64
	Bool   *bool
	JSON   *types.JSONText
	File   *string
}

// Slots returns the storage columns for v; exactly one is non-nil unless v is empty.
func (v FieldValue) Slots() Slots {
	switch v.kind {
	case KindNumber:
		n := v.num
		return Slots{Number: &n}
	case KindText:
		t := v.text
		return Slots{Text: &t}
	case KindBool:
		b := v.b
		return Slots{Bool: &b}
	case KindFile:
		f := v.text
		return Slots{File: &f}
	case KindGroup:
		j := types.JSONText(v.group)
		return Slots{JSON: &j}
	}
	return Slots{}
}

// FieldValueFromSlots reads the slot matching the field type.
func FieldValueFromSlots(t FieldType, s Slots) FieldValue {
	switch t {
	case FieldNumber, FieldTemperature:
		if s.Number != nil {
			return NumberValue(*s.Number)
		}
	case FieldText, FieldDropdown:
		if s.Text != nil {
			return TextValue(*s.Text)
		}
	case FieldYesNo:
		if s.Bool != nil {
			return BoolValue(*s.Bool)
		}
	case FieldPhoto:
		if s.File != nil {
			return FileValue(*s.File)
		}
	case FieldRepeatingGroup:
		if s.JSON != nil {
			return GroupValue(json.RawMessage(*s.JSON))
		}
	}
	return FieldValue{}
}

func marshalWithValue(v interface{}, value FieldValue) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	raw, err := value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	m["value"] = raw
	return json.Marshal(m)
}
