package domain

import (
	"fmt"
	"strconv"
	"time"
)

// FieldKind discriminates the scalar types a snapshot field can hold.
type FieldKind int

const (
	// FieldUnknown means the field was not present in the snapshot.
	// Unknown is never treated as a change.
	FieldUnknown FieldKind = iota
	// FieldAbsent is the disappearance sentinel: the field existed in the
	// previous snapshot and is gone from the current one.
	FieldAbsent
	FieldString
	FieldNumber
	FieldBool
)

// FieldValue is a scalar snapshot value. The zero value is Unknown.
type FieldValue struct {
	Kind FieldKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) FieldValue { return FieldValue{Kind: FieldString, Str: s} }
func NumberValue(n float64) FieldValue { return FieldValue{Kind: FieldNumber, Num: n} }
func BoolValue(b bool) FieldValue     { return FieldValue{Kind: FieldBool, Bool: b} }
func AbsentValue() FieldValue         { return FieldValue{Kind: FieldAbsent} }

// Known reports whether the value carries an observation (including Absent).
func (v FieldValue) Known() bool { return v.Kind != FieldUnknown }

// Equal compares two field values by kind and payload.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case FieldString:
		return v.Str == o.Str
	case FieldNumber:
		return v.Num == o.Num
	case FieldBool:
		return v.Bool == o.Bool
	default:
		return true
	}
}

func (v FieldValue) String() string {
	switch v.Kind {
	case FieldString:
		return v.Str
	case FieldNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case FieldBool:
		return strconv.FormatBool(v.Bool)
	case FieldAbsent:
		return "<absent>"
	default:
		return "<unknown>"
	}
}

// Snapshot is one point-in-time observation of the external game state,
// flattened to dotted field paths ("players.765611.match_stats.kills").
// Snapshots are immutable once built; fields not present are unknown.
type Snapshot struct {
	Timestamp time.Time
	Fields    map[string]FieldValue
}

// NewSnapshot flattens a nested JSON-decoded mapping into a Snapshot.
// Non-scalar leaves (arrays) are stringified so no payload shape can panic
// the ingestion path.
func NewSnapshot(ts time.Time, nested map[string]any) *Snapshot {
	s := &Snapshot{Timestamp: ts, Fields: make(map[string]FieldValue)}
	flattenInto(s.Fields, "", nested)
	return s
}

func flattenInto(dst map[string]FieldValue, prefix string, node map[string]any) {
	for key, raw := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch val := raw.(type) {
		case map[string]any:
			flattenInto(dst, path, val)
		case string:
			dst[path] = StringValue(val)
		case float64:
			dst[path] = NumberValue(val)
		case bool:
			dst[path] = BoolValue(val)
		case nil:
			// null carries no observation
		default:
			dst[path] = StringValue(fmt.Sprintf("%v", val))
		}
	}
}

// Field returns the value at path, or an unknown value when the path is
// not present in this snapshot.
func (s *Snapshot) Field(path string) FieldValue {
	if s == nil {
		return FieldValue{}
	}
	return s.Fields[path]
}
