// Package valuetype implements the tagged row-value variant the generic
// SQL pass-through query (Engine.MakeQuery with a raw query object) and
// the dispatcher's column-filling step both decode into. It replaces the
// dynamic-typed row decoding of the original C++ engine with an explicit
// sum type plus typed accessors, per the error-contract redesign note in
// spec.md §9.
package valuetype

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags which alternative of Value is populated.
type Kind int

const (
	KindNone Kind = iota
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindInt16
	KindUint16
	KindFloat
	KindDouble
	KindString
	KindTimestampUTC
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindTimestampUTC:
		return "timestamp_utc"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union over the column types the authoritative
// store and the local cache store can produce. The zero Value is KindNone
// ("missing"), which is what a requested parameter with no observation at
// a timestep decodes to.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	s    string
	t    time.Time
	b    []byte
}

// None returns the distinguished missing value.
func None() Value { return Value{kind: KindNone} }

func Int32(v int32) Value    { return Value{kind: KindInt32, i: int64(v)} }
func Uint32(v uint32) Value  { return Value{kind: KindUint32, u: uint64(v)} }
func Int64(v int64) Value    { return Value{kind: KindInt64, i: v} }
func Uint64(v uint64) Value  { return Value{kind: KindUint64, u: v} }
func Int16(v int16) Value    { return Value{kind: KindInt16, i: int64(v)} }
func Uint16(v uint16) Value  { return Value{kind: KindUint16, u: uint64(v)} }
func Float(v float32) Value  { return Value{kind: KindFloat, f: float64(v)} }
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }
func String(v string) Value  { return Value{kind: KindString, s: v} }
func Blob(v []byte) Value    { return Value{kind: KindBlob, b: v} }

// TimestampUTC stores t, requiring it is already expressed in UTC; callers
// that need a local-zone render should format it as a string instead of
// wrapping a non-UTC time.Time here.
func TimestampUTC(t time.Time) Value {
	return Value{kind: KindTimestampUTC, t: t.UTC()}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt32, KindInt64, KindInt16:
		return v.i, true
	case KindUint32, KindUint64, KindUint16:
		return int64(v.u), true
	default:
		return 0, false
	}
}

func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat, KindDouble:
		return v.f, true
	case KindInt32, KindInt64, KindInt16:
		return float64(v.i), true
	case KindUint32, KindUint64, KindUint16:
		return float64(v.u), true
	default:
		return 0, false
	}
}

func (v Value) String() (string, bool) {
	if v.kind == KindString {
		return v.s, true
	}
	return "", false
}

func (v Value) Timestamp() (time.Time, bool) {
	if v.kind == KindTimestampUTC {
		return v.t, true
	}
	return time.Time{}, false
}

func (v Value) Blob() ([]byte, bool) {
	if v.kind == KindBlob {
		return v.b, true
	}
	return nil, false
}

// ToString renders v as text, using precision decimal places for
// float/double kinds and RFC3339 for timestamps. missingText is returned
// verbatim for KindNone so callers can plug in the configured
// settings.missingtext.
func (v Value) ToString(precision int, missingText string) string {
	switch v.kind {
	case KindNone:
		return missingText
	case KindInt32, KindInt64, KindInt16:
		return strconv.FormatInt(v.i, 10)
	case KindUint32, KindUint64, KindUint16:
		return strconv.FormatUint(v.u, 10)
	case KindFloat, KindDouble:
		return strconv.FormatFloat(v.f, 'f', precision, 64)
	case KindString:
		return v.s
	case KindTimestampUTC:
		return v.t.Format(time.RFC3339)
	case KindBlob:
		return fmt.Sprintf("<%d bytes>", len(v.b))
	default:
		return missingText
	}
}
