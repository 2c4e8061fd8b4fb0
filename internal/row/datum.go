package row

import "time"

// Kind discriminates the active field of a Datum. A Datum is a tagged
// union, mirroring the source representation's enum-of-scalars: only the
// field matching Kind is meaningful.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBytes
	KindString
	KindTimestamp
	KindNumeric
	KindList
	KindDict
	KindArray
	KindRange
)

// Datum is one typed scalar value within a Row.
type Datum struct {
	Kind Kind

	Bool    bool
	Int16   int16
	Int32   int32
	Int64   int64
	Uint8   uint8
	Uint16  uint16
	Uint32  uint32
	Uint64  uint64
	Float32 float32
	Float64 float64
	Bytes   []byte
	Str     string
	Time    time.Time
	Numeric Numeric
	List    []Datum
	Dict    []DictEntry
	Array   ArrayDatum
	Range   RangeDatum
}

// Numeric is a canonically-reduced decimal: value = (-1)^Negative *
// coefficient * 10^Exponent, where coefficient is the base-1e9 little
// endian digit group sequence in Units.
type Numeric struct {
	Digits   uint8
	Exponent int8
	Negative bool
	Units    []uint32
}

// DictEntry is one key/value pair of a Dict datum. Entries within a Dict
// must be strictly ascending by Key.
type DictEntry struct {
	Key   string
	Value Datum
}

// ArrayDim describes one dimension of an Array datum.
type ArrayDim struct {
	LowerBound int64
	Length     uint64
}

// ArrayDatum is a dense, row-major, multi-dimensional array of Datum.
type ArrayDatum struct {
	Dims     []ArrayDim
	Elements []Datum
}

// RangeBound is one endpoint of a Range datum. A nil *RangeBound (on
// RangeDatum.Lower / .Upper) denotes an infinite bound.
type RangeBound struct {
	Value     Datum
	Inclusive bool
}

// RangeDatum is a contiguous span over an ordered Datum kind.
type RangeDatum struct {
	Lower *RangeBound
	Upper *RangeBound
}

func Null() Datum                { return Datum{Kind: KindNull} }
func Bool(b bool) Datum          { return Datum{Kind: KindBool, Bool: b} }
func Int16(v int16) Datum        { return Datum{Kind: KindInt16, Int16: v} }
func Int32(v int32) Datum        { return Datum{Kind: KindInt32, Int32: v} }
func Int64(v int64) Datum        { return Datum{Kind: KindInt64, Int64: v} }
func Uint8(v uint8) Datum        { return Datum{Kind: KindUint8, Uint8: v} }
func Uint16(v uint16) Datum      { return Datum{Kind: KindUint16, Uint16: v} }
func Uint32(v uint32) Datum      { return Datum{Kind: KindUint32, Uint32: v} }
func Uint64(v uint64) Datum      { return Datum{Kind: KindUint64, Uint64: v} }
func Float64(v float64) Datum    { return Datum{Kind: KindFloat64, Float64: v} }
func Bytes(b []byte) Datum       { return Datum{Kind: KindBytes, Bytes: b} }
func String(s string) Datum      { return Datum{Kind: KindString, Str: s} }
func Timestamp(t time.Time) Datum { return Datum{Kind: KindTimestamp, Time: t} }
func List(ds []Datum) Datum      { return Datum{Kind: KindList, List: ds} }
