package row

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeAllFromRow(t *testing.T, r *Row) []Datum {
	t.Helper()
	it := r.Iter()
	var out []Datum
	for !it.Done() {
		out = append(out, it.Next())
	}
	return out
}

func TestRoundTripScalars(t *testing.T) {
	ds := []Datum{
		Null(),
		Bool(true),
		Bool(false),
		Int16(0),
		Int16(-1),
		Int16(1234),
		Int32(0),
		Int32(255),
		Int32(-1),
		Int32(70000),
		Int64(-70000),
		Uint8(255),
		Uint16(60000),
		Uint32(1 << 30),
		Uint64(1 << 40),
		Float64(3.5),
		Bytes([]byte{1, 2, 3}),
		String("hello"),
		Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	for _, pack := range []func([]Datum) *Row{Pack, PackSlice} {
		r := pack(ds)
		got := decodeAllFromRow(t, r)
		require.Equal(t, len(ds), len(got))
		for i := range ds {
			require.Equal(t, ds[i].Kind, got[i].Kind, "index %d", i)
		}
		require.Equal(t, ds[3].Int16, got[3].Int16)
		require.Equal(t, ds[8].Int32, got[8].Int32)
		require.Equal(t, ds[17].Str, got[17].Str)
		require.True(t, ds[18].Time.Equal(got[18].Time))
	}
}

func TestInt32TagBoundaries(t *testing.T) {
	// pack([0_i32]) uses the 0-byte payload tag: 1 tag byte total.
	r0 := PackSlice([]Datum{Int32(0)})
	require.Len(t, r0.Bytes(), 1)

	// pack([255_i32]) uses the 1-byte payload tag: tag + 1 byte.
	r255 := PackSlice([]Datum{Int32(255)})
	require.Len(t, r255.Bytes(), 2)

	// pack([-1_i32]) uses the negative 0-byte payload tag: 1 tag byte total.
	rNeg1 := PackSlice([]Datum{Int32(-1)})
	require.Len(t, rNeg1.Bytes(), 1)
	require.NotEqual(t, r0.Bytes()[0], rNeg1.Bytes()[0])
}

func TestListLengthClassTransitions(t *testing.T) {
	sizes := []int{tinyMax - 1, tinyMax + 1, shortMax + 1}
	for _, n := range sizes {
		elems := make([]Datum, n)
		for i := range elems {
			elems[i] = Int16(int16(i % 7))
		}
		r := Pack([]Datum{List(elems)})
		got := decodeAllFromRow(t, r)
		require.Len(t, got, 1)
		require.Equal(t, KindList, got[0].Kind)
		require.Len(t, got[0].List, n)
	}
}

func TestDictRoundTripAndOrderingPanic(t *testing.T) {
	r := NewRow()
	r.PushDictWith(func(db *DictBuilder) {
		db.Push("age", Int64(42))
		db.Push("name", String("bob"))
	})
	got := decodeAllFromRow(t, r)
	require.Len(t, got, 1)
	require.Equal(t, KindDict, got[0].Kind)
	require.Equal(t, []DictEntry{
		{Key: "age", Value: Int64(42)},
		{Key: "name", Value: String("bob")},
	}, got[0].Dict)

	require.Panics(t, func() {
		r2 := NewRow()
		r2.PushDictWith(func(db *DictBuilder) {
			db.Push("name", String("bob"))
			db.Push("age", Int64(42))
		})
	})
}

func TestArrayCardinality(t *testing.T) {
	r := NewRow()
	err := r.TryPushArrayWith([]ArrayDim{{LowerBound: 1, Length: 2}, {LowerBound: 1, Length: 3}}, func(ab *ArrayBuilder) {
		for i := 0; i < 6; i++ {
			ab.Push(Int32(int32(i)))
		}
	})
	require.NoError(t, err)
	got := decodeAllFromRow(t, r)
	require.Equal(t, KindArray, got[0].Kind)
	require.Len(t, got[0].Array.Elements, 6)

	r2 := NewRow()
	err = r2.TryPushArrayWith([]ArrayDim{{LowerBound: 0, Length: 2}}, func(ab *ArrayBuilder) {
		ab.Push(Int32(1))
	})
	var cardErr *ErrArrayCardinality
	require.ErrorAs(t, err, &cardErr)
	require.Equal(t, uint64(2), cardErr.Want)
	require.Equal(t, uint64(1), cardErr.Got)
	require.Empty(t, r2.Bytes(), "buffer restored on cardinality failure")
}

func TestRangeValidation(t *testing.T) {
	r := NewRow()
	err := r.PushRangeWith(
		&RangeBound{Value: Int32(1), Inclusive: true},
		&RangeBound{Value: Int32(5), Inclusive: false},
	)
	require.NoError(t, err)
	got := decodeAllFromRow(t, r)
	require.Equal(t, Int32(1), got[0].Range.Lower.Value)
	require.Equal(t, Int32(5), got[0].Range.Upper.Value)

	r2 := NewRow()
	err = r2.PushRangeWith(
		&RangeBound{Value: Int32(2)},
		&RangeBound{Value: Int32(1)},
	)
	var misordered *ErrMisorderedRangeBounds
	require.ErrorAs(t, err, &misordered)

	require.Panics(t, func() {
		_ = NewRow().PushRangeWith(&RangeBound{Value: Null()}, nil)
	})
}

func TestDatumSizeMatchesPackSlice(t *testing.T) {
	ds := []Datum{Int32(0), Int32(-5), String("abc"), Bytes([]byte{9, 9})}
	r := PackSlice(ds)
	total := 0
	for _, d := range ds {
		total += DatumSize(d)
	}
	require.Equal(t, total, len(r.Bytes()))
}

func TestSharedRowReentrantBorrowPanics(t *testing.T) {
	sr := NewSharedRow()
	s1 := sr.Borrow()
	require.Panics(t, func() { sr.Borrow() })
	s1.Release()
	s2 := sr.Borrow()
	s2.Release()
}

func TestCompareBytesLengthThenLex(t *testing.T) {
	short := PackSlice([]Datum{Int16(1)})
	long := PackSlice([]Datum{String("hello world")})
	require.Negative(t, CompareBytes(short, long))

	a := PackSlice([]Datum{String("aa")})
	b := PackSlice([]Datum{String("ab")})
	require.Negative(t, CompareBytes(a, b))
}
