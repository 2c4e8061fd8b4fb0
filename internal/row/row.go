// Package row implements the engine's compact, self-describing binary
// encoding of typed tuples (Datum sequences) together with a resumable
// decoding iterator. Encoding is append-only; a Row's bytes are opaque
// outside this package and are not a stable wire format across process
// versions.
package row

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Checked toggles DictBuilder.Push's ascending-key validation. Range
// bound validation in PushRangeWith runs regardless of this flag.
// Production binaries may set this to false once a plan has been
// validated once; tests always run with it true.
var Checked = true

// Row is an append-encoded sequence of Datum values.
type Row struct {
	buf []byte
}

// NewRow returns an empty Row ready for encoding.
func NewRow() *Row { return &Row{} }

// Bytes returns the Row's encoded byte slice. The caller must not mutate
// it; Row reuses this backing array across Reset calls.
func (r *Row) Bytes() []byte { return r.buf }

// Reset clears the Row for reuse, keeping its backing storage. Packing
// into a Row always starts by clearing it first (encoding is append-only
// within one packing pass, not across them).
func (r *Row) Reset() { r.buf = r.buf[:0] }

// Pack returns a new Row with ds append-encoded in order. For a single allocation,
// prefer PackSlice.
func Pack(ds []Datum) *Row {
	r := NewRow()
	for _, d := range ds {
		r.Push(d)
	}
	return r
}

// PackSlice pre-computes the exact encoded size of ds via DatumSize and
// allocates the backing buffer once.
func PackSlice(ds []Datum) *Row {
	size := 0
	for _, d := range ds {
		size += DatumSize(d)
	}
	r := &Row{buf: make([]byte, 0, size)}
	for _, d := range ds {
		r.Push(d)
	}
	return r
}

// Push append-encodes a single datum.
func (r *Row) Push(d Datum) {
	switch d.Kind {
	case KindNull:
		r.buf = append(r.buf, TagNull)
	case KindBool:
		if d.Bool {
			r.buf = append(r.buf, TagTrue)
		} else {
			r.buf = append(r.buf, TagFalse)
		}
	case KindInt16:
		r.pushSignedInt(tagInt16PosBase, tagInt16NegBase, int64(d.Int16), 2)
	case KindInt32:
		r.pushSignedInt(tagInt32PosBase, tagInt32NegBase, int64(d.Int32), 4)
	case KindInt64:
		r.pushSignedInt(tagInt64PosBase, tagInt64NegBase, d.Int64, 8)
	case KindUint8:
		r.buf = append(r.buf, TagUint8, d.Uint8)
	case KindUint16:
		r.buf = append(r.buf, TagUint16)
		r.buf = appendUintLE(r.buf, uint64(d.Uint16), 2)
	case KindUint32:
		r.buf = append(r.buf, TagUint32)
		r.buf = appendUintLE(r.buf, uint64(d.Uint32), 4)
	case KindUint64:
		r.buf = append(r.buf, TagUint64)
		r.buf = appendUintLE(r.buf, d.Uint64, 8)
	case KindFloat32:
		r.buf = append(r.buf, TagFloat32)
		r.buf = appendUintLE(r.buf, uint64(math.Float32bits(d.Float32)), 4)
	case KindFloat64:
		r.buf = append(r.buf, TagFloat64)
		r.buf = appendUintLE(r.buf, math.Float64bits(d.Float64), 8)
	case KindBytes:
		r.pushLengthPrefixed(tagBytesTiny, d.Bytes)
	case KindString:
		r.pushLengthPrefixed(tagStringTiny, []byte(d.Str))
	case KindTimestamp:
		r.pushTimestamp(d.Time)
	case KindNumeric:
		r.pushNumeric(d.Numeric)
	case KindList:
		r.PushListWith(func(r *Row) {
			for _, e := range d.List {
				r.Push(e)
			}
		})
	case KindDict:
		r.PushDictWith(func(db *DictBuilder) {
			for _, e := range d.Dict {
				db.Push(e.Key, e.Value)
			}
		})
	case KindArray:
		if err := r.TryPushArrayWith(d.Array.Dims, func(ab *ArrayBuilder) {
			for _, e := range d.Array.Elements {
				ab.Push(e)
			}
		}); err != nil {
			panic(err)
		}
	case KindRange:
		if err := r.PushRangeWith(d.Range.Lower, d.Range.Upper); err != nil {
			panic(err)
		}
	default:
		panic(fmt.Sprintf("row: unknown datum kind %d", d.Kind))
	}
}

func (r *Row) pushSignedInt(posBase, negBase Tag, v int64, maxWidth int) {
	if v >= 0 {
		width := minBytesUnsigned(uint64(v))
		r.buf = append(r.buf, posBase+Tag(widthIndex(width)))
		r.buf = appendUintLE(r.buf, uint64(v), width)
		return
	}
	// Negative magnitudes are the bitwise complement of v rather than -v,
	// so -1's complement is 0 and needs no payload bytes at all.
	mag := uint64(^v)
	width := minBytesUnsigned(mag)
	r.buf = append(r.buf, negBase+Tag(widthIndex(width)))
	r.buf = appendUintLE(r.buf, mag, width)
}

func (r *Row) pushLengthPrefixed(base Tag, payload []byte) {
	tag, width := lengthClassTag(base, len(payload))
	r.buf = append(r.buf, tag)
	r.buf = appendUintLE(r.buf, uint64(len(payload)), width)
	r.buf = append(r.buf, payload...)
}

// cheapTimestampLayoutBytes is the payload width of the cheap timestamp
// encoding: int64 nanoseconds since the Unix epoch.
const cheapTimestampLayoutBytes = 8

func (r *Row) pushTimestamp(t time.Time) {
	u := t.UTC()
	nanos := u.UnixNano()
	// Cheap path round-trips iff reconstructing from nanos recovers u
	// exactly, i.e. the instant fits in an int64 nanosecond count.
	roundTrip := time.Unix(0, nanos).UTC()
	if roundTrip.Equal(u) {
		r.buf = append(r.buf, TagTimestampCheap)
		r.buf = appendUintLE(r.buf, uint64(nanos), cheapTimestampLayoutBytes)
		return
	}
	// Fallback: seconds since epoch (8 bytes) + nanosecond-of-second (8
	// bytes), which covers the full range time.Time can represent.
	r.buf = append(r.buf, TagTimestampFallback)
	r.buf = appendUintLE(r.buf, uint64(u.Unix()), 8)
	r.buf = appendUintLE(r.buf, uint64(u.Nanosecond()), 8)
}

func (r *Row) pushNumeric(n Numeric) {
	r.buf = append(r.buf, TagNumeric)
	flags := byte(0)
	if n.Negative {
		flags |= 1
	}
	r.buf = append(r.buf, n.Digits, byte(n.Exponent), flags)
	r.buf = appendUintLE(r.buf, uint64(len(n.Units)), 2)
	for _, u := range n.Units {
		r.buf = appendUintLE(r.buf, uint64(u), 4)
	}
}

func appendUintLE(buf []byte, v uint64, width int) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, width)...)
	switch width {
	case 1:
		buf[start] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf[start:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf[start:], uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf[start:], v)
	case 0:
	default:
		panic("row: invalid width")
	}
	return buf
}

func readUintLE(buf []byte, width int) uint64 {
	switch width {
	case 0:
		return 0
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	default:
		panic("row: invalid width")
	}
}

// DatumSize returns the exact number of bytes Push(d) will append,
// without mutating d or any Row.
func DatumSize(d Datum) int {
	switch d.Kind {
	case KindNull, KindBool:
		return 1
	case KindInt16:
		return signedIntSize(int64(d.Int16))
	case KindInt32:
		return signedIntSize(int64(d.Int32))
	case KindInt64:
		return signedIntSize(d.Int64)
	case KindUint8:
		return 2
	case KindUint16:
		return 1 + 2
	case KindUint32:
		return 1 + 4
	case KindUint64:
		return 1 + 8
	case KindFloat32:
		return 1 + 4
	case KindFloat64:
		return 1 + 8
	case KindBytes:
		return lengthPrefixedSize(len(d.Bytes))
	case KindString:
		return lengthPrefixedSize(len(d.Str))
	case KindTimestamp:
		u := d.Time.UTC()
		if time.Unix(0, u.UnixNano()).UTC().Equal(u) {
			return 1 + cheapTimestampLayoutBytes
		}
		return 1 + 16
	case KindNumeric:
		return 1 + 3 + 2 + 4*len(d.Numeric.Units)
	case KindList:
		size := 0
		for _, e := range d.List {
			size += DatumSize(e)
		}
		return listLikeSize(size)
	case KindDict:
		size := 0
		for _, e := range d.Dict {
			size += DatumSize(String(e.Key)) + DatumSize(e.Value)
		}
		return listLikeSize(size)
	case KindArray:
		size := 2 + len(d.Array.Dims)*16 + 8
		for _, e := range d.Array.Elements {
			size += DatumSize(e)
		}
		return size
	case KindRange:
		size := 2 // tag + flags byte
		if d.Range.Lower != nil {
			size += DatumSize(d.Range.Lower.Value)
		}
		if d.Range.Upper != nil {
			size += DatumSize(d.Range.Upper.Value)
		}
		return size
	default:
		panic(fmt.Sprintf("row: unknown datum kind %d", d.Kind))
	}
}

func signedIntSize(v int64) int {
	if v >= 0 {
		return 1 + minBytesUnsigned(uint64(v))
	}
	return 1 + minBytesUnsigned(uint64(^v))
}

func lengthPrefixedSize(payloadLen int) int {
	_, width := lengthClassTag(tagBytesTiny, payloadLen)
	return 1 + width + payloadLen
}

func listLikeSize(payloadLen int) int {
	_, width := lengthClassTag(tagListTiny, payloadLen)
	return 1 + width + payloadLen
}

// Iter is a non-restartable, resumable, single-pass decoder over a Row's
// bytes.
type Iter struct {
	buf []byte
	pos int
}

// Iter returns a fresh decoding iterator over r.
func (r *Row) Iter() *Iter { return &Iter{buf: r.buf} }

// Done reports whether the iterator has no more datums.
func (it *Iter) Done() bool { return it.pos >= len(it.buf) }

// Next decodes and returns the next datum, advancing the iterator.
// Reading past the end of the buffer is undefined; Next panics rather
// than silently returning zero values, since a well-formed caller never
// calls it after Done reports true.
func (it *Iter) Next() Datum {
	tag := it.buf[it.pos]
	it.pos++
	switch {
	case tag == TagNull:
		return Null()
	case tag == TagFalse:
		return Bool(false)
	case tag == TagTrue:
		return Bool(true)
	case tag >= tagInt16PosBase && tag < tagInt16PosBase+3:
		return Int16(int16(it.readSigned(tag, tagInt16PosBase, tagInt16NegBase, true)))
	case tag >= tagInt16NegBase && tag < tagInt16NegBase+3:
		return Int16(int16(it.readSigned(tag, tagInt16PosBase, tagInt16NegBase, false)))
	case tag >= tagInt32PosBase && tag < tagInt32PosBase+4:
		return Int32(int32(it.readSigned(tag, tagInt32PosBase, tagInt32NegBase, true)))
	case tag >= tagInt32NegBase && tag < tagInt32NegBase+4:
		return Int32(int32(it.readSigned(tag, tagInt32PosBase, tagInt32NegBase, false)))
	case tag >= tagInt64PosBase && tag < tagInt64PosBase+5:
		return Int64(it.readSigned(tag, tagInt64PosBase, tagInt64NegBase, true))
	case tag >= tagInt64NegBase && tag < tagInt64NegBase+5:
		return Int64(it.readSigned(tag, tagInt64PosBase, tagInt64NegBase, false))
	case tag == TagUint8:
		v := it.buf[it.pos]
		it.pos++
		return Uint8(v)
	case tag == TagUint16:
		v := readUintLE(it.next(2), 2)
		return Uint16(uint16(v))
	case tag == TagUint32:
		v := readUintLE(it.next(4), 4)
		return Uint32(uint32(v))
	case tag == TagUint64:
		v := readUintLE(it.next(8), 8)
		return Uint64(v)
	case tag == TagFloat32:
		v := readUintLE(it.next(4), 4)
		return Datum{Kind: KindFloat32, Float32: math.Float32frombits(uint32(v))}
	case tag == TagFloat64:
		v := readUintLE(it.next(8), 8)
		return Float64(math.Float64frombits(v))
	case tag >= tagBytesTiny && tag <= tagBytesHuge:
		return Bytes(it.readLengthPrefixed(tagBytesTiny, tag))
	case tag >= tagStringTiny && tag <= tagStringHuge:
		return String(string(it.readLengthPrefixed(tagStringTiny, tag)))
	case tag >= tagListTiny && tag <= tagListHuge:
		payload := it.readLengthPrefixed(tagListTiny, tag)
		return List(decodeAll(payload))
	case tag >= tagDictTiny && tag <= tagDictHuge:
		payload := it.readLengthPrefixed(tagDictTiny, tag)
		return Datum{Kind: KindDict, Dict: decodeDict(payload)}
	case tag == TagArray:
		return it.readArray()
	case tag == TagRange:
		return it.readRange()
	case tag == TagTimestampCheap:
		nanos := int64(readUintLE(it.next(cheapTimestampLayoutBytes), cheapTimestampLayoutBytes))
		return Timestamp(time.Unix(0, nanos).UTC())
	case tag == TagTimestampFallback:
		secs := int64(readUintLE(it.next(8), 8))
		nsec := int64(readUintLE(it.next(8), 8))
		return Timestamp(time.Unix(secs, nsec).UTC())
	case tag == TagNumeric:
		return it.readNumeric()
	default:
		panic(fmt.Sprintf("row: unknown tag %d at offset %d", tag, it.pos-1))
	}
}

func (it *Iter) next(n int) []byte {
	b := it.buf[it.pos : it.pos+n]
	it.pos += n
	return b
}

func (it *Iter) readSigned(tag, posBase, negBase Tag, positive bool) int64 {
	if positive {
		width := indexWidth(int(tag - posBase))
		mag := readUintLE(it.next(width), width)
		return int64(mag)
	}
	width := indexWidth(int(tag - negBase))
	mag := readUintLE(it.next(width), width)
	// Inverse of the encode-side complement: complementing twice recovers v.
	return ^int64(mag)
}

func (it *Iter) readLengthPrefixed(base, tag Tag) []byte {
	width := lengthWidthFromTag(base, tag)
	n := int(readUintLE(it.next(width), width))
	return it.next(n)
}

func decodeAll(buf []byte) []Datum {
	it := &Iter{buf: buf}
	var out []Datum
	for !it.Done() {
		out = append(out, it.Next())
	}
	return out
}

func decodeDict(buf []byte) []DictEntry {
	it := &Iter{buf: buf}
	var out []DictEntry
	for !it.Done() {
		k := it.Next()
		v := it.Next()
		out = append(out, DictEntry{Key: k.Str, Value: v})
	}
	return out
}

func (it *Iter) readArray() Datum {
	ndims := int(it.buf[it.pos])
	it.pos++
	dims := make([]ArrayDim, ndims)
	for i := range dims {
		lb := int64(readUintLE(it.next(8), 8))
		ln := readUintLE(it.next(8), 8)
		dims[i] = ArrayDim{LowerBound: lb, Length: ln}
	}
	payloadLen := int(readUintLE(it.next(8), 8))
	payload := it.next(payloadLen)
	return Datum{Kind: KindArray, Array: ArrayDatum{Dims: dims, Elements: decodeAll(payload)}}
}

func (it *Iter) readRange() Datum {
	flags := it.buf[it.pos]
	it.pos++
	const (
		lowerInfinite = 1 << iota
		upperInfinite
		lowerInclusive
		upperInclusive
	)
	rd := RangeDatum{}
	if flags&lowerInfinite == 0 {
		v := it.Next()
		rd.Lower = &RangeBound{Value: v, Inclusive: flags&lowerInclusive != 0}
	}
	if flags&upperInfinite == 0 {
		v := it.Next()
		rd.Upper = &RangeBound{Value: v, Inclusive: flags&upperInclusive != 0}
	}
	return Datum{Kind: KindRange, Range: rd}
}

func (it *Iter) readNumeric() Datum {
	digits := it.buf[it.pos]
	exponent := int8(it.buf[it.pos+1])
	flags := it.buf[it.pos+2]
	it.pos += 3
	count := int(readUintLE(it.next(2), 2))
	units := make([]uint32, count)
	for i := range units {
		units[i] = uint32(readUintLE(it.next(4), 4))
	}
	return Datum{Kind: KindNumeric, Numeric: Numeric{
		Digits:   digits,
		Exponent: exponent,
		Negative: flags&1 != 0,
		Units:    units,
	}}
}
