package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/birbparty/birb-feathers/internal/feature"
)

// Binary cache entry format. Entries are self-describing: a version byte,
// a tagged value, the sample timestamp, the freshness at cache-write time,
// and an optional metadata map. All integers are big-endian.
const codecVersion = 0x01

// Value tags.
const (
	tagNull   = 0x00
	tagFloat  = 0x01
	tagInt    = 0x02
	tagString = 0x03
	tagBool   = 0x04
	tagMap    = 0x05
)

const maxMapEntries = math.MaxUint16

// ErrCorruptEntry is returned by DecodeEntry on truncation, an unknown tag
// or a version mismatch. The serving engine treats it as a cache miss.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Entry is the record stored in the cache tier for one (entity, feature) key.
type Entry struct {
	Value            feature.Value
	Timestamp        time.Time
	FreshnessSeconds float64
	Metadata         map[string]feature.Value
}

// EncodeEntry serializes an entry to the compact binary cache format.
func EncodeEntry(e *Entry) ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, codecVersion)

	var err error
	buf, err = appendValue(buf, e.Value)
	if err != nil {
		return nil, err
	}

	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(e.FreshnessSeconds))

	if len(e.Metadata) == 0 {
		buf = append(buf, tagNull)
		return buf, nil
	}
	if len(e.Metadata) > maxMapEntries {
		return nil, fmt.Errorf("metadata map too large: %d entries", len(e.Metadata))
	}
	buf = append(buf, tagMap)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.Metadata)))
	for k, v := range e.Metadata {
		buf = appendString(buf, k)
		buf, err = appendValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeEntry parses the binary cache format. Any structural problem yields
// ErrCorruptEntry (wrapped), never a partial entry.
func DecodeEntry(data []byte) (*Entry, error) {
	r := reader{buf: data}

	version, err := r.byte()
	if err != nil {
		return nil, err
	}
	if version != codecVersion {
		return nil, fmt.Errorf("%w: version %#x", ErrCorruptEntry, version)
	}

	val, err := r.value()
	if err != nil {
		return nil, err
	}

	nanos, err := r.uint64()
	if err != nil {
		return nil, err
	}
	freshBits, err := r.uint64()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Value:            val,
		Timestamp:        time.Unix(0, int64(nanos)).UTC(),
		FreshnessSeconds: math.Float64frombits(freshBits),
	}

	metaTag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch metaTag {
	case tagNull:
	case tagMap:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		meta := make(map[string]feature.Value, n)
		for i := 0; i < int(n); i++ {
			k, err := r.str()
			if err != nil {
				return nil, err
			}
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			meta[k] = v
		}
		entry.Metadata = meta
	default:
		return nil, fmt.Errorf("%w: unexpected metadata tag %#x", ErrCorruptEntry, metaTag)
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptEntry, r.remaining())
	}
	return entry, nil
}

func appendValue(buf []byte, v feature.Value) ([]byte, error) {
	switch v.Kind {
	case feature.KindNull:
		return append(buf, tagNull), nil
	case feature.KindFloat64:
		buf = append(buf, tagFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Float)), nil
	case feature.KindInt64:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(v.Int)), nil
	case feature.KindString:
		buf = append(buf, tagString)
		return appendString(buf, v.Str), nil
	case feature.KindBool:
		buf = append(buf, tagBool)
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	default:
		return nil, fmt.Errorf("unencodable value kind %d", v.Kind)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// reader is a bounds-checked cursor over an encoded entry.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrCorruptEntry, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) str() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) value() (feature.Value, error) {
	tag, err := r.byte()
	if err != nil {
		return feature.Value{}, err
	}
	switch tag {
	case tagNull:
		return feature.Null(), nil
	case tagFloat:
		bits, err := r.uint64()
		if err != nil {
			return feature.Value{}, err
		}
		return feature.Float64(math.Float64frombits(bits)), nil
	case tagInt:
		bits, err := r.uint64()
		if err != nil {
			return feature.Value{}, err
		}
		return feature.Int64(int64(bits)), nil
	case tagString:
		s, err := r.str()
		if err != nil {
			return feature.Value{}, err
		}
		return feature.String(s), nil
	case tagBool:
		b, err := r.byte()
		if err != nil {
			return feature.Value{}, err
		}
		switch b {
		case 0:
			return feature.Bool(false), nil
		case 1:
			return feature.Bool(true), nil
		default:
			return feature.Value{}, fmt.Errorf("%w: bool byte %#x", ErrCorruptEntry, b)
		}
	default:
		return feature.Value{}, fmt.Errorf("%w: unknown value tag %#x", ErrCorruptEntry, tag)
	}
}
