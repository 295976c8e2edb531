package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEnvelope is returned when stored bytes are too short to carry a type id
var ErrInvalidEnvelope = errors.New("invalid value envelope")

// EnvelopeHeaderSize is the size of the type id prefix
const EnvelopeHeaderSize = 4

// AppendEnvelope appends a type id prefix followed by the payload to buf.
// Layout: [int32 little-endian type id][payload bytes]
func AppendEnvelope(buf []byte, typeID int32, payload []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(typeID))
	return append(buf, payload...)
}

// SplitEnvelope returns the type id and payload of an envelope. The payload
// aliases data.
func SplitEnvelope(data []byte) (int32, []byte, error) {
	if len(data) < EnvelopeHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(data))
	}
	typeID := int32(binary.LittleEndian.Uint32(data))
	if typeID <= 0 {
		return 0, nil, fmt.Errorf("%w: type id %d", ErrInvalidEnvelope, typeID)
	}
	return typeID, data[EnvelopeHeaderSize:], nil
}

// OrderedUint64 maps v onto an int64 so that signed comparison of the result
// matches unsigned comparison of the input.
func OrderedUint64(v uint64) int64 {
	return int64(v ^ (1 << 63))
}

// FromOrderedUint64 is the inverse of OrderedUint64
func FromOrderedUint64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

// Float64Bits returns the IEEE 754 bits of f in little-endian order
func Float64Bits(f float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f))
}

// Int64Bytes returns v in little-endian order
func Int64Bytes(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}
