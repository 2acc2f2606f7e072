package badger

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/poiesic/insightdocs/vectorindex"
)

// errTruncatedValue indicates a stored value was shorter than its own
// length headers claim.
var errTruncatedValue = errors.New("truncated vector entry value")

// Value layout, little-endian:
//
//	u32 dimension
//	dimension * f32 vector
//	u32 payload pair count
//	per pair: u32 key length, key bytes, u32 value length, value bytes
//
// Vectors are fixed-dimension float32, so a fixed binary layout is both
// compact and zero-dependency to decode.

func marshalEntry(e vectorindex.Entry) []byte {
	size := 4 + 4*len(e.Vector) + 4
	for k, v := range e.Payload {
		size += 8 + len(k) + len(v)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Vector)))
	for _, f := range e.Vector {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Payload)))
	for k, v := range e.Payload {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func unmarshalEntry(externalID string, data []byte) (vectorindex.Entry, error) {
	e := vectorindex.Entry{ExternalID: externalID}

	dim, data, err := readUint32(data)
	if err != nil {
		return e, err
	}
	if uint32(len(data)) < dim*4 {
		return e, errTruncatedValue
	}
	e.Vector = make([]float32, dim)
	for i := range e.Vector {
		e.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	data = data[dim*4:]

	pairs, data, err := readUint32(data)
	if err != nil {
		return e, err
	}
	if pairs > 0 {
		e.Payload = make(map[string]string, pairs)
	}
	for i := uint32(0); i < pairs; i++ {
		var k, v string
		k, data, err = readString(data)
		if err != nil {
			return e, err
		}
		v, data, err = readString(data)
		if err != nil {
			return e, err
		}
		e.Payload[k] = v
	}
	return e, nil
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errTruncatedValue
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}

func readString(data []byte) (string, []byte, error) {
	n, rest, err := readUint32(data)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < n {
		return "", nil, errTruncatedValue
	}
	return string(rest[:n]), rest[n:], nil
}
