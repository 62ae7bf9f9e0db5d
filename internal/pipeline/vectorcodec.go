package pipeline

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a dense embedding as a flat little-endian
// float32 byte buffer, the wire format persisted under each embedding
// artifact's object key (spec.md §4.8.7-9: embeddings are raw vectors,
// not JSON documents).
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
