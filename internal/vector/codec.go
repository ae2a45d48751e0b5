package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedEmbedding is returned when a stored embedding cannot be decoded
// by any supported path.
var ErrMalformedEmbedding = errors.New("malformed embedding")

// EncodeEmbedding packs floats as little-endian IEEE-754 float32 values,
// four bytes per dimension and no header.
func EncodeEmbedding(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding converts a stored embedding into a float32 slice.
//
// The primary encoding is the packed little-endian buffer written by
// EncodeEmbedding. Older corpora stored a JSON array of numbers; that form is
// tried first when the buffer looks like one, and the packed decoder is used
// if the JSON parse fails.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedEmbedding)
	}

	if looksLikeJSONArray(data) {
		if floats, err := decodeJSON(data); err == nil {
			return floats, nil
		}
	}

	return decodePacked(data)
}

func looksLikeJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) >= 2 && trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']'
}

func decodePacked(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of 4", ErrMalformedEmbedding, len(data))
	}

	floats := make([]float32, len(data)/4)
	for i := range floats {
		f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		if !isFinite(float64(f)) {
			return nil, fmt.Errorf("%w: non-finite value at dimension %d", ErrMalformedEmbedding, i)
		}
		floats[i] = f
	}
	return floats, nil
}

func decodeJSON(data []byte) ([]float32, error) {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedEmbedding)
	}

	floats := make([]float32, len(values))
	for i, v := range values {
		f := float32(v)
		if !isFinite(float64(f)) {
			return nil, fmt.Errorf("%w: value at dimension %d overflows float32", ErrMalformedEmbedding, i)
		}
		floats[i] = f
	}
	return floats, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
