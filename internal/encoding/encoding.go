// Package encoding holds the persistence codecs shared by the memory store:
// fixed-width little-endian float32 vectors, JSON scalar metadata, and
// sortable ISO-8601 timestamps.
package encoding

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidVector is returned when vector data cannot be encoded or decoded
var ErrInvalidVector = errors.New("invalid vector data")

// TimeLayout is the stored timestamp format. Fixed-width UTC so that string
// comparison orders the same as time comparison.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// EncodeVector converts a float32 slice to a fixed-width little-endian byte
// blob. The dimension is not embedded; it is stored alongside the blob.
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}

	buf := make([]byte, len(vector)*4)
	for i, val := range vector {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite component at index %d", ErrInvalidVector, i)
		}
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}

	return buf, nil
}

// DecodeVector converts a byte blob back to a float32 slice. The expected
// dimension comes from the column stored next to the blob.
func DecodeVector(data []byte, dimensions int) ([]float32, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidVector, dimensions)
	}
	if len(data) != dimensions*4 {
		return nil, fmt.Errorf("%w: expected %d bytes for %d dimensions, got %d", ErrInvalidVector, dimensions*4, dimensions, len(data))
	}

	vector := make([]float32, dimensions)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return vector, nil
}

// EncodeMetadata converts a scalar metadata map to a compact JSON string.
// A nil map encodes to the empty string, which is stored as NULL.
func EncodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "", nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	return string(data), nil
}

// DecodeMetadata converts a JSON string back to a metadata map.
func DecodeMetadata(jsonStr string) (map[string]any, error) {
	if jsonStr == "" {
		return nil, nil
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return metadata, nil
}

// EncodeTime formats a timestamp in the stored layout.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DecodeTime parses a stored timestamp.
func DecodeTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode timestamp %q: %w", s, err)
	}
	return t, nil
}
