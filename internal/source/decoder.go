package source

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/beamlinehq/hitwriter/internal/record"
)

// ErrInvalidCapture is returned when a capture payload cannot be decoded.
var ErrInvalidCapture = errors.New("invalid capture payload")

// Decoder turns capture payloads into event bundles. Captures are JSON,
// optionally zstd-compressed.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a capture decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// DecodeCompressed decodes a zstd-compressed JSON capture.
func (d *Decoder) DecodeCompressed(data []byte) (*record.EventBundle, error) {
	raw, err := d.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return d.DecodeRaw(raw)
}

// DecodeRaw decodes an uncompressed JSON capture.
func (d *Decoder) DecodeRaw(data []byte) (*record.EventBundle, error) {
	var bundle record.EventBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}
	return &bundle, nil
}

// Decode dispatches on the compressed flag.
func (d *Decoder) Decode(data []byte, compressed bool) (*record.EventBundle, error) {
	if compressed {
		return d.DecodeCompressed(data)
	}
	return d.DecodeRaw(data)
}
