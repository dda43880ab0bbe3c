package cache

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm an archive was compressed with. The
// tag is stored as the first byte of every blob; changing the values breaks
// existing cache entries.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// String returns the human-readable name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q: must be 'zstd', 'lz4' or 'none'", name)
	}
}

var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are safe for concurrent use and reused across
// calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// seal compresses data and prefixes the header: one tag byte followed by the
// uncompressed length as a uvarint. Data that does not shrink is stored
// uncompressed.
func seal(data []byte, tag Compression) ([]byte, error) {
	payload, err := compressPayload(data, tag)
	if errors.Is(err, errIncompressible) {
		payload, tag = data, CompressionNone
	} else if err != nil {
		return nil, err
	}

	header := make([]byte, 1+binary.MaxVarintLen64)
	header[0] = byte(tag)
	n := binary.PutUvarint(header[1:], uint64(len(data)))
	return append(header[:1+n], payload...), nil
}

// unseal reverses seal.
func unseal(blob []byte) ([]byte, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("cache blob too short: %d bytes", len(blob))
	}
	tag := Compression(blob[0])
	size, n := binary.Uvarint(blob[1:])
	if n <= 0 {
		return nil, fmt.Errorf("cache blob has a corrupt length header")
	}
	payload := blob[1+n:]

	switch tag {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil
	case CompressionZstd:
		dst, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(dst)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(dst), size)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressPayload(data []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return dst[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
