package segment

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression algorithm used for segment
// sections.
type Compression uint8

const (
	// CompressionNone stores sections uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, good for hot data).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio).
	CompressionZSTD Compression = 2
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock compresses data with the requested algorithm. It returns the
// compressed bytes and the algorithm actually used: when compression does
// not shrink the block, the raw bytes are returned with CompressionNone.
func compressBlock(c Compression, data []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buf)
		if err != nil || n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return buf[:n], CompressionLZ4, nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		out := enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
		if len(out) >= len(data) {
			return data, CompressionNone, nil
		}
		return out, CompressionZSTD, nil

	default:
		return nil, 0, fmt.Errorf("unknown compression type: %d", c)
	}
}

// decompressBlock reverses compressBlock.
func decompressBlock(c Compression, data []byte, uncompressedLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		out := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		return out[:n], nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(data, make([]byte, 0, uncompressedLen))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression type: %d", c)
	}
}
