package protocol

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// DecodeFrame strips the scheme byte of a server frame and returns the JSON
// body, decompressing it when needed.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errors.New("empty frame")
	}
	body := frame[1:]
	switch frame[0] {
	case frameUncompressed:
		return bytes.Clone(body), nil
	case frameGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip frame: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip frame: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported frame scheme %d", frame[0])
	}
}

// EncodeFrame prefixes body with the scheme byte for compression, compressing
// it when compression is gzip.
func EncodeFrame(compression Compression, body []byte) ([]byte, error) {
	if compression != CompressionGzip {
		return append([]byte{frameUncompressed}, body...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(frameGzip)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
