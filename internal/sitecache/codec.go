package sitecache

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// Codec compresses cached payloads.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Brotli compresses with the brotli format. Generated HTML shrinks well under it.
type Brotli struct {
	Quality int
}

// NewBrotli returns a Brotli codec with the default quality.
func NewBrotli() Brotli {
	return Brotli{Quality: brotli.DefaultCompression}
}

func (codec Brotli) Encode(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := brotli.NewWriterLevel(&buffer, codec.Quality)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (codec Brotli) Decode(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

// Nop stores payloads as is.
type Nop struct{}

func (Nop) Encode(data []byte) ([]byte, error) {
	return data, nil
}

func (Nop) Decode(data []byte) ([]byte, error) {
	return data, nil
}
