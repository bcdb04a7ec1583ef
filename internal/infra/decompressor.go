package infra

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding lists the content codings Decompress understands.
const AcceptEncoding = "gzip, deflate, br"

// DecompressResult contains the result of a decompression operation.
type DecompressResult struct {
	Data             []byte
	CompressedSize   int
	DecompressedSize int
}

// Decompress decodes data according to a Content-Encoding header value.
// Identity and unknown codings are returned unchanged.
func Decompress(data []byte, encoding string) (*DecompressResult, error) {
	var (
		reader io.Reader
		err    error
	)

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(data))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(data))
	default:
		return &DecompressResult{
			Data:             data,
			CompressedSize:   len(data),
			DecompressedSize: len(data),
		}, nil
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}

	return &DecompressResult{
		Data:             decompressed,
		CompressedSize:   len(data),
		DecompressedSize: len(decompressed),
	}, nil
}
