package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// decompress reverses the Content-Encoding applied by the origin. The
// profiles advertise "gzip, deflate, br" explicitly, which disables the
// transport's automatic gunzip, so decoding happens here.
func decompress(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readAllLimited(zr)
	case "deflate":
		// Most origins send zlib-wrapped deflate; a few send it raw.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			return readAllLimited(zr)
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return readAllLimited(fr)
	case "br":
		return readAllLimited(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", contentEncoding)
	}
}

func readAllLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

// decodeCharset converts the document to UTF-8, sniffing the encoding from
// the Content-Type header, a BOM, or a meta tag in the first kilobyte.
func decodeCharset(body []byte, contentType string) ([]byte, string, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return body, name, nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, name, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, name, nil
}
