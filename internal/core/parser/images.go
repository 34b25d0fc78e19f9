package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/url"
	"strings"
)

var errNotDataURI = errors.New("image source is not a data: URI")

// decodeDataURI returns the payload of a data: URI.
func decodeDataURI(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "data:") {
		return nil, fmt.Errorf("%w: %.40q", errNotDataURI, src)
	}
	meta, payload, ok := strings.Cut(src[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// toPNG re-encodes any decodable raster image as PNG. PNG input is returned
// as is.
func toPNG(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// dataURIImage builds a lazy accessor for an embedded image.
func dataURIImage(src string) func() ([]byte, error) {
	return func() ([]byte, error) {
		raw, err := decodeDataURI(src)
		if err != nil {
			return nil, err
		}
		return toPNG(raw)
	}
}
