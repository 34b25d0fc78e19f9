package parser

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"

	pdflib "github.com/ledongthuc/pdf"
)

// ErrUnsupportedImage marks image encodings the PDF reader cannot decode.
var ErrUnsupportedImage = errors.New("unsupported pdf image encoding")

// pageImages lists the image XObjects drawn on a page as picture elements.
// Decoding is deferred to the element's Image accessor.
func pageImages(r *pdflib.Reader, num, minSide int) []Element {
	var out []Element
	err := safely(func() error {
		xobjs := r.Page(num).Resources().Key("XObject")
		names := xobjs.Keys()
		sort.Strings(names)
		for _, name := range names {
			x := xobjs.Key(name)
			if x.Key("Subtype").Name() != "Image" {
				continue
			}
			w, h := int(x.Key("Width").Int64()), int(x.Key("Height").Int64())
			if w < minSide || h < minSide {
				continue
			}
			out = append(out, Element{Kind: KindPicture, Text: name, Page: num, Image: xobjectImage(x)})
		}
		return nil
	})
	if err != nil {
		return []Element{{Kind: KindPicture, Page: num, Err: err}}
	}
	return out
}

func xobjectImage(x pdflib.Value) func() ([]byte, error) {
	return func() (data []byte, err error) {
		err = safely(func() error {
			var derr error
			data, derr = decodeXObject(x)
			return derr
		})
		return data, err
	}
}

func decodeXObject(x pdflib.Value) ([]byte, error) {
	for _, f := range filterNames(x.Key("Filter")) {
		if f != "FlateDecode" && f != "ASCII85Decode" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, f)
		}
	}
	w, h := int(x.Key("Width").Int64()), int(x.Key("Height").Int64())
	bpc := int(x.Key("BitsPerComponent").Int64())
	if bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, bpc)
	}
	comps, err := colorComponents(x.Key("ColorSpace"))
	if err != nil {
		return nil, err
	}

	rc := x.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read image stream: %w", err)
	}
	img, err := rasterize(raw, w, h, comps)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func filterNames(v pdflib.Value) []string {
	switch v.Kind() {
	case pdflib.Name:
		return []string{v.Name()}
	case pdflib.Array:
		names := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			names = append(names, v.Index(i).Name())
		}
		return names
	}
	return nil
}

// colorComponents returns samples per pixel for device and ICC colour
// spaces.
func colorComponents(cs pdflib.Value) (int, error) {
	name := cs.Name()
	if cs.Kind() == pdflib.Array && cs.Len() > 0 {
		name = cs.Index(0).Name()
		if name == "ICCBased" && cs.Len() > 1 {
			if n := int(cs.Index(1).Key("N").Int64()); n == 1 || n == 3 || n == 4 {
				return n, nil
			}
		}
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1, nil
	case "DeviceRGB", "CalRGB":
		return 3, nil
	case "DeviceCMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: colour space %q", ErrUnsupportedImage, name)
}

// rasterize builds an image from 8-bit interleaved samples.
func rasterize(raw []byte, w, h, comps int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedImage, w, h)
	}
	if need := w * h * comps; len(raw) < need {
		return nil, fmt.Errorf("image stream too short: %d bytes, want %d", len(raw), need)
	}
	rect := image.Rect(0, 0, w, h)
	switch comps {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, raw[:w*h])
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = raw[i*3], raw[i*3+1], raw[i*3+2], 0xff
		}
		return img, nil
	case 4:
		img := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			c := color.CMYK{C: raw[i*4], M: raw[i*4+1], Y: raw[i*4+2], K: raw[i*4+3]}
			r, g, b := color.CMYKToRGB(c.C, c.M, c.Y, c.K)
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = r, g, b, 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %d components", ErrUnsupportedImage, comps)
}
