package asset

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// ErrUnsupportedFormat is returned for encodings the engine cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported output format")

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

// targetSize resolves the output box for a source of sw x sh. The result
// never exceeds the source; when shrinking, the requested aspect is kept.
func targetSize(sw, sh, width, height int) (int, int) {
	if width <= 0 {
		width = sw
	}
	if height <= 0 {
		height = max(1, (sh*width+sw/2)/sw)
	}
	if width > sw || height > sh {
		// shrink the box uniformly until it fits inside the source
		if width*sh >= height*sw {
			width, height = sw, max(1, height*sw/width)
		} else {
			width, height = max(1, width*sh/height), sh
		}
	}
	return width, height
}

// cropRect returns the centered region of src with the aspect of w x h.
func cropRect(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	cw, ch := sw, sh
	if sw*h > sh*w {
		cw = max(1, sh*w/h)
	} else {
		ch = max(1, sw*h/w)
	}
	x0 := src.Min.X + (sw-cw)/2
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func resize(src image.Image, width, height int) *image.RGBA {
	b := src.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, cropRect(b, w, h), draw.Src, nil)
	return dst
}

func encode(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return buf.Bytes(), nil
}

// placeholder renders a blurred preview width pixels wide as a PNG data URI
// and returns it with the image's average color.
func placeholder(src image.Image, width int) (string, string, error) {
	b := src.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), width, 0)

	// Downscale to a quarter of the preview and back up; bilinear upsampling of
	// so few pixels produces the blur.
	tw, th := max(1, w/4), max(1, h/4)
	tiny := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(tiny, tiny.Bounds(), src, b, draw.Src, nil)
	preview := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(preview, preview.Bounds(), tiny, tiny.Bounds(), draw.Src, nil)

	data, err := encode(preview, FormatPNG, 0)
	if err != nil {
		return "", "", err
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	return uri, hexColor(averageColor(tiny)), nil
}

func averageColor(img *image.RGBA) color.RGBA {
	var r, g, b, n uint64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 0xff}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
