package imaging

import (
	"crypto/sha1" //nolint:gosec // cache key, not a security boundary
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// ResizeOpts describes one requested transform (spec §4.G "resize=" query,
// or a watermark-path match).
type ResizeOpts struct {
	Width     int
	Height    int
	Watermark string // absolute path to a PNG overlay, empty if none
}

// cacheKey builds a stable cache key, using it so identical (source,
// opts) requests reuse the same generated file.
func (o ResizeOpts) cacheKey(srcPath string) string {
	h := sha1.New() //nolint:gosec // cache key, not a security boundary
	fmt.Fprintf(h, "%s|%dx%d|%s", srcPath, o.Width, o.Height, o.Watermark)

	return hex.EncodeToString(h.Sum(nil))
}

// Transformer resizes and optionally watermarks images, caching generated
// variants under cacheDir.
type Transformer struct {
	cacheDir string
}

// NewTransformer roots generated variants at cacheDir.
func NewTransformer(cacheDir string) *Transformer {
	return &Transformer{cacheDir: cacheDir}
}

// Transform decodes the image at srcPath, applies opts, and returns the
// path to the generated variant — creating cacheDir if needed and reusing
// an already-generated variant for the same (srcPath, opts) pair.
func (t *Transformer) Transform(srcPath string, opts ResizeOpts) (string, error) {
	ext := strings.ToLower(filepath.Ext(srcPath))

	outPath := filepath.Join(t.cacheDir, opts.cacheKey(srcPath)+ext)

	if _, err := os.Stat(outPath); err == nil {
		return outPath, nil
	}

	src, err := os.Open(srcPath) // #nosec G304 -- srcPath is hub-resolved, not attacker input
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("imaging: decode %s: %w", srcPath, err)
	}

	resized := resize(img, opts.Width, opts.Height)

	if opts.Watermark != "" {
		resized, err = applyWatermark(resized, opts.Watermark)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(t.cacheDir, 0o755); err != nil {
		return "", err
	}

	if err := writeImage(outPath, resized, format); err != nil {
		return "", err
	}

	return outPath, nil
}

// resize scales src with a Catmull-Rom kernel. When both dimensions are
// given the result is exactly width x height; when only one is given the
// other is derived from src's aspect ratio.
func resize(src image.Image, width, height int) image.Image {
	b := src.Bounds()

	if width == 0 && height == 0 {
		return src
	}

	if width == 0 {
		width = b.Dx() * height / b.Dy()
	}

	if height == 0 {
		height = b.Dy() * width / b.Dx()
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	return dst
}

func applyWatermark(base image.Image, watermarkPath string) (image.Image, error) {
	f, err := os.Open(watermarkPath) // #nosec G304 -- watermarkPath is operator-configured
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mark, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode watermark %s: %w", watermarkPath, err)
	}

	b := base.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, base, image.Point{}, draw.Src)

	mb := mark.Bounds()
	offset := image.Pt(b.Dx()-mb.Dx()-8, b.Dy()-mb.Dy()-8)
	draw.Draw(out, mb.Add(offset), mark, image.Point{}, draw.Over)

	return out, nil
}

func writeImage(path string, img image.Image, format string) error {
	f, err := os.Create(path) // #nosec G304 -- path is derived from a cache key computed above
	if err != nil {
		return err
	}
	defer f.Close()

	return encode(f, img, format)
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
	case "gif":
		return gif.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}
