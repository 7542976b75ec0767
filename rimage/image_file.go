package rimage

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	// register webp.
	_ "golang.org/x/image/webp"
)

// ReadImageFromFile decodes any registered image format (png, jpeg, gif, bmp, tiff, webp, qoi
// and ppm).
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// ReadGrayField reads an image, reduces it to 8-bit luminance and widens it into a float64 field.
// If width is positive the image is first scaled to that width, keeping its aspect ratio.
func ReadGrayField(path string, width uint) (*mat.Dense, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	if width > 0 {
		img = ResizeImage(img, width)
	}
	return FieldFromImage(img), nil
}

// ResizeImage scales img to the given width with bilinear interpolation, keeping its aspect ratio.
func ResizeImage(img image.Image, width uint) image.Image {
	if uint(img.Bounds().Dx()) == width {
		return img
	}
	return resize.Resize(width, 0, img, resize.Bilinear)
}

// ResizeField scales a field to the given width with bilinear interpolation, keeping its aspect
// ratio. A field already at that width is copied unchanged.
func ResizeField(m *mat.Dense, width uint) (*mat.Dense, error) {
	shape := ShapeOf(m)
	if shape.Size() == 0 {
		return nil, NewEmptyFieldError("field")
	}
	if width == 0 {
		return nil, errors.Wrap(ErrConfiguration, "cannot resize to a zero width")
	}
	if uint(shape.Width) == width {
		return mat.DenseCopyOf(m), nil
	}
	img := image.NewGray16(image.Rect(0, 0, shape.Width, shape.Height))
	// 16 bit samples keep the 8 bit range exact; values outside [0, 255] saturate.
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			v := m.At(y, x)
			switch {
			case v < 0:
				v = 0
			case v > 255:
				v = 255
			}
			img.Pix[y*img.Stride+2*x] = uint8(v)
			img.Pix[y*img.Stride+2*x+1] = uint8(256 * (v - float64(uint8(v))))
		}
	}
	resized := resize.Resize(width, 0, img, resize.Bilinear)
	bounds := resized.Bounds()
	out := mat.NewDense(bounds.Dy(), bounds.Dx(), nil)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := resized.At(x, y).RGBA()
			out.Set(y-bounds.Min.Y, x-bounds.Min.X, float64(r)/256)
		}
	}
	return out, nil
}

// WriteImageToFile encodes img by the extension of path. PPM and QOI have their own encoders and
// every other extension is written with imaging.
func WriteImageToFile(path string, img image.Image) (err error) {
	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm":
		encode = ppm.Encode
	case ".qoi":
		encode = qoi.Encode
	default:
		if err := imaging.Save(img, path); err != nil {
			return errors.Wrapf(err, "cannot write image %q", path)
		}
		return nil
	}

	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return encode(f, img)
}
