package rimage

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/utils"
)

// Shape is the (height, width) of a scalar field. In a mat.Dense the height is the number of
// rows and the width the number of columns.
type Shape struct {
	Height int
	Width  int
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Height, s.Width)
}

// Validate checks that both dimensions are positive.
func (s Shape) Validate() error {
	if s.Height <= 0 || s.Width <= 0 {
		return errors.Wrapf(ErrConfiguration, "shape %v must have a positive height and width", s)
	}
	return nil
}

// Size returns the number of samples in a field of this shape.
func (s Shape) Size() int {
	return s.Height * s.Width
}

// ShapeOf returns the shape of m, or the zero Shape for a nil matrix.
func ShapeOf(m *mat.Dense) Shape {
	if m == nil || m.IsEmpty() {
		return Shape{}
	}
	h, w := m.Dims()
	return Shape{Height: h, Width: w}
}

// NewField allocates a zero filled field of the given shape.
func NewField(s Shape) *mat.Dense {
	return mat.NewDense(s.Height, s.Width, nil)
}

// CheckShape returns a shape mismatch error naming the field if m is nil or not of shape s.
func CheckShape(name string, m *mat.Dense, s Shape) error {
	if actual := ShapeOf(m); actual != s {
		return NewShapeMismatchError(name, s, actual)
	}
	return nil
}

// sameMatrix reports whether a and b are backed by the same first element.
func sameMatrix(a, b *mat.Dense) bool {
	ra, rb := a.RawMatrix(), b.RawMatrix()
	return len(ra.Data) > 0 && len(rb.Data) > 0 && &ra.Data[0] == &rb.Data[0]
}

// FieldFromUint8 widens row-major 8-bit samples into a float64 field. Casting is the only
// transformation applied.
func FieldFromUint8(s Shape, pix []uint8) (*mat.Dense, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(pix) != s.Size() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d samples cannot fill a field of shape %v", len(pix), s)
	}
	data := make([]float64, len(pix))
	for i, p := range pix {
		data[i] = float64(p)
	}
	return mat.NewDense(s.Height, s.Width, data), nil
}

// FieldFromGray widens a grayscale image into a float64 field.
func FieldFromGray(img *image.Gray) *mat.Dense {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	m := mat.NewDense(h, w, nil)
	raw := m.RawMatrix()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		out := raw.Data[y*raw.Stride : y*raw.Stride+w]
		for x, p := range row {
			out[x] = float64(p)
		}
	}
	return m
}

// FieldFromImage converts any image to 8-bit luminance and widens it into a float64 field.
func FieldFromImage(img image.Image) *mat.Dense {
	if gray, ok := img.(*image.Gray); ok {
		return FieldFromGray(gray)
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, _ := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, c)
		}
	}
	return FieldFromGray(gray)
}

// FieldToGray linearly maps the range of finite values in m onto [0, 255]. A constant field maps
// to black and non-finite samples are drawn black.
func FieldToGray(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	img := image.NewGray(image.Rect(0, 0, w, h))
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if !(span > 0) {
		return img
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			img.SetGray(x, y, color.Gray{uint8(utils.ClampF64(255*(v-lo)/span, 0, 255))})
		}
	}
	return img
}
