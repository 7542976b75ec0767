package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/utils"
)

// Axis selects the direction a 1D kernel is applied along.
type Axis int

const (
	// AxisX runs along a row (the width, i.e. matrix columns).
	AxisX Axis = iota
	// AxisY runs along a column (the height, i.e. matrix rows).
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	}
	return "unknown"
}

// Kernel is a 2D, possibly non-separable, convolution matrix.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// NewKernel checks that content is a non-empty rectangle and wraps it.
func NewKernel(content [][]float64) (*Kernel, error) {
	if len(content) == 0 || len(content[0]) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "kernel cannot be empty")
	}
	w := len(content[0])
	for _, row := range content {
		if len(row) != w {
			return nil, errors.Wrap(ErrConfiguration, "kernel rows must all have the same length")
		}
	}
	return &Kernel{Content: content, Height: len(content), Width: w}, nil
}

// At returns the kernel weight at column x and row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the width and height of the kernel.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction, written
// for correlation. It equals the separable Sobel pair applied with Convolve1D.
func GetSobelX() Kernel {
	return Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	},
		3,
		3,
	}
}

func checkDestination(dst, src *mat.Dense) error {
	if src == nil {
		return NewShapeMismatchError("source", ShapeOf(dst), Shape{})
	}
	if err := CheckShape("destination", dst, ShapeOf(src)); err != nil {
		return err
	}
	if sameMatrix(dst, src) {
		return errors.Wrap(ErrConfiguration, "destination cannot share memory with the source")
	}
	return nil
}

// Convolve1D convolves src with kernel along axis and writes the result into dst, which must
// have the shape of src and must not share its memory.
//
// The kernel is mirrored, as in a true convolution: dst[i] = sum_j kernel[j] * src[i + n/2 - j]
// with n = len(kernel). Specifying [+1, 0, -1] therefore yields the sliding difference
// src[i+1] - src[i-1], and the two tap [+1, -1] the forward difference src[i+1] - src[i].
//
// Samples outside the field are mirrored about the border, repeating the edge sample
// (BorderReflect), so derivatives at the border are not biased towards zero.
func Convolve1D(dst, src *mat.Dense, kernel Kernel1D, axis Axis) error {
	if len(kernel) == 0 {
		return errors.Wrap(ErrConfiguration, "kernel cannot be empty")
	}
	if err := checkDestination(dst, src); err != nil {
		return err
	}
	h, w := src.Dims()
	in, out := src.RawMatrix(), dst.RawMatrix()
	n := len(kernel)
	anchor := n / 2

	switch axis {
	case AxisX:
		return utils.ParallelForEachRow(h, w, func(y int) {
			row := in.Data[y*in.Stride : y*in.Stride+w]
			dstRow := out.Data[y*out.Stride : y*out.Stride+w]
			for x := 0; x < w; x++ {
				sum := 0.0
				for j, k := range kernel {
					idx := x + anchor - j
					if idx < 0 || idx >= w {
						idx = utils.ReflectIndex(idx, w)
					}
					sum += k * row[idx]
				}
				dstRow[x] = sum
			}
		})
	case AxisY:
		return utils.ParallelForEachRow(h, w, func(y int) {
			dstRow := out.Data[y*out.Stride : y*out.Stride+w]
			for x := range dstRow {
				dstRow[x] = 0
			}
			for j, k := range kernel {
				idx := y + anchor - j
				if idx < 0 || idx >= h {
					idx = utils.ReflectIndex(idx, h)
				}
				row := in.Data[idx*in.Stride : idx*in.Stride+w]
				for x, v := range row {
					dstRow[x] += k * v
				}
			}
		})
	default:
		return errors.Wrapf(ErrConfiguration, "unknown axis %d", axis)
	}
}

// ConvolveFrames applies kernel along time across a window of frames and writes the result into
// dst. The window length must equal the kernel length and the result is anchored on the middle
// frame of odd windows and the first frame of a two frame window:
// dst = sum_j kernel[j] * frames[n-1-j].
func ConvolveFrames(dst *mat.Dense, frames []*mat.Dense, kernel Kernel1D) error {
	n := len(kernel)
	if n == 0 {
		return errors.Wrap(ErrConfiguration, "kernel cannot be empty")
	}
	if len(frames) != n {
		return NewFrameCountError(n, len(frames))
	}
	shape := ShapeOf(dst)
	for i, f := range frames {
		if err := checkDestination(dst, f); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
	}
	out := dst.RawMatrix()
	return utils.ParallelForEachRow(shape.Height, shape.Width, func(y int) {
		dstRow := out.Data[y*out.Stride : y*out.Stride+shape.Width]
		for x := range dstRow {
			dstRow[x] = 0
		}
		for j, k := range kernel {
			in := frames[n-1-j].RawMatrix()
			row := in.Data[y*in.Stride : y*in.Stride+shape.Width]
			for x, v := range row {
				dstRow[x] += k * v
			}
		}
	})
}

// ConvolveFloat64 correlates src with a 2D kernel anchored on its center and writes the result
// into dst, mirroring samples about the border like Convolve1D. There is no clamping.
func ConvolveFloat64(dst, src *mat.Dense, filter *Kernel) error {
	if filter == nil || filter.Width == 0 || filter.Height == 0 {
		return errors.Wrap(ErrConfiguration, "kernel cannot be empty")
	}
	if err := checkDestination(dst, src); err != nil {
		return err
	}
	h, w := src.Dims()
	in, out := src.RawMatrix(), dst.RawMatrix()
	kernelSize := filter.Size()
	anchor := image.Point{kernelSize.X / 2, kernelSize.Y / 2}

	return utils.ParallelForEachRow(h, w, func(y int) {
		dstRow := out.Data[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			sum := 0.0
			for ky := 0; ky < kernelSize.Y; ky++ {
				py := y + ky - anchor.Y
				if py < 0 || py >= h {
					py = utils.ReflectIndex(py, h)
				}
				row := in.Data[py*in.Stride : py*in.Stride+w]
				for kx := 0; kx < kernelSize.X; kx++ {
					kE := filter.At(kx, ky)
					if kE == 0 {
						continue
					}
					px := x + kx - anchor.X
					if px < 0 || px >= w {
						px = utils.ReflectIndex(px, w)
					}
					sum += row[px] * kE
				}
			}
			dstRow[x] = sum
		}
	})
}

// ConvolveGrayFloat64 implements a gray float64 image convolution with the Kernel filter,
// returning a newly allocated result.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) (*mat.Dense, error) {
	if m == nil || m.IsEmpty() {
		return nil, errors.Wrap(ErrShapeMismatch, "cannot convolve an empty field")
	}
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	if err := ConvolveFloat64(result, m, filter); err != nil {
		return nil, err
	}
	return result, nil
}
