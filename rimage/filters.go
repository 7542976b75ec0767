package rimage

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/utils"
)

// LaplacianAverage is a neighbourhood averaging operator used to estimate the local mean of a
// velocity component. The Laplacian itself is the difference between that mean and the sample.
type LaplacianAverage int

const (
	// LaplacianOpenCV averages the four direct neighbours with weight 1/4.
	LaplacianOpenCV LaplacianAverage = iota
	// LaplacianHornSchunck weighs the direct neighbours 1/6 and the diagonal ones 1/12, as in
	// the 1981 paper.
	LaplacianHornSchunck
)

func (l LaplacianAverage) String() string {
	switch l {
	case LaplacianOpenCV:
		return "opencv"
	case LaplacianHornSchunck:
		return "hornschunck"
	}
	return "unknown"
}

// Kernel returns a fresh copy of the 3x3 weights of the operator.
func (l LaplacianAverage) Kernel() (*Kernel, error) {
	switch l {
	case LaplacianOpenCV:
		return &Kernel{[][]float64{
			{0, 0.25, 0},
			{0.25, 0, 0.25},
			{0, 0.25, 0},
		},
			3,
			3,
		}, nil
	case LaplacianHornSchunck:
		return &Kernel{[][]float64{
			{1. / 12, 1. / 6, 1. / 12},
			{1. / 6, 0, 1. / 6},
			{1. / 12, 1. / 6, 1. / 12},
		},
			3,
			3,
		}, nil
	}
	return nil, errors.Wrapf(ErrConfiguration, "unknown laplacian average %d", int(l))
}

// Apply writes the neighbourhood average of src into dst. Samples outside the field are
// mirrored about the border.
func (l LaplacianAverage) Apply(dst, src *mat.Dense) error {
	kernel, err := l.Kernel()
	if err != nil {
		return err
	}
	return ConvolveFloat64(dst, src, kernel)
}

// Average returns the neighbourhood average of src in a new field.
func (l LaplacianAverage) Average(src *mat.Dense) (*mat.Dense, error) {
	kernel, err := l.Kernel()
	if err != nil {
		return nil, err
	}
	return ConvolveGrayFloat64(src, kernel)
}

// Helper function for convolving matrices together, When used with i, dx := range makeRangeArray(n)
// i is the position within the kernel and dx gives the offset within the field.
// if length is even, then the origin is to the right of middle i.e. 4 -> {-2, -1, 0, 1}
func makeRangeArray(length int) []int {
	if length <= 0 {
		return make([]int, 0)
	}
	rangeArray := make([]int, length)
	var span int
	if length%2 == 0 {
		oddArr := makeRangeArray(length - 1)
		span = length / 2
		rangeArray = append([]int{-span}, oddArr...)
	} else {
		span = (length - 1) / 2
		for i := 0; i < span; i++ {
			rangeArray[length-1-i] = span - i
			rangeArray[i] = -span + i
		}
	}
	return rangeArray
}

// GaussianFunction1D takes in a sigma and returns a gaussian function useful for weighing averages or blurring.
func GaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*p*p/(sigma*sigma)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// GaussianKernel1D returns a normalized, odd length Gaussian covering about 4 sigma each side.
func GaussianKernel1D(sigma float64) (Kernel1D, error) {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, errors.Wrapf(ErrConfiguration, "gaussian sigma must be positive and finite, got %v", sigma)
	}
	gaus := GaussianFunction1D(sigma)
	k := utils.MaxInt(3, 1+2*int(math.Ceil(4.*sigma)))
	kernel := make(Kernel1D, k)
	for i, x := range makeRangeArray(k) {
		kernel[i] = gaus(float64(x))
	}
	sum := kernel.Sum()
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel, nil
}

// SmoothField blurs src with a separable Gaussian of the given sigma. A sigma of zero returns a
// copy of src.
func SmoothField(src *mat.Dense, sigma float64) (*mat.Dense, error) {
	if src == nil || src.IsEmpty() {
		return nil, errors.Wrap(ErrShapeMismatch, "cannot smooth an empty field")
	}
	if sigma == 0 {
		return mat.DenseCopyOf(src), nil
	}
	kernel, err := GaussianKernel1D(sigma)
	if err != nil {
		return nil, err
	}
	shape := ShapeOf(src)
	tmp, dst := NewField(shape), NewField(shape)
	if err := Convolve1D(tmp, src, kernel, AxisX); err != nil {
		return nil, err
	}
	if err := Convolve1D(dst, tmp, kernel, AxisY); err != nil {
		return nil, err
	}
	return dst, nil
}
