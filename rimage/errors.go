package rimage

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned for invalid construction or call parameters, e.g. a kernel of
	// the wrong length or a non-positive regularization weight.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrShapeMismatch is returned when a field does not have the expected (height, width).
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrPartialOutputs is returned when only some of a group of output fields are supplied.
	ErrPartialOutputs = errors.New("partial output arguments")
)

// NewShapeMismatchError is used when the field called name does not have the expected shape.
func NewShapeMismatchError(name string, expected, actual Shape) error {
	return errors.Wrapf(ErrShapeMismatch, "%s has shape %v but %v is required", name, actual, expected)
}

// NewFrameCountError is used when a temporal window receives the wrong number of frames.
func NewFrameCountError(expected, actual int) error {
	return errors.Wrapf(ErrShapeMismatch, "expected %d frames but got %d", expected, actual)
}

// NewKernelLengthError is used when a kernel does not have the number of taps its estimator needs.
func NewKernelLengthError(name string, expected, actual int) error {
	return errors.Wrapf(ErrConfiguration, "%s kernel must have %d taps but has %d", name, expected, actual)
}

// NewFixedKernelError is used when trying to replace the kernels of a fixed preset.
func NewFixedKernelError(preset Preset) error {
	return errors.Wrapf(ErrConfiguration, "kernels of the %s gradient are fixed", preset)
}

// NewPartialOutputsError is used when an output group is only partially supplied.
func NewPartialOutputsError(names ...string) error {
	return errors.Wrapf(ErrPartialOutputs, "%v must be all set or all nil", names)
}

// NewEmptyFieldError is used when the field called name is nil or has no samples.
func NewEmptyFieldError(name string) error {
	return errors.Wrapf(ErrShapeMismatch, "%s is empty", name)
}
