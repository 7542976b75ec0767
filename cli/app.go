// Package cli contains the optflow command line: flow estimation and gradient inspection over
// image files.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"go.viam.com/optflow/rimage"
	"go.viam.com/optflow/vision/opticalflow"
)

const (
	// Global flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagLogFile = "log-file"

	// Flow and gradient flags.
	flagMethod     = "method"
	flagAlpha      = "alpha"
	flagIterations = "iterations"
	flagBlur       = "blur"
	flagResize     = "resize"
	flagOutput     = "output"
	flagFormat     = "format"
	flagArrowStep  = "arrow-step"
	flagArrowScale = "arrow-scale"
	flagTrace      = "trace"
	flagBins       = "bins"
	flagPreset     = "preset"
	flagDifference = "difference"
	flagAverage    = "average"
)

// frameFlags are the image flags shared by both commands.
func frameFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  flagBlur,
			Usage: "standard deviation of a Gaussian applied to every frame, 0 disables it",
		},
		&cli.UintFlag{
			Name:  flagResize,
			Usage: "scale the frames to this width before estimating, keeping the aspect ratio",
		},
		&cli.PathFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Value:   ".",
			Usage:   "directory the images are written to",
		},
		&cli.StringFlag{
			Name:  flagFormat,
			Value: "png",
			Usage: "image format of the outputs: png, jpg, bmp, tiff, ppm or qoi",
		},
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "optflow",
		Usage:           "estimate dense optical flow between image frames",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load flow parameters from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated every 10 MB",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "flow",
				Usage:     "estimate the flow between consecutive frames with Horn and Schunck",
				UsageText: "optflow flow [options] <frame> <frame> [frame]",
				ArgsUsage: "<frame>...",
				Flags: append(frameFlags(),
					&cli.StringFlag{
						Name:  flagMethod,
						Usage: fmt.Sprintf("solver: %s", strings.Join(opticalflow.Methods, " or ")),
					},
					&cli.Float64Flag{
						Name:  flagAlpha,
						Usage: "weight of the smoothness term",
					},
					&cli.IntFlag{
						Name:  flagIterations,
						Usage: "number of Jacobi iterations",
					},
					&cli.IntFlag{
						Name:  flagArrowStep,
						Value: 16,
						Usage: "distance in pixels between two arrows",
					},
					&cli.Float64Flag{
						Name:  flagArrowScale,
						Value: 4,
						Usage: "length of an arrow per pixel of displacement",
					},
					&cli.PathFlag{
						Name:  flagTrace,
						Usage: "run one iteration at a time and plot the error terms to `FILE`",
					},
					&cli.IntFlag{
						Name:  flagBins,
						Value: 10,
						Usage: "bins of the flow error histogram, 0 disables it",
					},
				),
				Action: FlowAction,
			},
			{
				Name:      "gradient",
				Usage:     "write the spatio-temporal derivatives of a frame sequence as images",
				UsageText: "optflow gradient [options] <frame>...",
				ArgsUsage: "<frame>...",
				Flags: append(frameFlags(),
					&cli.StringFlag{
						Name:  flagPreset,
						Value: rimage.PresetSobel.String(),
						Usage: fmt.Sprintf("kernel preset: %s", strings.Join(rimage.PresetNames(), ", ")),
					},
					&cli.Float64SliceFlag{
						Name:  flagDifference,
						Usage: "difference kernel taps of the central and forward presets",
					},
					&cli.Float64SliceFlag{
						Name:  flagAverage,
						Usage: "averaging kernel taps of the central and forward presets",
					},
				),
				Action: GradientAction,
			},
		},
	}
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
