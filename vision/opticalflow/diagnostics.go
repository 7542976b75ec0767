package opticalflow

import (
	"fmt"
	"io"
	"math"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/optflow/rimage"
)

// FieldSummary describes the distribution of the finite values of a field.
type FieldSummary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Median float64
	P95    float64
}

// finiteValues returns the finite samples of m in row-major order.
func finiteValues(m *mat.Dense) stats.Float64Data {
	h, w := m.Dims()
	data := make(stats.Float64Data, 0, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if v := m.At(y, x); !math.IsNaN(v) && !math.IsInf(v, 0) {
				data = append(data, v)
			}
		}
	}
	return data
}

// SummarizeField computes statistics over the finite values of m. NaN and infinite samples are
// skipped; a field with no finite value is an error.
func SummarizeField(m *mat.Dense) (FieldSummary, error) {
	if rimage.ShapeOf(m) == (rimage.Shape{}) {
		return FieldSummary{}, errors.Wrap(rimage.ErrShapeMismatch, "cannot summarize an empty field")
	}
	data := finiteValues(m)
	if len(data) == 0 {
		return FieldSummary{}, errors.New("field has no finite values")
	}
	mean, err1 := data.Mean()
	sd, err2 := data.StandardDeviation()
	minimum, err3 := data.Min()
	maximum, err4 := data.Max()
	median, err5 := data.Median()
	p95, err6 := percentile95(data)
	if err := multierr.Combine(err1, err2, err3, err4, err5, err6); err != nil {
		return FieldSummary{}, err
	}
	return FieldSummary{
		Count:  len(data),
		Mean:   mean,
		StdDev: sd,
		Min:    minimum,
		Max:    maximum,
		Median: median,
		P95:    p95,
	}, nil
}

// percentile95 is stats.Percentile, which needs at least two samples, extended to one sample.
func percentile95(data stats.Float64Data) (float64, error) {
	if len(data) == 1 {
		return data[0], nil
	}
	return data.Percentile(95)
}

// SummaryTable renders named summaries as a text table.
func SummaryTable(names []string, summaries []FieldSummary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Count", "Mean", "StdDev", "Min", "Median", "P95", "Max"})
	for i, s := range summaries {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		t.AppendRow(table.Row{
			name,
			s.Count,
			fmt.Sprintf("%.4f", s.Mean),
			fmt.Sprintf("%.4f", s.StdDev),
			fmt.Sprintf("%.4f", s.Min),
			fmt.Sprintf("%.4f", s.Median),
			fmt.Sprintf("%.4f", s.P95),
			fmt.Sprintf("%.4f", s.Max),
		})
	}
	return t.Render()
}

// FprintHistogram writes a text histogram of the finite values of m with the given number of
// bins, bars scaled to at most width characters.
func FprintHistogram(w io.Writer, m *mat.Dense, bins, width int) error {
	if bins <= 0 || width <= 0 {
		return errors.Wrapf(rimage.ErrConfiguration, "histogram needs positive bins and width, got %d and %d", bins, width)
	}
	data := finiteValues(m)
	if len(data) == 0 {
		return errors.New("field has no finite values")
	}
	minimum, _ := data.Min()
	maximum, _ := data.Max()
	if minimum == maximum {
		_, err := fmt.Fprintf(w, "all %d values are %g\n", len(data), minimum)
		return err
	}
	hist := histogram.Hist(bins, data)
	return histogram.Fprint(w, hist, histogram.Linear(width))
}

// IterationStats describes the flow after a number of iterations.
type IterationStats struct {
	Iteration int
	// MeanSmoothness is the mean of EvalEc2.
	MeanSmoothness float64
	// MeanBrightness is the mean of the squared EvalEb.
	MeanBrightness float64
	// Energy is the Horn and Schunck functional: sum of Eb^2 + alpha^2 * Ec^2.
	Energy float64
}

// TraceConvergence runs the solver one iteration at a time, refining flow in place, and records
// the error terms after each. Since a sweep only depends on the previous one, the final flow is
// the same as a single call with all the iterations.
func TraceConvergence(
	s Solver,
	alpha float64,
	iterations int,
	frames []*mat.Dense,
	flow *FlowField,
) ([]IterationStats, error) {
	if err := checkParameters(alpha, iterations); err != nil {
		return nil, err
	}
	trace := make([]IterationStats, 0, iterations)
	for i := 1; i <= iterations; i++ {
		if err := s.Estimate(alpha, 1, frames, flow); err != nil {
			return nil, errors.Wrapf(err, "iteration %d", i)
		}
		ec2, err := s.EvalEc2(flow)
		if err != nil {
			return nil, err
		}
		eb, err := s.EvalEb(frames, flow)
		if err != nil {
			return nil, err
		}
		eb.MulElem(eb, eb)
		smoothness, brightness := mat.Sum(ec2), mat.Sum(eb)
		n := float64(flow.Shape().Size())
		trace = append(trace, IterationStats{
			Iteration:      i,
			MeanSmoothness: smoothness / n,
			MeanBrightness: brightness / n,
			Energy:         brightness + alpha*alpha*smoothness,
		})
	}
	return trace, nil
}
