package experiment

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/mpraski/admission/ratelimit"
)

// WriteTable renders a summary row per report and, when samples is set, every
// decision below it.
func WriteTable(w io.Writer, reports []Report, samples bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "EXPERIMENT\tALGORITHM\tLIMIT\tWINDOW (ms)\tMODE\tALLOWED\tDENIED\tPEAK")

	for i := range reports {
		var (
			r = &reports[i]
			e = r.Experiment
		)

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.Name,
			e.Algorithm,
			formatFloat(e.Params.Limit),
			window(e),
			mode(e),
			r.Allowed,
			r.Denied,
			formatFloat(r.PeakMetric),
		)

		if !samples {
			continue
		}

		for _, s := range r.Samples {
			metric := "-"
			if s.Metered {
				metric = formatFloat(s.Metric)
			}

			fmt.Fprintf(tw, "\t%s\t%s\t%s\t%t\t\t\t\n", formatFloat(float64(s.Time)), s.State, metric, s.NewWindow)
		}
	}

	return tw.Flush()
}

func window(e Experiment) string {
	if e.Algorithm == ratelimit.EnforcedAverageAlgorithm {
		return formatFloat(1000 / e.Params.Limit)
	}

	return formatFloat(float64(e.Params.Window))
}

func mode(e Experiment) string {
	if e.Algorithm != ratelimit.LeakyBucketAlgorithm {
		return "-"
	}

	if e.Params.Mode == "" {
		return string(ratelimit.Soft)
	}

	return string(e.Params.Mode)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}
