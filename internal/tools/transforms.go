package tools

import (
	"math"
	"slices"

	"checkplotcore/pkg/domain"
)

// cutTime keeps only the detections whose times fall inside [tmin, tmax].
func cutTime(series domain.TimeSeries, tmin, tmax float64) domain.TimeSeries {
	out := domain.TimeSeries{}
	for i, t := range series.Times {
		if t < tmin || t > tmax {
			continue
		}
		out.Times = append(out.Times, t)
		out.Mags = append(out.Mags, series.Mags[i])
		if i < len(series.Errs) {
			out.Errs = append(out.Errs, series.Errs[i])
		}
	}
	return out
}

// sigClip keeps detections within sig standard deviations of the median
// magnitude.
func sigClip(series domain.TimeSeries, sig float64) domain.TimeSeries {
	n := len(series.Mags)
	if n == 0 {
		return domain.TimeSeries{}
	}
	med := median(series.Mags)
	var sumsq float64
	for _, m := range series.Mags {
		d := m - med
		sumsq += d * d
	}
	stdev := math.Sqrt(sumsq / float64(n))

	out := domain.TimeSeries{}
	for i, m := range series.Mags {
		if stdev > 0 && math.Abs(m-med) > sig*stdev {
			continue
		}
		out.Times = append(out.Times, series.Times[i])
		out.Mags = append(out.Mags, m)
		if i < len(series.Errs) {
			out.Errs = append(out.Errs, series.Errs[i])
		}
	}
	return out
}

func median(vals []float64) float64 {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
