package capture

import "image"

// RegionStats holds luminance statistics of one sampled region.
type RegionStats struct {
	Mean     float64
	Variance float64
	Samples  int
}

func luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func clamp(f *image.RGBA, r Rect) image.Rectangle {
	return r.Bounds().Intersect(f.Bounds())
}

func normStep(step int) int {
	if step < 1 {
		return 1
	}
	return step
}

// Brightness returns the mean luminance over r, visiting every step-th pixel
// on both axes. An empty region has brightness 0.
func Brightness(f *image.RGBA, r Rect, step int) float64 {
	return sample(f, r, step).Mean
}

// Variance returns the population variance of luminance over r.
func Variance(f *image.RGBA, r Rect, step int) float64 {
	return sample(f, r, step).Variance
}

// SampleRegion measures the mean at meanStep and the variance at the usually
// coarser varStep.
func SampleRegion(f *image.RGBA, r Rect, meanStep, varStep int) RegionStats {
	m := sample(f, r, meanStep)
	if varStep == meanStep {
		return m
	}
	v := sample(f, r, varStep)
	return RegionStats{Mean: m.Mean, Variance: v.Variance, Samples: m.Samples}
}

func sample(f *image.RGBA, r Rect, step int) RegionStats {
	if f == nil {
		return RegionStats{}
	}
	b := clamp(f, r)
	if b.Empty() {
		return RegionStats{}
	}
	step = normStep(step)

	var sum, sumSq float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y += step {
		row := f.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x += step {
			i := row + (x-b.Min.X)*4
			l := luminance(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
			sum += l
			sumSq += l * l
			n++
		}
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return RegionStats{Mean: mean, Variance: variance, Samples: n}
}
