package audio

import "math"

// One-sided width of the sinc kernel, in input samples.
const resampleTaps = 16

// Resample converts a mono signal between sample rates using a band-limited
// windowed-sinc interpolator. When downsampling, the kernel cutoff is lowered
// to the output Nyquist frequency to avoid aliasing.
func Resample(in []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(in) == 0 {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}

	step := float64(fromRate) / float64(toRate)
	cutoff := 1.0
	if toRate < fromRate {
		cutoff = float64(toRate) / float64(fromRate)
	}

	outLen := int(math.Floor(float64(len(in)) * float64(toRate) / float64(fromRate)))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)

	for i := range out {
		center := float64(i) * step
		first := int(math.Floor(center)) - resampleTaps + 1
		last := int(math.Floor(center)) + resampleTaps

		var acc, norm float64
		for j := first; j <= last; j++ {
			if j < 0 || j >= len(in) {
				continue
			}
			x := center - float64(j)
			w := cutoff * sinc(cutoff*x) * hann(x/resampleTaps)
			acc += in[j] * w
			norm += w
		}
		if norm != 0 {
			out[i] = acc / norm
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hann is the Hann window over x in [-1, 1]; zero outside.
func hann(x float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*x))
}
