package slidecast

import "math"

// easeOutQuad decelerates towards 1. Used for transition blends and text
// entrances.
func easeOutQuad(p float64) float64 {
	p = clamp01(p)
	return 1 - (1-p)*(1-p)
}

// easeInOutCubic accelerates then decelerates. Used for Ken-Burns motion.
func easeInOutCubic(p float64) float64 {
	p = clamp01(p)
	if p < 0.5 {
		return 4 * p * p * p
	}
	return 1 - math.Pow(-2*p+2, 3)/2
}

// easeOutBounce settles with decaying rebounds. Used for the bounce text
// animation.
func easeOutBounce(p float64) float64 {
	p = clamp01(p)
	const n1, d1 = 7.5625, 2.75
	switch {
	case p < 1/d1:
		return n1 * p * p
	case p < 2/d1:
		p -= 1.5 / d1
		return n1*p*p + 0.75
	case p < 2.5/d1:
		p -= 2.25 / d1
		return n1*p*p + 0.9375
	default:
		p -= 2.625 / d1
		return n1*p*p + 0.984375
	}
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
