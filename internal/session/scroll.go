package session

import "math"

// ScrollOffset converts a scroll fraction into the top-line offset of a
// surface that renders contentHeight lines through a window of
// viewportHeight lines. Content shorter than the window never scrolls.
func ScrollOffset(fraction float64, contentHeight, viewportHeight int) int {
	span := contentHeight - viewportHeight
	if span <= 0 {
		return 0
	}
	off := int(math.Round(fraction * float64(span)))
	switch {
	case off < 0:
		return 0
	case off > span:
		return span
	}
	return off
}

// ScrollFractionAt is the inverse of ScrollOffset: the fraction of the
// scrollable span that a top-line offset represents. Editor and preview
// each apply it to their own heights, which is what keeps the two surfaces
// aligned across mode toggles.
func ScrollFractionAt(offset, contentHeight, viewportHeight int) float64 {
	span := contentHeight - viewportHeight
	if span <= 0 {
		return 0
	}
	f := float64(offset) / float64(span)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
