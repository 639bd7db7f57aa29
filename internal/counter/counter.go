// Package counter formats the animated impact figures shown on the page.
//
// The unit of a figure is not stored separately: it is inferred from the
// label text, so "$42M Pipeline Influenced" renders as "$42M" and
// "Exec Community+" renders as "30,000+".
package counter

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unit is the display style inferred from a label.
type Unit int

const (
	UnitPlain Unit = iota
	UnitMillions
	UnitPlus
	UnitMultiplier
	UnitPercent
)

var figurePattern = regexp.MustCompile(`\$\d+M|\d+\+|\d+(\.\d+)?x|%`)

// UnitOf infers the display unit from label. Rules are checked in order:
// "$" anywhere, trailing "+", trailing "x", "%" anywhere.
func UnitOf(label string) Unit {
	trimmed := strings.TrimSpace(label)
	switch {
	case strings.Contains(trimmed, "$"):
		return UnitMillions
	case strings.HasSuffix(trimmed, "+"):
		return UnitPlus
	case strings.HasSuffix(trimmed, "x"):
		return UnitMultiplier
	case strings.Contains(trimmed, "%"):
		return UnitPercent
	default:
		return UnitPlain
	}
}

// Format renders the final display string for value under label's unit.
func Format(value float64, label string) string {
	switch UnitOf(label) {
	case UnitMillions:
		return "$" + strconv.FormatFloat(value, 'f', -1, 64) + "M"
	case UnitPlus:
		return grouped(value) + "+"
	case UnitMultiplier:
		return strconv.FormatFloat(value, 'f', 1, 64) + "x"
	case UnitPercent:
		return strconv.FormatFloat(value, 'f', -1, 64) + "%"
	default:
		return grouped(value)
	}
}

// Frame renders the count-up display at progress in [0,1] with an ease-out
// curve. Intermediate frames are whole numbers except for multipliers; the
// frame at progress 1 equals Format(value, label).
func Frame(value float64, label string, progress float64) string {
	if progress >= 1 {
		return Format(value, label)
	}
	if progress < 0 {
		progress = 0
	}

	current := value * easeOut(progress)
	if UnitOf(label) != UnitMultiplier {
		current = math.Round(current)
	}
	return Format(current, label)
}

// Caption strips the embedded figure and unit markers from label, leaving
// the descriptive text shown under the number. A trailing "+" or "x" that
// only serves as the unit hint is dropped too.
func Caption(label string) string {
	caption := strings.TrimSpace(figurePattern.ReplaceAllString(label, ""))
	switch UnitOf(label) {
	case UnitPlus:
		caption = strings.TrimSuffix(caption, "+")
	case UnitMultiplier:
		caption = strings.TrimSuffix(caption, "x")
	}
	return strings.TrimSpace(caption)
}

func grouped(value float64) string {
	return humanize.Comma(int64(math.Round(value)))
}

// easeOut is a cubic ease-out: fast start, slow finish.
func easeOut(t float64) float64 {
	inv := 1 - t
	return 1 - inv*inv*inv
}
