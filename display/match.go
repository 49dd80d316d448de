package display

import (
	"log"
	"math"
	"strconv"
	"strings"
)

// aspectTolerance is the maximum width/height ratio difference accepted by
// the aspect-ratio heuristic.
const aspectTolerance = 0.1

// heuristic is one (name, chooser) pair. A chooser returns the index of the
// matched source, or -1 when the heuristic does not apply.
type heuristic struct {
	name   string
	choose func(d Display, displayIdx int, displays []Display, sources []CaptureSource) int
}

// matchChain is evaluated strictly in order; the first heuristic that
// produces an index wins. The order is a documented contract: each entry is
// a weaker signal than the one before it, and the final fallback guarantees
// MatchSource never fails.
var matchChain = []heuristic{
	{"direct-hint", matchByHint},
	{"id-ordinal", matchByIDOrdinal},
	{"positional-parity", matchByPosition},
	{"name", matchByName},
	{"aspect-ratio", matchByAspect},
}

// MatchSource selects exactly one capture source for the display at
// displayIdx in the enumeration order. It is deterministic for fixed inputs
// and always returns a source when sources is non-empty.
func MatchSource(d Display, displayIdx int, displays []Display, sources []CaptureSource) (CaptureSource, bool) {
	if len(sources) == 0 {
		return CaptureSource{}, false
	}
	for _, h := range matchChain {
		if idx := h.choose(d, displayIdx, displays, sources); idx >= 0 {
			log.Printf("display: matched source %q to display %d via %s", sources[idx].ID, d.ID, h.name)
			return sources[idx], true
		}
	}
	log.Printf("display: no heuristic matched display %d, using first source %q", d.ID, sources[0].ID)
	return sources[0], true
}

// matchByHint uses an explicit display-correlation id when the platform
// provides one.
func matchByHint(d Display, _ int, _ []Display, sources []CaptureSource) int {
	for i, s := range sources {
		if s.DisplayHint >= 0 && s.DisplayHint == d.ID {
			return i
		}
	}
	return -1
}

// matchByIDOrdinal looks for a numeric token embedded in the source's opaque
// id (capture ids often look like "screen:1:0") equal to the display's
// position in the enumeration order.
func matchByIDOrdinal(_ Display, displayIdx int, _ []Display, sources []CaptureSource) int {
	for i, s := range sources {
		for _, tok := range splitTokens(s.ID) {
			if n, err := strconv.Atoi(tok); err == nil && n == displayIdx {
				return i
			}
		}
	}
	return -1
}

// matchByPosition assumes the two enumerations are co-ordered when they have
// the same length.
func matchByPosition(_ Display, displayIdx int, displays []Display, sources []CaptureSource) int {
	if len(sources) == len(displays) && displayIdx < len(sources) {
		return displayIdx
	}
	return -1
}

// matchByName prefers primary-display naming patterns for the OS primary and
// a 1-based ordinal in the name otherwise.
func matchByName(d Display, displayIdx int, _ []Display, sources []CaptureSource) int {
	if d.Primary {
		for i, s := range sources {
			name := strings.ToLower(s.Name)
			if name == "screen 1" || name == "entire screen" || strings.Contains(name, "primary") {
				return i
			}
		}
		return -1
	}
	ordinal := strconv.Itoa(displayIdx + 1)
	for i, s := range sources {
		if strings.Contains(s.Name, ordinal) {
			return i
		}
	}
	return -1
}

// matchByAspect picks the source whose thumbnail aspect ratio is nearest the
// display's, accepting only differences below aspectTolerance.
func matchByAspect(d Display, _ int, _ []Display, sources []CaptureSource) int {
	if d.LogicalHeight() == 0 {
		return -1
	}
	want := float64(d.LogicalWidth()) / float64(d.LogicalHeight())

	best := -1
	bestDiff := math.MaxFloat64
	for i, s := range sources {
		h := s.Thumbnail.Dy()
		if h == 0 {
			continue
		}
		diff := math.Abs(float64(s.Thumbnail.Dx())/float64(h) - want)
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 && bestDiff < aspectTolerance {
		return best
	}
	return -1
}

// splitTokens breaks an opaque source id into candidate numeric tokens.
func splitTokens(id string) []string {
	return strings.FieldsFunc(id, func(r rune) bool {
		return r < '0' || r > '9'
	})
}
