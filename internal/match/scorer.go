package match

import (
	"github.com/agnivade/levenshtein"

	"github.com/jilongsong/voice-sdk/internal/textnorm"
)

// Blending weights for the composite similarity. Edit distance dominates so
// near-exact alignment wins, while LCS and bigram overlap tolerate the
// reordering and insertion noise typical of streaming ASR partials. The
// values are empirically tuned; see WindowSlack for the same caveat.
const (
	levenshteinWeight = 0.5
	lcsWeight         = 0.3
	bigramWeight      = 0.2
)

// Phonetic blending: once the romanized forms agree strongly the phonetic
// score carries most of the weight; at moderate agreement text and phonetic
// scores are blended 55/45.
const (
	phoneticStrongThreshold = 0.9
	phoneticBlendThreshold  = 0.75
)

// WindowSlack widens the candidate scan window by this many runes on each
// side of the phrase length, so partially-revised ASR output still aligns.
const WindowSlack = 3

// shortCircuitScore is close enough to exact that scanning further windows
// cannot improve the result.
const shortCircuitScore = 0.999

// Similarity computes a blended similarity in [0,1] between two normalized
// strings from Levenshtein distance, longest-common-subsequence ratio and
// bigram Jaccard overlap. Either side empty yields 0; identical strings
// yield exactly 1.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ar := []rune(a)
	br := []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}

	dist := levenshtein.ComputeDistance(a, b)
	levScore := 1 - float64(dist)/float64(maxLen)
	if levScore < 0 {
		levScore = 0
	}

	lcsScore := float64(lcsLength(ar, br)) / float64(maxLen)
	bigramScore := bigramJaccard(ar, br)

	score := levenshteinWeight*levScore + lcsWeight*lcsScore + bigramWeight*bigramScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// ScoreCandidate slides a window over candidate with widths within
// WindowSlack of the normalized phrase length, scoring each window against
// the normalized phrase and, when available, the phonetic form. The maximum
// window score is returned; a window at or above shortCircuitScore ends the
// scan early. A candidate containing the exact normalized phrase as a
// substring scores 1.
func ScoreCandidate(candidate, phraseNorm, phrasePinyin string) float64 {
	if candidate == "" || phraseNorm == "" {
		return 0
	}

	cr := []rune(candidate)
	phraseLen := len([]rune(phraseNorm))

	minWidth := phraseLen - WindowSlack
	if minWidth < 1 {
		minWidth = 1
	}
	maxWidth := phraseLen + WindowSlack
	if maxWidth > len(cr) {
		maxWidth = len(cr)
	}

	// Candidate shorter than every window width: score it whole.
	if len(cr) < minWidth {
		return windowScore(candidate, phraseNorm, phrasePinyin)
	}

	best := 0.0
	for width := minWidth; width <= maxWidth; width++ {
		for i := 0; i+width <= len(cr); i++ {
			s := windowScore(string(cr[i:i+width]), phraseNorm, phrasePinyin)
			if s > best {
				best = s
			}
			if best >= shortCircuitScore {
				return best
			}
		}
	}
	return best
}

// windowScore blends the text similarity of one window with its phonetic
// similarity when a phonetic phrase form is available.
func windowScore(window, phraseNorm, phrasePinyin string) float64 {
	text := Similarity(window, phraseNorm)
	if phrasePinyin == "" {
		return text
	}

	phonetic := Similarity(textnorm.Transliterate(window), phrasePinyin)

	var blended float64
	switch {
	case phonetic >= phoneticStrongThreshold:
		blended = 0.25*text + 0.75*phonetic
	case phonetic >= phoneticBlendThreshold:
		blended = 0.55*text + 0.45*phonetic
	default:
		blended = text
	}

	if text > blended {
		return text
	}
	return blended
}

// lcsLength computes the longest-common-subsequence length with a
// two-row DP.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// bigramJaccard computes Jaccard overlap of the rune 2-gram sets.
func bigramJaccard(a, b []rune) float64 {
	as := bigramSet(a)
	bs := bigramSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	intersection := 0
	for g := range as {
		if bs[g] {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	return float64(intersection) / float64(union)
}

func bigramSet(runes []rune) map[[2]rune]bool {
	set := make(map[[2]rune]bool, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[[2]rune{runes[i], runes[i+1]}] = true
	}
	return set
}
