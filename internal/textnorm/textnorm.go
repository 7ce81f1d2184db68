package textnorm

import (
	"strings"
	"sync"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// transliterationCacheLimit bounds the memoization cache. When the cache
// grows past this limit it is dropped wholesale rather than tracking LRU
// order; transliteration inputs repeat heavily (the same rolling partial
// buffer windows), so a full rebuild is cheap.
const transliterationCacheLimit = 512

// cjkFillers are single-character discourse fillers stripped anywhere in
// the text so hesitations in streaming ASR partials do not dilute
// similarity scores.
var cjkFillers = []string{
	"嗯", "呃", "啊", "哦", "哎", "唉", "呀", "吧", "呢", "喽",
}

// latinFillers are removed only as whole whitespace-delimited tokens;
// substring removal would corrupt words that contain them ("summer",
// "drum").
var latinFillers = map[string]bool{
	"uh":  true,
	"um":  true,
	"erm": true,
	"hmm": true,
}

// punctuation covers ASCII and full-width CJK punctuation removed during
// normalization.
const punctuation = ".,!?;:'\"`~-_()[]{}<>/\\|@#$%^&*+=" +
	"。，！？；：、“”‘’《》【】（）…—·～"

// Normalize strips whitespace, punctuation and filler particles from text
// and case-folds the remainder. An empty input yields an empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)
	if fields := strings.Fields(s); len(fields) > 0 {
		kept := fields[:0]
		for _, f := range fields {
			if latinFillers[strings.TrimFunc(f, isStripped)] {
				continue
			}
			kept = append(kept, f)
		}
		s = strings.Join(kept, " ")
	}
	for _, particle := range cjkFillers {
		s = strings.ReplaceAll(s, particle, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isStripped(r) {
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// isStripped reports whether a rune is removed during normalization.
func isStripped(r rune) bool {
	return unicode.IsSpace(r) ||
		strings.ContainsRune(punctuation, r) ||
		unicode.IsPunct(r) ||
		unicode.IsSymbol(r)
}

var (
	cacheMu    sync.Mutex
	cache      = make(map[string]string)
	pinyinArgs = pinyin.NewArgs()
)

// Transliterate converts text to a romanized phonetic form when it contains
// Han script characters; Latin-only input is returned normalized and
// unchanged. Results are memoized in a bounded process-wide cache.
func Transliterate(text string) string {
	if text == "" {
		return ""
	}

	cacheMu.Lock()
	if cached, ok := cache[text]; ok {
		cacheMu.Unlock()
		return cached
	}
	cacheMu.Unlock()

	normalized := Normalize(text)
	result := normalized
	if containsHan(normalized) {
		var b strings.Builder
		for _, r := range normalized {
			if unicode.Is(unicode.Han, r) {
				readings := pinyin.SinglePinyin(r, pinyinArgs)
				if len(readings) > 0 {
					b.WriteString(readings[0])
					continue
				}
			}
			b.WriteRune(r)
		}
		result = b.String()
	}

	cacheMu.Lock()
	if len(cache) >= transliterationCacheLimit {
		cache = make(map[string]string)
	}
	cache[text] = result
	cacheMu.Unlock()

	return result
}

// ClearCache drops all memoized transliterations. Callers replacing the
// configured phrase set use this to release stale entries.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]string)
	cacheMu.Unlock()
}

// CacheSize reports the number of memoized transliterations.
func CacheSize() int {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return len(cache)
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
