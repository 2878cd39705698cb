package caption

import (
	"regexp"
	"strings"
)

// maxOverlapWords bounds the word-overlap search between the buffer tail and
// the head of an incoming slice. Six words comfortably covers the 300 ms audio
// overlap at normal speaking rates.
const maxOverlapWords = 6

// restatementMaxDelta is the maximum growth (in normalized characters) for an
// incoming slice to still count as a refined restatement of the whole buffer
// rather than new content appended after it.
const restatementMaxDelta = 80

// wordRe matches a single word token: letters, digits and apostrophes.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}']+`)

// normalizeWords lowercases s and extracts its word tokens, dropping all
// punctuation and collapsing whitespace.
func normalizeWords(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// Merge combines the accumulated sentence buffer with a newly recognized
// slice. Because successive audio windows share an overlap, the head of the
// slice frequently repeats the tail of the buffer; Merge detects that overlap
// on the normalized forms and strips it from the original slice so the repeat
// never appears twice.
//
// Two cases are handled before plain concatenation:
//   - the slice restates the whole buffer (the recognizer refined its earlier
//     output): the slice replaces the buffer verbatim;
//   - the last k words of the buffer equal the first k words of the slice for
//     some k in [1, maxOverlapWords]: those k word tokens are skipped in the
//     slice and the remainder is appended.
//
// The overlap is computed on word tokens, never inside a partial word.
func Merge(buffer, slice string) string {
	buffer = strings.TrimSpace(buffer)
	slice = strings.TrimSpace(slice)
	if buffer == "" {
		return slice
	}
	if slice == "" {
		return buffer
	}

	bufWords := normalizeWords(buffer)
	sliceWords := normalizeWords(slice)

	if restates(bufWords, sliceWords) {
		return slice
	}

	max := maxOverlapWords
	if len(bufWords) < max {
		max = len(bufWords)
	}
	if len(sliceWords) < max {
		max = len(sliceWords)
	}
	for k := max; k >= 1; k-- {
		if wordsEqual(bufWords[len(bufWords)-k:], sliceWords[:k]) {
			rest := skipWords(slice, k)
			if rest == "" {
				return buffer
			}
			return buffer + " " + rest
		}
	}

	return buffer + " " + slice
}

// restates reports whether sliceWords begins with all of bufWords and does not
// exceed it by more than restatementMaxDelta normalized characters.
func restates(bufWords, sliceWords []string) bool {
	if len(bufWords) == 0 || len(sliceWords) < len(bufWords) {
		return false
	}
	if !wordsEqual(sliceWords[:len(bufWords)], bufWords) {
		return false
	}
	nb := len(strings.Join(bufWords, " "))
	ns := len(strings.Join(sliceWords, " "))
	return ns-nb < restatementMaxDelta
}

func wordsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// skipWords returns s with its first k word tokens (and anything before the
// token following them) removed, preserving the original casing and
// punctuation of the remainder.
func skipWords(s string, k int) string {
	locs := wordRe.FindAllStringIndex(s, k)
	if len(locs) < k {
		return ""
	}
	return strings.TrimSpace(s[locs[k-1][1]:])
}
