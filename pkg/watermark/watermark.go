// Package watermark hides short identifiers in text using zero-width runes.
//
// An identifier is framed by U+2060 U+200D ... U+200D U+2060 and its bytes
// are written most significant bit first, U+200B for 0 and U+200C for 1.
// None of these runes render, so marked text reads the same as the
// original, while Extract recovers every identifier embedded in it.
package watermark

import (
	"sort"
	"strings"
)

const (
	zero      = '\u200b'
	one       = '\u200c'
	joiner    = '\u200d'
	wordJoin  = '\u2060'
	openMark  = string(wordJoin) + string(joiner)
	closeMark = string(joiner) + string(wordJoin)
)

// DefaultMaxAnchors bounds how many copies Embed writes into one text.
const DefaultMaxAnchors = 4

// Encode returns the invisible form of id.
func Encode(id string) string {
	var b strings.Builder
	b.Grow(len(openMark) + len(closeMark) + len(id)*8*3)
	b.WriteString(openMark)
	for i := 0; i < len(id); i++ {
		c := id[i]
		for bit := 7; bit >= 0; bit-- {
			if c&(1<<uint(bit)) != 0 {
				b.WriteRune(one)
			} else {
				b.WriteRune(zero)
			}
		}
	}
	b.WriteString(closeMark)
	return b.String()
}

// Embed writes id at up to DefaultMaxAnchors natural anchor points of
// content: sentence ends, paragraph ends and the end of the text. At least
// two copies are written whenever content is non-empty.
func Embed(content, id string) string {
	return EmbedN(content, id, DefaultMaxAnchors)
}

// EmbedN is Embed with an explicit anchor limit (minimum 2).
func EmbedN(content, id string, maxAnchors int) string {
	if id == "" {
		return content
	}
	if maxAnchors < 2 {
		maxAnchors = 2
	}
	mark := Encode(id)
	if content == "" {
		return mark
	}

	offsets := pickAnchors(anchorOffsets(content), maxAnchors)

	var b strings.Builder
	b.Grow(len(content) + len(offsets)*len(mark))
	prev := 0
	for _, off := range offsets {
		b.WriteString(content[prev:off])
		b.WriteString(mark)
		prev = off
	}
	b.WriteString(content[prev:])
	return b.String()
}

// anchorOffsets lists byte offsets directly after sentence-ending
// punctuation, at paragraph breaks, after the first word and at the end.
func anchorOffsets(content string) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(off int) {
		if !seen[off] {
			seen[off] = true
			out = append(out, off)
		}
	}

	if sp := strings.IndexAny(content, " \n"); sp > 0 {
		add(sp)
	}
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '.', '!', '?':
			if i+1 == len(content) || content[i+1] == ' ' || content[i+1] == '\n' {
				add(i + 1)
			}
		case '\n':
			if i+1 < len(content) && content[i+1] == '\n' {
				add(i)
			}
		}
	}
	add(len(content))
	if len(out) < 2 {
		add(0)
	}
	sort.Ints(out)
	return out
}

// pickAnchors keeps the first and last offsets and spreads the rest evenly.
func pickAnchors(offsets []int, n int) []int {
	if len(offsets) <= n {
		return offsets
	}
	out := make([]int, 0, n)
	step := float64(len(offsets)-1) / float64(n-1)
	last := -1
	for i := 0; i < n; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx != last {
			out = append(out, offsets[idx])
			last = idx
		}
	}
	return out
}

// Extract returns the distinct identifiers found in text, in order of
// first appearance. Malformed frames are skipped.
func Extract(text string) []string {
	var ids []string
	seen := make(map[string]bool)

	rest := text
	for {
		start := strings.Index(rest, openMark)
		if start < 0 {
			break
		}
		rest = rest[start+len(openMark):]
		end := strings.Index(rest, closeMark)
		if end < 0 {
			break
		}
		if id, ok := decode(rest[:end]); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		rest = rest[end+len(closeMark):]
	}
	return ids
}

func decode(bits string) (string, bool) {
	var out []byte
	var cur byte
	n := 0
	for _, r := range bits {
		cur <<= 1
		switch r {
		case zero:
		case one:
			cur |= 1
		default:
			return "", false
		}
		n++
		if n == 8 {
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	if n != 0 || len(out) == 0 {
		return "", false
	}
	return string(out), true
}

// Strip removes every complete frame from text. Joiners outside a frame,
// such as those inside emoji sequences, are left alone.
func Strip(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, openMark)
		if start < 0 {
			break
		}
		body := rest[start+len(openMark):]
		end := strings.Index(body, closeMark)
		if end < 0 || !isPayload(body[:end]) {
			b.WriteString(rest[:start+len(openMark)])
			rest = body
			continue
		}
		b.WriteString(rest[:start])
		rest = body[end+len(closeMark):]
	}
	if b.Len() == 0 {
		return rest
	}
	b.WriteString(rest)
	return b.String()
}

func isPayload(bits string) bool {
	for _, r := range bits {
		if r != zero && r != one {
			return false
		}
	}
	return true
}

// Count reports how many frames text carries, including repeats.
func Count(text string) int {
	return strings.Count(text, openMark)
}
