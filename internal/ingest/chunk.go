package ingest

import (
	"strings"
	"unicode"
)

const DefaultChunkChars = 1200

// SplitChunks splits content on blank lines and packs consecutive paragraphs
// into chunks of at most maxChars runes. Longer paragraphs are cut at the
// last whitespace before the limit, or hard-cut when there is none.
func SplitChunks(content string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var chunks []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
		currentLen = 0
	}

	for _, para := range paragraphs(content) {
		for _, piece := range splitLong(para, maxChars) {
			n := len([]rune(piece))
			if currentLen > 0 && currentLen+2+n > maxChars {
				flush()
			}
			if currentLen > 0 {
				current.WriteString("\n\n")
				currentLen += 2
			}
			current.WriteString(piece)
			currentLen += n
		}
	}
	flush()
	return chunks
}

func paragraphs(content string) []string {
	var out []string
	var lines []string
	emit := func() {
		if text := strings.TrimSpace(strings.Join(lines, "\n")); text != "" {
			out = append(out, text)
		}
		lines = lines[:0]
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			emit()
			continue
		}
		lines = append(lines, line)
	}
	emit()
	return out
}

func splitLong(para string, maxChars int) []string {
	runes := []rune(para)
	var out []string
	for len(runes) > maxChars {
		cut := maxChars
		for i := maxChars; i > maxChars/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}
