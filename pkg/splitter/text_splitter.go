package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter  textsplitter.TextSplitter
	chunkSize int
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts, chunkSize: chunkSize}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Trim shortens text to at most budget characters, cutting at chunk boundaries
// so that no sentence is split in the middle when avoidable.
func (ts *TextSplitter) Trim(text string, budget int) (string, error) {
	if budget <= 0 {
		return "", nil
	}
	if len([]rune(text)) <= budget {
		return text, nil
	}

	chunks, err := ts.splitter.SplitText(text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	used := 0
	for _, c := range chunks {
		n := len([]rune(c))
		sep := 0
		if used > 0 {
			sep = 1
		}
		if used+sep+n > budget {
			break
		}
		if sep > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c)
		used += sep + n
	}

	// A first chunk larger than the budget still yields its prefix.
	if used == 0 {
		return string([]rune(text)[:budget]), nil
	}
	return b.String(), nil
}
