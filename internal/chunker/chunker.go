// Package chunker normalizes raw legislative text into bounded-size,
// overlapping chunks suitable for embedding and LLM context windows.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/openlegis/legisrag/internal/model"
)

var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func New(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 8
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Chunk segments one corpus record into an ordered chunk sequence.
// Splitting prefers paragraph boundaries, then sentence boundaries, and
// hard-cuts only when a single sentence exceeds the token budget. The
// result is deterministic for a fixed input and configuration.
func (c *Chunker) Chunk(rec model.CorpusRecord) []model.Chunk {
	paragraphs := flatten(rec.RawText)

	var chunks []model.Chunk
	var current []string
	var currentTokens int
	fresh := false
	position := 0

	flush := func() {
		// Never emit a chunk that holds only the carried overlap.
		if len(current) == 0 || !fresh {
			return
		}
		fresh = false
		content := strings.Join(current, " ")
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("%s:%d", rec.DocumentID, position),
			DocumentID: rec.DocumentID,
			Theme:      rec.Theme,
			Text:       content,
			TokenCount: EstimateTokens(content),
			Position:   position,
		})
		position++

		// Carry trailing sentences into the next chunk for cross-boundary
		// context, bounded by the overlap budget.
		overlapTokens := 0
		var overlap []string
		for i := len(current) - 1; i >= 0; i-- {
			t := EstimateTokens(current[i])
			if overlapTokens+t > c.overlapTokens {
				break
			}
			overlapTokens += t
			overlap = append([]string{current[i]}, overlap...)
		}
		current = overlap
		currentTokens = overlapTokens
	}

	for _, para := range paragraphs {
		for _, sentence := range splitSentences(para) {
			tokens := EstimateTokens(sentence)
			if tokens > c.maxTokens {
				// Oversized sentence: flush what we have, then hard-cut.
				flush()
				current = nil
				currentTokens = 0
				for _, piece := range hardCut(sentence, c.maxTokens) {
					current = append(current, piece)
					currentTokens = EstimateTokens(piece)
					fresh = true
					flush()
					current = nil
					currentTokens = 0
				}
				continue
			}
			if currentTokens+tokens > c.maxTokens {
				flush()
			}
			current = append(current, sentence)
			currentTokens += tokens
			fresh = true
		}
	}
	flush()
	return chunks
}

// flatten strips markdown structure and returns plain-text paragraphs in
// document order. Raw snapshots sometimes carry markup artifacts from the
// summarization pipeline.
func flatten(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	source := []byte(raw)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var paragraphs []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		txt := extractText(node, source)
		if txt == "" {
			continue
		}
		paragraphs = append(paragraphs, txt)
	}
	if len(paragraphs) == 0 {
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			paragraphs = strings.Split(trimmed, "\n\n")
		}
	}
	return paragraphs
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

func splitSentences(para string) []string {
	locs := sentenceSplitter.FindAllStringIndex(para, -1)
	if len(locs) == 0 {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	sentences := make([]string, 0, len(locs))
	for _, loc := range locs {
		s := strings.TrimSpace(para[loc[0]:loc[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	// The regex drops a trailing fragment without final punctuation.
	if rest := strings.TrimSpace(para[locs[len(locs)-1][1]:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// hardCut splits one oversized sentence on word boundaries.
func hardCut(sentence string, maxTokens int) []string {
	words := strings.Fields(sentence)
	var pieces []string
	var current []string
	tokens := 0
	for _, w := range words {
		t := EstimateTokens(w)
		if tokens+t > maxTokens && len(current) > 0 {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			tokens = 0
		}
		current = append(current, w)
		tokens += t
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// EstimateTokens is a cheap token-count heuristic: one token per word plus
// one per non-ASCII rune. Good enough to keep chunks inside a model window.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
