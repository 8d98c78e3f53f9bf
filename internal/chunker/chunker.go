package chunker

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Config controls segmentation. Sizes are measured in estimated tokens, the
// same unit the embedding budget uses.
type Config struct {
	ChunkSize          int
	Overlap            int
	PreserveBoundaries bool
}

// Segment is one position-ordered slice of the document text. Positions are
// dense and start at zero.
type Segment struct {
	Position   int
	Content    string
	TokenCount int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 400
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	return &Chunker{cfg: cfg}
}

// Split is pure and deterministic: calling it again on the same text yields
// the same segments. Empty or whitespace-only text yields no segments; text
// within one chunk budget yields exactly one.
func (c *Chunker) Split(input string) []Segment {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	if EstimateTokens(trimmed) <= c.cfg.ChunkSize {
		return []Segment{{Position: 0, Content: trimmed, TokenCount: EstimateTokens(trimmed)}}
	}
	if c.cfg.PreserveBoundaries {
		return c.splitBlocks(input)
	}
	return c.splitWindows(input)
}

// splitWindows cuts fixed-size token windows stepping by chunk_size-overlap.
// Windows are sliced out of the original string at token boundaries so the
// de-overlapped concatenation reproduces the input.
func (c *Chunker) splitWindows(input string) []Segment {
	units := tokenize(input)
	if len(units) == 0 {
		return nil
	}
	step := c.cfg.ChunkSize - c.cfg.Overlap
	var segments []Segment
	for start := 0; start < len(units); start += step {
		end := start + c.cfg.ChunkSize
		if end > len(units) {
			end = len(units)
		}
		content := input[units[start].start:units[end-1].end]
		segments = append(segments, Segment{
			Position:   len(segments),
			Content:    content,
			TokenCount: end - start,
		})
		if end == len(units) {
			break
		}
	}
	return segments
}

// splitBlocks snaps segment boundaries to markdown block structure
// (paragraphs, headings, lists, code fences). Segment sizes become variable;
// a single oversized block still goes out as one segment rather than being
// cut mid-structure.
func (c *Chunker) splitBlocks(input string) []Segment {
	blocks := parseBlocks(input)
	if len(blocks) == 0 {
		return c.splitWindows(input)
	}

	var segments []Segment
	var current []block
	var currentTokens int

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, 0, len(current))
		for _, b := range current {
			parts = append(parts, b.content)
		}
		content := strings.Join(parts, "\n\n")
		segments = append(segments, Segment{
			Position:   len(segments),
			Content:    content,
			TokenCount: EstimateTokens(content),
		})
		// Carry trailing blocks forward as overlap context.
		overlapTokens := 0
		var keep []block
		for i := len(current) - 1; i >= 0; i-- {
			t := current[i].tokens
			if overlapTokens+t > c.cfg.Overlap {
				break
			}
			overlapTokens += t
			keep = append([]block{current[i]}, keep...)
		}
		if len(keep) == len(current) {
			keep = nil
			overlapTokens = 0
		}
		current = keep
		currentTokens = overlapTokens
	}

	for _, b := range blocks {
		if currentTokens > 0 && currentTokens+b.tokens > c.cfg.ChunkSize {
			flush()
		}
		current = append(current, b)
		currentTokens += b.tokens
	}
	flush()
	return segments
}

type block struct {
	content string
	tokens  int
}

func parseBlocks(input string) []block {
	md := goldmark.New()
	source := []byte(input)
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []block
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		content := blockSource(node, source)
		if content == "" {
			continue
		}
		blocks = append(blocks, block{content: content, tokens: EstimateTokens(content)})
	}
	return blocks
}

func blockSource(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		// Headings keep their text but not their line span in some
		// goldmark versions; fall back to the rendered text.
		if h, ok := n.(*ast.Heading); ok {
			txt := string(h.Text(source))
			if txt != "" {
				return strings.Repeat("#", h.Level) + " " + txt
			}
		}
		return ""
	}
	start := lines.At(0).Start
	stop := lines.At(lines.Len() - 1).Stop
	if start >= stop || stop > len(source) {
		return ""
	}
	return strings.TrimSpace(string(source[start:stop]))
}

type unit struct {
	start int
	end   int
}

// tokenize mirrors EstimateTokens: a token is either a whitespace-delimited
// word or a single non-ASCII rune. Offsets point into the original string.
func tokenize(input string) []unit {
	var units []unit
	wordStart := -1
	for i, r := range input {
		switch {
		case unicode.IsSpace(r):
			if wordStart >= 0 {
				units = append(units, unit{start: wordStart, end: i})
				wordStart = -1
			}
		case r > 127:
			if wordStart >= 0 {
				units = append(units, unit{start: wordStart, end: i})
				wordStart = -1
			}
			units = append(units, unit{start: i, end: i + len(string(r))})
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	if wordStart >= 0 {
		units = append(units, unit{start: wordStart, end: len(input)})
	}
	return units
}

// EstimateTokens counts whitespace-delimited words plus one per non-ASCII
// rune. Crude but consistent across chunking and context assembly.
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
