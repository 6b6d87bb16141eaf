package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer performs BERT-style wordpiece tokenization while tracking the
// byte span of every token, which the service needs to map model output
// back onto document offsets.
type Tokenizer struct {
	vocab     map[string]int64
	unkID     int64
	clsID     int64
	sepID     int64
	padID     int64
	maxLength int
}

// NewTokenizer loads a wordpiece vocabulary (one token per line, ID =
// line number, the standard BERT vocab.txt layout).
func NewTokenizer(vocabPath string, maxLength int) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r\n")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}

	t := &Tokenizer{vocab: vocab, maxLength: maxLength}
	var ok bool
	if t.unkID, ok = vocab["[UNK]"]; !ok {
		return nil, fmt.Errorf("vocab missing [UNK] token")
	}
	if t.clsID, ok = vocab["[CLS]"]; !ok {
		return nil, fmt.Errorf("vocab missing [CLS] token")
	}
	if t.sepID, ok = vocab["[SEP]"]; !ok {
		return nil, fmt.Errorf("vocab missing [SEP] token")
	}
	t.padID = vocab["[PAD]"]

	return t, nil
}

// word is a whitespace/punctuation-delimited unit with its byte span.
type word struct {
	text       string
	start, end int
}

// Tokenize converts text into padded model input. Special tokens carry an
// empty span so they can never be decoded into entities.
func (t *Tokenizer) Tokenize(text string) (*TokenizedInput, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}

	inputIDs := []int64{t.clsID}
	spans := [][2]int{{0, 0}}

	truncated := false
	for _, w := range splitWords(text) {
		pieces, pieceSpans := t.wordpieces(w)
		for i, id := range pieces {
			if len(inputIDs) >= t.maxLength-1 {
				truncated = true
				break
			}
			inputIDs = append(inputIDs, id)
			spans = append(spans, pieceSpans[i])
		}
		if truncated {
			break
		}
	}

	inputIDs = append(inputIDs, t.sepID)
	spans = append(spans, [2]int{0, 0})
	length := len(inputIDs)

	attention := make([]int64, t.maxLength)
	for i := 0; i < length; i++ {
		attention[i] = 1
	}
	for len(inputIDs) < t.maxLength {
		inputIDs = append(inputIDs, t.padID)
		spans = append(spans, [2]int{0, 0})
	}

	return &TokenizedInput{
		InputIDs:      inputIDs,
		AttentionMask: attention,
		TokenSpans:    spans,
		Length:        length,
		Truncated:     truncated,
	}, nil
}

// wordpieces splits one word into vocabulary pieces, longest-match-first,
// attributing each piece its byte span inside the document.
func (t *Tokenizer) wordpieces(w word) ([]int64, [][2]int) {
	lower, offsets := lowerWithOffsets(w.text)
	var ids []int64
	var spans [][2]int

	pos := 0
	for pos < len(lower) {
		end := len(lower)
		var pieceID int64 = -1
		for end > pos {
			piece := lower[pos:end]
			if pos > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				pieceID = id
				break
			}
			end--
		}
		if pieceID < 0 {
			// Whole word unknown; one [UNK] covering the full span.
			return []int64{t.unkID}, [][2]int{{w.start, w.end}}
		}
		ids = append(ids, pieceID)
		spans = append(spans, [2]int{w.start + offsets[pos], w.start + offsets[end]})
		pos = end
	}
	return ids, spans
}

// lowerWithOffsets lowercases s rune by rune and records, for every byte
// of the lowered form, the byte offset of the originating rune in s.
// Lowercasing can change a rune's encoded length (U+0130 shrinks from two
// bytes to one), so lowered byte positions cannot index s directly.
func lowerWithOffsets(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		lr := unicode.ToLower(r)
		for n := utf8.RuneLen(lr); n > 0; n-- {
			offsets = append(offsets, i)
		}
		b.WriteRune(lr)
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

// splitWords breaks text into words, treating punctuation as standalone
// words the way BERT's basic tokenizer does.
func splitWords(text string) []word {
	var words []word
	start := -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, word{text: text[start:end], start: start, end: end})
			start = -1
		}
	}
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(i)
			words = append(words, word{text: string(r), start: i, end: i + len(string(r))})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(text))
	return words
}
