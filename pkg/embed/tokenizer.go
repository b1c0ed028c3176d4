package embed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BERT special token ids shared by the MiniLM family.
const (
	clsTokenID = 101 // [CLS]
	sepTokenID = 102 // [SEP]
	unkTokenID = 100 // [UNK]
)

// wordPieceTokenizer performs BERT-style WordPiece tokenization using the
// vocabulary from a HuggingFace tokenizer.json file.
type wordPieceTokenizer struct {
	vocab map[string]int
}

// loadWordPieceTokenizer reads the vocabulary out of a tokenizer.json file.
func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer file: %w", err)
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer file: %w", err)
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer file %q has an empty vocabulary", path)
	}

	return &wordPieceTokenizer{vocab: tokenizerData.Model.Vocab}, nil
}

// tokenize converts text to token ids. BERT vocabularies are lowercase;
// punctuation around words is stripped before lookup.
func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}

		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}

		for _, piece := range t.wordPieces(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkTokenID)
			}
		}
	}
	return ids
}

// wordPieces splits a word into greedy longest-match subwords. Pieces after
// the first carry the "##" continuation prefix.
func (t *wordPieceTokenizer) wordPieces(word string) []string {
	var pieces []string

	start := 0
	for start < len(word) {
		end := len(word)
		matched := false

		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}

		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}

	return pieces
}
