package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Reserved BERT token ids.
const (
	tokenCLS = 101
	tokenSEP = 102

	// DefaultVocabSize matches bert-base vocabularies.
	DefaultVocabSize = 30522
	firstWordID      = 1000
)

// Tokenizer produces the input_ids, attention_mask and token_type_ids tensors
// of a BERT-style encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps each word to a stable id by hashing instead of using a
// vocabulary file. It keeps ONNX models usable without shipping a vocab.
type HashTokenizer struct {
	VocabSize int
}

// Tokenize frames the words of text with [CLS] and [SEP] and pads to maxTokens.
func (t HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0], attentionMask[0] = tokenCLS, 1
	pos := 1
	for _, w := range Words(text) {
		if pos == maxTokens-1 {
			break
		}
		inputIDs[pos], attentionMask[pos] = t.id(w), 1
		pos++
	}
	inputIDs[pos], attentionMask[pos] = tokenSEP, 1
	return inputIDs, attentionMask, tokenTypeIDs
}

func (t HashTokenizer) id(word string) int64 {
	vocab := t.VocabSize
	if vocab <= firstWordID {
		vocab = DefaultVocabSize
	}
	return int64(firstWordID + wordHash(word)%uint32(vocab-firstWordID))
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordHash(word string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return h.Sum32()
}
