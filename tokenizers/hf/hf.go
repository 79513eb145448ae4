// Package hf implements a tokenizer for HuggingFace's tokenizer.json format,
// covering the WordPiece (BERT), BPE (GPT-2, RoBERTa, BART) and Unigram
// model types. Unlike the upstream "fast" tokenizers it works directly on Go
// strings and keeps byte offsets for every produced token, which the
// alignment layer needs to move annotations between character and token
// coordinates.
package hf

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/gomlx/go-pointernet/tokenizers/api"
)

type tokenizerJSON struct {
	AddedTokens  []addedToken  `json:"added_tokens"`
	Normalizer   *normalizer   `json:"normalizer"`
	PreTokenizer *preTokenizer `json:"pre_tokenizer"`
	Model        model         `json:"model"`
	Decoder      *decoder      `json:"decoder"`
}

type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	Normalizers []normalizer `json:"normalizers"`
}

type preTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PreTokenizers  []preTokenizer `json:"pretokenizers"`
}

type model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []string       `json:"merges"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	EndOfWordSuffix         string         `json:"end_of_word_suffix"`
}

type decoder struct {
	Type   string `json:"type"`
	Prefix string `json:"prefix"`
}

// Config carries the windowing parameters; the rest of the behavior comes
// from the tokenizer.json file itself.
type Config struct {
	// MaxTokens caps the encoding length including bos and eos; longer
	// texts are windowed. Zero means unbounded.
	MaxTokens int
	// Stride is the content-token overlap between adjacent windows.
	Stride int
}

// Tokenizer implements the tokenizer interfaces for tokenizer.json files.
type Tokenizer struct {
	spec      *tokenizerJSON
	idToToken map[int]string

	// Added tokens are matched verbatim before pre-tokenization, longest
	// first.
	added      map[string]int
	addedOrder []string

	mergeRanks map[string]int

	unkID, padID, bosID, eosID, clsID, sepID, maskID int

	nextID    int
	maxTokens int
	stride    int
}

// Compile time assert that Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer           = &Tokenizer{}
	_ api.SegmentingTokenizer = &Tokenizer{}
	_ api.VocabTokenizer      = &Tokenizer{}
)

// New loads a tokenizer from a tokenizer.json file.
func New(path string, cfg Config) (*Tokenizer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer file %q", path)
	}
	return NewFromContent(content, cfg)
}

// NewFromContent loads a tokenizer from tokenizer.json content.
func NewFromContent(content []byte, cfg Config) (*Tokenizer, error) {
	var spec tokenizerJSON
	if err := json.Unmarshal(content, &spec); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer.json")
	}
	if cfg.MaxTokens != 0 && cfg.MaxTokens < 3 {
		return nil, errors.Errorf("MaxTokens=%d leaves no room for content between bos and eos", cfg.MaxTokens)
	}
	if cfg.MaxTokens != 0 && cfg.Stride >= cfg.MaxTokens-2 {
		return nil, errors.Errorf("Stride=%d must be smaller than the %d content tokens per window", cfg.Stride, cfg.MaxTokens-2)
	}
	t := &Tokenizer{
		spec:      &spec,
		idToToken: make(map[int]string, len(spec.Model.Vocab)+len(spec.AddedTokens)),
		added:     make(map[string]int, len(spec.AddedTokens)),
		unkID:     -1, padID: -1, bosID: -1, eosID: -1, clsID: -1, sepID: -1, maskID: -1,
		maxTokens: cfg.MaxTokens,
		stride:    cfg.Stride,
	}
	for token, id := range spec.Model.Vocab {
		t.idToToken[id] = token
		if id >= t.nextID {
			t.nextID = id + 1
		}
	}
	for _, at := range spec.AddedTokens {
		t.added[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
		t.addedOrder = append(t.addedOrder, at.Content)
		if at.ID >= t.nextID {
			t.nextID = at.ID + 1
		}
	}
	sortLongestFirst(t.addedOrder)
	if spec.Model.Type == "BPE" {
		t.mergeRanks = make(map[string]int, len(spec.Model.Merges))
		for i, merge := range spec.Model.Merges {
			t.mergeRanks[merge] = i
		}
	}
	t.resolveSpecialTokens()
	return t, nil
}

func sortLongestFirst(tokens []string) {
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
}

// resolveSpecialTokens picks the conventional special tokens out of the
// vocabulary, covering both the BERT ([CLS]/[SEP]) and the RoBERTa/BART
// (<s>/</s>) naming.
func (t *Tokenizer) resolveSpecialTokens() {
	if t.spec.Model.UnkToken != "" {
		if id, ok := t.spec.Model.Vocab[t.spec.Model.UnkToken]; ok {
			t.unkID = id
		}
	}
	lookup := func(names ...string) int {
		for _, name := range names {
			if id, ok := t.added[name]; ok {
				return id
			}
			if id, ok := t.spec.Model.Vocab[name]; ok {
				return id
			}
		}
		return -1
	}
	if t.unkID < 0 {
		t.unkID = lookup("[UNK]", "<unk>")
	}
	t.padID = lookup("[PAD]", "<pad>")
	t.clsID = lookup("[CLS]")
	t.sepID = lookup("[SEP]")
	t.maskID = lookup("[MASK]", "<mask>")
	t.bosID = lookup("<s>")
	t.eosID = lookup("</s>")
	if t.bosID < 0 {
		t.bosID = t.clsID
	}
	if t.eosID < 0 {
		t.eosID = t.sepID
	}
}

// SpecialTokenID returns the id for the given special token, or an error if
// the vocabulary does not define it.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	id := -1
	switch token {
	case api.TokUnknown:
		id = t.unkID
	case api.TokPad:
		id = t.padID
	case api.TokBeginningOfSentence:
		id = t.bosID
	case api.TokEndOfSentence:
		id = t.eosID
	case api.TokMask:
		id = t.maskID
	case api.TokClassification:
		id = t.clsID
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not found", token)
	}
	return id, nil
}

// Encode converts text to a sequence of token ids, wrapped in bos and eos
// when the vocabulary defines them.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	if t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}
	for _, w := range t.splitWords(text) {
		for _, sub := range t.tokenizeWord(w) {
			ids = append(ids, sub.id)
		}
	}
	if t.eosID >= 0 {
		ids = append(ids, t.eosID)
	}
	return ids
}

// Decode converts a sequence of token ids back to text, dropping special
// tokens and undoing the subword markers of the model type.
func (t *Tokenizer) Decode(ids []int) string {
	prefix := t.spec.Model.ContinuingSubwordPrefix
	if t.spec.Decoder != nil && t.spec.Decoder.Prefix != "" {
		prefix = t.spec.Decoder.Prefix
	}
	if prefix == "" && t.spec.Model.Type == "WordPiece" {
		prefix = "##"
	}
	var sb strings.Builder
	for _, id := range ids {
		token, ok := t.idToToken[id]
		if !ok || t.isSpecialID(id) {
			continue
		}
		switch {
		case prefix != "" && strings.HasPrefix(token, prefix):
			sb.WriteString(strings.TrimPrefix(token, prefix))
		case strings.HasPrefix(token, metaspace):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.TrimPrefix(token, metaspace))
		case strings.HasPrefix(token, byteLevelSpace):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(decodeByteLevel(strings.TrimPrefix(token, byteLevelSpace)))
		case t.spec.Model.Type == "BPE" && t.mergeRanks != nil && !isASCIIWord(token):
			sb.WriteString(decodeByteLevel(token))
		default:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(token)
		}
	}
	return sb.String()
}

func (t *Tokenizer) isSpecialID(id int) bool {
	switch id {
	case t.unkID, t.padID, t.bosID, t.eosID, t.clsID, t.sepID, t.maskID:
		return id >= 0
	}
	return false
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// TokenToID converts a token string to its id.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.added[token]; ok {
		return id, true
	}
	id, ok := t.spec.Model.Vocab[token]
	return id, ok
}

// IDToToken converts a token id to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// VocabSize returns the vocabulary size including added tokens.
func (t *Tokenizer) VocabSize() int { return t.nextID }

// AddSpecialTokens extends the vocabulary with new atomic tokens. They are
// matched verbatim in the input before any pre-tokenization, so a token that
// is a prefix of another must be registered after it (pass them longest
// first).
func (t *Tokenizer) AddSpecialTokens(tokens []string) {
	for _, token := range tokens {
		if _, exists := t.added[token]; exists {
			continue
		}
		id := t.nextID
		t.nextID++
		t.added[token] = id
		t.idToToken[id] = token
		t.addedOrder = append(t.addedOrder, token)
	}
	sortLongestFirst(t.addedOrder)
}

// word is a pre-tokenized chunk with its byte span in the original text.
// Atomic added tokens come through as single words.
type word struct {
	text       string
	start, end int
	atomic     bool
	// leadingSpace marks a word preceded by a space in the original text,
	// which byte-level BPE folds into the word as the U+0120 marker.
	leadingSpace bool
}

type subToken struct {
	id    int
	token string
	span  api.TokenSpan
}

// splitWords pre-tokenizes text into words with byte spans. Added tokens are
// cut out first (longest match wins), the remaining stretches are split on
// whitespace and punctuation. Offsets always refer to the original,
// unnormalized text; normalization is applied per word at lookup time.
func (t *Tokenizer) splitWords(text string) []word {
	var result []word
	rest := text
	offset := 0
	for len(rest) > 0 {
		at, atIdx := t.findAddedToken(rest)
		if atIdx < 0 {
			result = append(result, splitPlain(rest, offset)...)
			break
		}
		result = append(result, splitPlain(rest[:atIdx], offset)...)
		result = append(result, word{
			text:   at,
			start:  offset + atIdx,
			end:    offset + atIdx + len(at),
			atomic: true,
		})
		offset += atIdx + len(at)
		rest = rest[atIdx+len(at):]
	}
	for i := range result {
		result[i].leadingSpace = result[i].start > 0 && text[result[i].start-1] == ' '
	}
	return result
}

// findAddedToken returns the earliest occurrence of any added token,
// preferring longer tokens at the same position.
func (t *Tokenizer) findAddedToken(text string) (string, int) {
	best, bestIdx := "", -1
	for _, token := range t.addedOrder {
		idx := strings.Index(text, token)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			best, bestIdx = token, idx
		}
	}
	return best, bestIdx
}

// splitPlain splits a stretch of text on whitespace and punctuation,
// tracking byte spans (BertPreTokenizer behavior, which also covers the
// word-boundary structure byte-level BPE needs).
func splitPlain(text string, base int) []word {
	var result []word
	start := -1
	flush := func(end int) {
		if start >= 0 {
			result = append(result, word{text: text[start:end], start: base + start, end: base + end})
			start = -1
		}
	}
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case isPunct(r):
			flush(i)
			result = append(result, word{text: string(r), start: base + i, end: base + i + len(string(r))})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(text))
	return result
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// normalizeForLookup applies the configured normalizer to one word. Only
// lookup forms are normalized; spans keep pointing at the original bytes.
func (t *Tokenizer) normalizeForLookup(text string) string {
	return applyNormalizer(text, t.spec.Normalizer)
}

func applyNormalizer(text string, n *normalizer) string {
	if n == nil {
		return text
	}
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		if n.Lowercase {
			return strings.ToLower(text)
		}
		return text
	case "Sequence":
		result := text
		for i := range n.Normalizers {
			result = applyNormalizer(result, &n.Normalizers[i])
		}
		return result
	default:
		return text
	}
}

func removeAccents(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// tokenizeWord converts one word into subword ids according to the model
// type. Atomic words (added tokens) are looked up directly.
func (t *Tokenizer) tokenizeWord(w word) []subToken {
	if id, ok := t.added[w.text]; ok {
		return []subToken{{id: id, token: w.text}}
	}
	lookup := t.normalizeForLookup(w.text)
	switch t.spec.Model.Type {
	case "WordPiece":
		return t.wordPiece(lookup)
	case "BPE":
		return t.bpe(lookup, w.leadingSpace)
	case "Unigram":
		return t.unigram(lookup)
	default:
		if id, ok := t.spec.Model.Vocab[lookup]; ok {
			return []subToken{{id: id, token: lookup}}
		}
		return t.unknown()
	}
}

func (t *Tokenizer) unknown() []subToken {
	if t.unkID < 0 {
		return nil
	}
	token := t.idToToken[t.unkID]
	return []subToken{{id: t.unkID, token: token}}
}

// wordPiece implements greedy longest-match-first subword splitting with the
// continuing-subword prefix (BERT).
func (t *Tokenizer) wordPiece(wordText string) []subToken {
	if wordText == "" {
		return nil
	}
	maxChars := t.spec.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if len(wordText) > maxChars {
		return t.unknown()
	}
	prefix := t.spec.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}
	var result []subToken
	start := 0
	for start < len(wordText) {
		end := len(wordText)
		found := false
		for start < end {
			sub := wordText[start:end]
			if start > 0 {
				sub = prefix + sub
			}
			if id, ok := t.spec.Model.Vocab[sub]; ok {
				result = append(result, subToken{id: id, token: sub})
				found = true
				break
			}
			end--
		}
		if !found {
			return t.unknown()
		}
		start = end
	}
	return result
}

// bpe implements byte-pair merging by rank (GPT-2, RoBERTa, BART). Symbols
// start as the byte-level alphabet of the word, with a preceding space
// folded in as the leading-space marker.
func (t *Tokenizer) bpe(wordText string, leadingSpace bool) []subToken {
	if wordText == "" {
		return nil
	}
	symbols := byteLevelSymbols(wordText)
	if leadingSpace {
		symbols = append([]string{byteLevelSpace}, symbols...)
	}
	if t.spec.Model.EndOfWordSuffix != "" && len(symbols) > 0 {
		symbols[len(symbols)-1] += t.spec.Model.EndOfWordSuffix
	}
	for len(symbols) > 1 {
		bestRank, bestIdx := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			if rank, ok := t.mergeRanks[symbols[i]+" "+symbols[i+1]]; ok {
				if bestRank < 0 || rank < bestRank {
					bestRank, bestIdx = rank, i
				}
			}
		}
		if bestIdx < 0 {
			break
		}
		merged := symbols[bestIdx] + symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx], append([]string{merged}, symbols[bestIdx+2:]...)...)
	}
	var result []subToken
	for _, sym := range symbols {
		if id, ok := t.spec.Model.Vocab[sym]; ok {
			result = append(result, subToken{id: id, token: sym})
		} else if t.unkID >= 0 {
			result = append(result, subToken{id: t.unkID, token: t.idToToken[t.unkID]})
		}
	}
	return result
}

// unigram falls back to greedy longest-match; exact Unigram would run
// Viterbi over the piece scores, which the vocabulary-only view of
// tokenizer.json does not require for segmentation to be usable.
func (t *Tokenizer) unigram(wordText string) []subToken {
	var result []subToken
	runes := []rune(wordText)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if id, ok := t.spec.Model.Vocab[sub]; ok {
				result = append(result, subToken{id: id, token: sub})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			result = append(result, t.unknown()...)
			start++
		}
	}
	return result
}

// EncodeWithOffsets tokenizes the text with byte offsets and windows the
// result to MaxTokens, overlapping windows by Stride content tokens. Every
// window carries its own bos and eos with zero-width offsets.
func (t *Tokenizer) EncodeWithOffsets(text string) ([]api.Encoding, error) {
	var subs []subToken
	for _, w := range t.splitWords(text) {
		wordSubs := t.tokenizeWord(w)
		attributeSpans(w, wordSubs)
		subs = append(subs, wordSubs...)
	}

	maxContent := len(subs)
	if t.maxTokens != 0 && t.maxTokens-2 < maxContent {
		maxContent = t.maxTokens - 2
	}
	if maxContent == 0 {
		return []api.Encoding{t.window(nil)}, nil
	}
	step := maxContent - t.stride
	var encodings []api.Encoding
	for start := 0; start < len(subs); start += step {
		end := start + maxContent
		if end > len(subs) {
			end = len(subs)
		}
		encodings = append(encodings, t.window(subs[start:end]))
		if end == len(subs) {
			break
		}
	}
	return encodings, nil
}

// attributeSpans distributes a word's byte span over its subwords by the
// visible length of each subword. When the lengths do not add up (the
// normalizer changed the word length), every subword falls back to the full
// word span, which keeps char-to-token lookups correct at word granularity.
func attributeSpans(w word, subs []subToken) {
	if len(subs) == 0 {
		return
	}
	total := 0
	for _, sub := range subs {
		total += visibleLen(sub.token)
	}
	if total != w.end-w.start || w.atomic {
		for i := range subs {
			subs[i].span = api.TokenSpan{Start: w.start, End: w.end}
		}
		return
	}
	pos := w.start
	for i, sub := range subs {
		n := visibleLen(sub.token)
		subs[i].span = api.TokenSpan{Start: pos, End: pos + n}
		pos += n
	}
}

// visibleLen is the number of original text bytes a subword covers, with the
// subword markers of the supported model types stripped.
func visibleLen(token string) int {
	if strings.HasPrefix(token, "##") {
		return len(token) - 2
	}
	if strings.HasPrefix(token, metaspace) {
		return len(token) - len(metaspace)
	}
	if !isASCIIWord(token) {
		return len(decodeByteLevel(strings.TrimPrefix(token, byteLevelSpace)))
	}
	return len(token)
}

func (t *Tokenizer) window(subs []subToken) api.Encoding {
	n := len(subs) + 2
	enc := api.Encoding{
		Tokens:        make([]string, 0, n),
		IDs:           make([]int, 0, n),
		AttentionMask: make([]int, n),
		Offsets:       make([]api.TokenSpan, 0, n),
	}
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	bosTok, eosTok := "<s>", "</s>"
	if s, ok := t.idToToken[t.bosID]; ok {
		bosTok = s
	}
	if s, ok := t.idToToken[t.eosID]; ok {
		eosTok = s
	}
	enc.Tokens = append(enc.Tokens, bosTok)
	enc.IDs = append(enc.IDs, t.bosID)
	enc.Offsets = append(enc.Offsets, api.TokenSpan{})
	for _, sub := range subs {
		enc.Tokens = append(enc.Tokens, sub.token)
		enc.IDs = append(enc.IDs, sub.id)
		enc.Offsets = append(enc.Offsets, sub.span)
	}
	end := 0
	if len(subs) > 0 {
		end = subs[len(subs)-1].span.End
	}
	enc.Tokens = append(enc.Tokens, eosTok)
	enc.IDs = append(enc.IDs, t.eosID)
	enc.Offsets = append(enc.Offsets, api.TokenSpan{Start: end, End: end})
	return enc
}

// Byte-level alphabet used by GPT-2 style BPE: printable bytes map to
// themselves, the rest to a private range starting at U+0100. The marker for
// a leading space is U+0120 ("Ġ").
const (
	metaspace      = "▁"
	byteLevelSpace = "Ġ"
)

var (
	byteToUnicode [256]rune
	unicodeToByte map[rune]byte
)

func init() {
	unicodeToByte = make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[b] = rune(b)
		} else {
			byteToUnicode[b] = rune(256 + n)
			n++
		}
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}

func byteLevelSymbols(wordText string) []string {
	symbols := make([]string, 0, len(wordText))
	for i := 0; i < len(wordText); i++ {
		symbols = append(symbols, string(byteToUnicode[wordText[i]]))
	}
	return symbols
}

func decodeByteLevel(text string) string {
	result := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, []byte(string(r))...)
		}
	}
	return string(result)
}
