package annotatrix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// State is the client's full view of a corpus as posted to /save.
// Sentences are opaque annotation payloads; each must be a JSON object.
type State struct {
	Filename  string            `json:"filename,omitempty"`
	GUI       json.RawMessage   `json:"gui,omitempty"`
	Labeler   json.RawMessage   `json:"labeler,omitempty"`
	Sentences []json.RawMessage `json:"sentences"`
}

// Corpus is the bundle returned by whole-corpus and single-sentence reads:
// sentence payloads in corpus order plus the corpus-level origin filename,
// GUI metadata and labeler. Max is the total number of sentences in the
// store, regardless of how many are included in Sentences.
type Corpus struct {
	Sentences []json.RawMessage
	Max       int
	Filename  string
	GUI       json.RawMessage
	Labeler   json.RawMessage
}

// ParseState decodes and validates a save payload.
func ParseState(raw []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var st State
	if err := dec.Decode(&st); err != nil {
		return nil, validationErrorf("state", "malformed json: %v", err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Validate checks that the state is well formed: a sentences array must be
// present and every sentence, as well as gui and labeler when given, must be
// a JSON object.
func (s *State) Validate() error {
	if s.Sentences == nil {
		return validationErrorf("state", "missing sentences")
	}
	for i, sent := range s.Sentences {
		if !isObject(sent) {
			return validationErrorf("state", "sentence %d is not an object", i)
		}
	}
	if len(s.GUI) > 0 && !isObject(s.GUI) && !isNull(s.GUI) {
		return validationErrorf("state", "gui is not an object")
	}
	if len(s.Labeler) > 0 && !isObject(s.Labeler) && !isNull(s.Labeler) {
		return validationErrorf("state", "labeler is not an object")
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// sentenceTextKeys lists the payload fields that can carry a sentence's
// serialized form, most specific format first.
var sentenceTextKeys = []string{"conllu", "cg3", "sd", "input", "text"}

// SentenceText extracts the serialized corpus-format text of a sentence
// payload. It returns false when the payload carries no text.
func SentenceText(payload json.RawMessage) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", false
	}
	for _, key := range sentenceTextKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		return strings.TrimRight(text, "\n"), true
	}
	return "", false
}

// RenderCorpusText serializes sentences back into flat corpus text: one
// block per sentence, blocks separated by a blank line.
func RenderCorpusText(sentences []json.RawMessage) string {
	var b strings.Builder
	for _, sent := range sentences {
		text, ok := SentenceText(sent)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// DisplayFilename picks the attachment name offered on download.
func DisplayFilename(filename, treebankID string) string {
	if filename != "" {
		return filename
	}
	return fmt.Sprintf("%s.txt", treebankID)
}
