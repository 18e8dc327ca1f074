package annotatrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestParseState(t *testing.T) {
	t.Run("accepts a full state", func(t *testing.T) {
		st, err := ParseState([]byte(`{
			"filename": "en.conllu",
			"gui": {"is_table_view": false},
			"labeler": {"labels": []},
			"sentences": [{"text": "one"}, {"conllu": "# text = two"}]
		}`))
		if err != nil {
			t.Fatalf("ParseState() error = %v", err)
		}
		if st.Filename != "en.conllu" || len(st.Sentences) != 2 {
			t.Errorf("ParseState() = %+v, want en.conllu with 2 sentences", st)
		}
	})

	t.Run("accepts an empty corpus", func(t *testing.T) {
		st, err := ParseState([]byte(`{"sentences": []}`))
		if err != nil {
			t.Fatalf("ParseState() error = %v", err)
		}
		if len(st.Sentences) != 0 {
			t.Errorf("len(Sentences) = %d, want 0", len(st.Sentences))
		}
	})

	invalid := []struct {
		name    string
		payload string
	}{
		{name: "malformed json", payload: `{"sentences": [`},
		{name: "not an object", payload: `[1, 2]`},
		{name: "missing sentences", payload: `{"filename": "x"}`},
		{name: "null sentences", payload: `{"sentences": null}`},
		{name: "sentence is a string", payload: `{"sentences": ["Hi"]}`},
		{name: "gui is a list", payload: `{"gui": [], "sentences": []}`},
		{name: "labeler is a number", payload: `{"labeler": 3, "sentences": []}`},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseState([]byte(tt.payload))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseState(%s) error = %v, want ErrValidation", tt.payload, err)
			}
		})
	}
}

func TestSentenceText(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		ok      bool
	}{
		{name: "plain text", payload: `{"text": "Hi"}`, want: "Hi", ok: true},
		{name: "conllu wins over text", payload: `{"text": "Hi", "conllu": "1\tHi"}`, want: "1\tHi", ok: true},
		{name: "trailing newlines trimmed", payload: `{"cg3": "\"<Hi>\"\n\n"}`, want: `"<Hi>"`, ok: true},
		{name: "non-string field skipped", payload: `{"conllu": 5, "input": "raw"}`, want: "raw", ok: true},
		{name: "no text", payload: `{"id": 1}`, ok: false},
		{name: "not an object", payload: `"Hi"`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SentenceText(json.RawMessage(tt.payload))
			if ok != tt.ok || got != tt.want {
				t.Errorf("SentenceText(%s) = %q, %v, want %q, %v", tt.payload, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRenderCorpusText(t *testing.T) {
	sentences := []json.RawMessage{
		json.RawMessage(`{"text": "one"}`),
		json.RawMessage(`{"id": "skipped"}`),
		json.RawMessage(`{"text": "two\n"}`),
	}

	got := RenderCorpusText(sentences)
	if want := "one\n\ntwo\n"; got != want {
		t.Errorf("RenderCorpusText() = %q, want %q", got, want)
	}
	if again := RenderCorpusText(sentences); again != got {
		t.Errorf("RenderCorpusText() not stable: %q then %q", got, again)
	}
	if empty := RenderCorpusText(nil); empty != "" {
		t.Errorf("RenderCorpusText(nil) = %q, want empty", empty)
	}
}

func TestDisplayFilename(t *testing.T) {
	if got := DisplayFilename("en.conllu", "abc"); got != "en.conllu" {
		t.Errorf("DisplayFilename() = %q, want en.conllu", got)
	}
	if got := DisplayFilename("", "abc"); got != "abc.txt" {
		t.Errorf("DisplayFilename() = %q, want abc.txt", got)
	}
}

func TestValidateUploadFilename(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "corpus1.conllu", want: "corpus1.conllu"},
		{raw: "notes.TXT", want: "notes.TXT"},
		{raw: "a.cg3", want: "a.cg3"},
		{raw: "a.sd", want: "a.sd"},
		{raw: "a.corpus", want: "a.corpus"},
		{raw: "../../etc/x.txt", want: "x.txt"},
		{raw: `C:\Users\me\my corpus.conllu`, want: "my_corpus.conllu"},
		{raw: "x.exe", wantErr: true},
		{raw: "conllu", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "...", wantErr: true},
		{raw: "корпус.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ValidateUploadFilename(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ValidateUploadFilename(%q) error = %v, want ErrValidation", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateUploadFilename(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ValidateUploadFilename(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{err: &ValidationError{Field: "file", Reason: "bad"}, kind: ErrValidation},
		{err: &NotFoundError{What: "treebank", Key: "x"}, kind: ErrNotFound},
		{err: &SessionStateError{Reason: "no treebank_id"}, kind: ErrSessionState},
		{err: &ExternalToolError{ExitCode: 2, Output: "boom"}, kind: ErrExternalTool},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("handling request: %w", tt.err)
		if !errors.Is(wrapped, tt.kind) {
			t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.kind)
		}
	}

	if got := (&ExternalToolError{TimedOut: true}).Error(); got != "converter timed out" {
		t.Errorf("timeout Error() = %q", got)
	}
	if got := (&ExternalToolError{ExitCode: 1, Output: "bad line 3"}).Error(); got != "converter exited with status 1: bad line 3" {
		t.Errorf("exit Error() = %q", got)
	}
}
