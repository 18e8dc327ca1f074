package annotatrix

import (
	"errors"
	"testing"
	"testing/quick"
)

func TestNormalizeTreebankID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "abc", want: "abc"},
		{raw: "#abc", want: "abc"},
		{raw: "abc#", want: "abc"},
		{raw: "##abc##", want: "abc"},
		{raw: "a#b", want: "a#b"},
		{raw: "3f1c9a2e-7d1b-4c55-9a0e-0c1f2b3d4e5f", want: "3f1c9a2e-7d1b-4c55-9a0e-0c1f2b3d4e5f"},
		{raw: "", wantErr: true},
		{raw: "###", wantErr: true},
		{raw: ".", wantErr: true},
		{raw: "#..", wantErr: true},
		{raw: "../etc/passwd", wantErr: true},
		{raw: "a/b", wantErr: true},
		{raw: `a\b`, wantErr: true},
		{raw: "a?b", wantErr: true},
		{raw: "a\x00b", wantErr: true},
		{raw: "warning\nabc", wantErr: true},
		{raw: "a\tb", wantErr: true},
		{raw: "a\x7fb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeTreebankID(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("NormalizeTreebankID(%q) error = %v, want ErrValidation", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeTreebankID(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeTreebankID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStorePath(t *testing.T) {
	if got := StorePath("/srv/corpora", "abc", StoreExtension); got != "/srv/corpora/abc.db" {
		t.Errorf("StorePath() = %q, want /srv/corpora/abc.db", got)
	}
	if got := StorePath("/srv/corpora", "abc", ""); got != "/srv/corpora/abc" {
		t.Errorf("StorePath() without extension = %q, want /srv/corpora/abc", got)
	}
}

func TestStorePath_DistinctIDsDistinctPaths(t *testing.T) {
	distinct := func(a, b string) bool {
		id1, err1 := NormalizeTreebankID(a)
		id2, err2 := NormalizeTreebankID(b)
		if err1 != nil || err2 != nil || id1 == id2 {
			return true
		}
		return StorePath("/corpora", id1, StoreExtension) != StorePath("/corpora", id2, StoreExtension)
	}
	if err := quick.Check(distinct, nil); err != nil {
		t.Error(err)
	}

	// Ids that differ only in surrounding '#' are the same treebank.
	a, _ := NormalizeTreebankID("#abc")
	b, _ := NormalizeTreebankID("abc#")
	if StorePath("/corpora", a, StoreExtension) != StorePath("/corpora", b, StoreExtension) {
		t.Error("ids differing only in '#' should share a store")
	}
}

func TestCorpusViewPath(t *testing.T) {
	if got := CorpusViewPath("newid123"); got != "/annotatrix/newid123" {
		t.Errorf("CorpusViewPath() = %q, want /annotatrix/newid123", got)
	}
}
