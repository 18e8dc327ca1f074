package annotatrix

import (
	"path/filepath"
	"strings"
	"unicode"
)

// StoreExtension is the file extension of a corpus store on disk.
const StoreExtension = ".db"

// NormalizeTreebankID strips surrounding '#' characters from a raw treebank
// id (the UI passes location hashes through verbatim) and rejects ids that
// could escape the corpora directory, collide after path cleaning, or break
// a redirect URL.
func NormalizeTreebankID(raw string) (string, error) {
	id := strings.Trim(raw, "#")
	if id == "" {
		return "", validationErrorf("treebank_id", "empty id")
	}
	if id == "." || id == ".." {
		return "", validationErrorf("treebank_id", "reserved id %q", id)
	}
	if strings.ContainsAny(id, "/\\?\x00") {
		return "", validationErrorf("treebank_id", "id %q contains a reserved character", id)
	}
	if strings.ContainsFunc(id, unicode.IsControl) {
		return "", validationErrorf("treebank_id", "id %q contains a control character", id)
	}
	return id, nil
}

// StorePath maps a normalized treebank id to its file under dir. Distinct
// normalized ids always map to distinct paths since the id is used verbatim
// as the file's base name.
//
// With ext == StoreExtension this is the store itself; with ext == "" it is
// the human-facing name used for downloads.
func StorePath(dir, id, ext string) string {
	return filepath.Join(dir, id+ext)
}

// CorpusViewPath returns the URL path of the annotation UI for a treebank.
func CorpusViewPath(id string) string {
	return "/annotatrix/" + id
}
