package annotatrix

import (
	"context"
	"io"
)

// IdentityProvider is the external OAuth identity service.
type IdentityProvider interface {
	// AuthorizeURL returns the provider URL the browser is sent to, carrying
	// state back to the callback.
	AuthorizeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (string, error)

	// Username resolves the login name of the token's owner.
	Username(ctx context.Context, token string) (string, error)
}

// Converter turns raw uploaded corpus text into a stored treebank.
// On success it returns the converter's output, which names the new treebank.
// A failed or timed-out run returns an *ExternalToolError.
type Converter interface {
	Convert(ctx context.Context, input []byte) ([]byte, error)
}

// TokenSealer protects OAuth tokens at rest in the corpus stores.
type TokenSealer interface {
	Seal(token string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

// Vault stores store snapshots outside the corpora directory.
type Vault interface {
	// PutSnapshot stores a snapshot for a treebank. size is the number of bytes
	// that will be read from r; version is kept for consistency checks.
	PutSnapshot(treebankID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes a treebank's latest snapshot to w.
	// Returns a *NotFoundError if there is none.
	GetSnapshot(treebankID string, w io.Writer) error

	// SnapshotVersion returns the stored version, or 0 when there is no snapshot.
	SnapshotVersion(treebankID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
