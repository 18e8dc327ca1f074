package annotatrix

import "context"

// UserRecord is a user known to one corpus store.
// Username and Token are empty until resolved or bound.
type UserRecord struct {
	ID       string
	Username string
	Token    string
}

// UserLookup selects a user record by OAuth token, by user id, or by both.
// When both are set the record must match both.
type UserLookup struct {
	Token string
	ID    string
}

// ByToken looks a user up by OAuth token.
func ByToken(token string) UserLookup { return UserLookup{Token: token} }

// ByID looks a user up by user id.
func ByID(id string) UserLookup { return UserLookup{ID: id} }

// Validate rejects a lookup with no key.
func (l UserLookup) Validate() error {
	if l.Token == "" && l.ID == "" {
		return validationErrorf("user lookup", "token or id required")
	}
	return nil
}

// UserChange is the partial update applied by ModifyUser. Only fields whose
// Set flag is true are written; a set Token of "" clears the binding.
type UserChange struct {
	Username    string
	SetUsername bool
	Token       string
	SetToken    bool
}

// UserOption describes one field of a ModifyUser call.
type UserOption func(*UserChange)

// WithUsername sets the user's resolved username.
func WithUsername(username string) UserOption {
	return func(c *UserChange) {
		c.Username = username
		c.SetUsername = true
	}
}

// WithToken binds token to the user, moving it off any other record that
// held it.
func WithToken(token string) UserOption {
	return func(c *UserChange) {
		c.Token = token
		c.SetToken = true
	}
}

// ClearToken removes the user's OAuth token, keeping the record.
func ClearToken() UserOption {
	return func(c *UserChange) {
		c.Token = ""
		c.SetToken = true
	}
}

// NewUserChange folds options into a UserChange.
func NewUserChange(opts ...UserOption) UserChange {
	var c UserChange
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CorpusStore is the persistent record set of a single treebank.
// Every method is atomic with respect to the backing file; nothing spans
// more than one call.
type CorpusStore interface {
	// Update replaces the stored sentences and corpus metadata with state.
	// An invalid state returns a *ValidationError and leaves the store as it was.
	Update(ctx context.Context, state *State) error

	// AllSentences returns every sentence in corpus order.
	AllSentences(ctx context.Context) (*Corpus, error)

	// Sentence returns the sentence at the 0-based index.
	// Returns a *NotFoundError when index is out of range.
	Sentence(ctx context.Context, index int) (*Corpus, error)

	// CorpusText regenerates the flat corpus text from the stored sentences
	// and returns it with its display filename.
	CorpusText(ctx context.Context) (text string, filename string, err error)

	// AddUser creates a user bound to token and returns its new id.
	AddUser(ctx context.Context, token string) (string, error)

	// GetUser returns the matching user, or nil if there is none.
	GetUser(ctx context.Context, lookup UserLookup) (*UserRecord, error)

	// ModifyUser applies a partial update to the user.
	// Returns a *NotFoundError when the id is unknown.
	ModifyUser(ctx context.Context, userID string, opts ...UserOption) error

	// BackupTo writes a consistent snapshot of the store to destPath.
	BackupTo(ctx context.Context, destPath string) error

	// Close releases the store.
	Close() error
}

// StoreOpener maps treebank ids to their stores. Ids passed in must already
// be normalized.
type StoreOpener interface {
	// Open opens an existing store. Returns a *NotFoundError if it is absent.
	Open(ctx context.Context, treebankID string) (CorpusStore, error)

	// OpenOrCreate opens the store, creating it when absent.
	OpenOrCreate(ctx context.Context, treebankID string) (CorpusStore, error)

	// Exists reports whether a store exists for the id.
	Exists(treebankID string) (bool, error)

	// List returns the ids of all existing stores.
	List() ([]string, error)

	// Restore installs a snapshot as the store for an absent id.
	Restore(ctx context.Context, treebankID string, snapshotPath string) error
}
