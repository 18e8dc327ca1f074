package annotatrix

import (
	"context"
	"errors"
	"fmt"
)

// LoginStep tells the transport where to send the browser after BeginLogin.
type LoginStep struct {
	RedirectURL  string
	AlreadyBound bool
}

// IdentityBinder binds browser sessions to user records of the active
// corpus store across the OAuth flow.
type IdentityBinder struct {
	stores   StoreOpener
	provider IdentityProvider
	logger   Logger
	idgen    IDGenerator
}

// NewIdentityBinder creates an IdentityBinder. idgen produces OAuth state values.
func NewIdentityBinder(stores StoreOpener, provider IdentityProvider, logger Logger, idgen IDGenerator) *IdentityBinder {
	return &IdentityBinder{
		stores:   stores,
		provider: provider,
		logger:   logger,
		idgen:    idgen,
	}
}

// BeginLogin starts the OAuth flow for a treebank. A session that is already
// bound goes straight back to its corpus view.
func (b *IdentityBinder) BeginLogin(sess *Session, rawTreebankID string) (*LoginStep, error) {
	if sess.Authenticated() {
		b.logger.Info("already logged in", "user_id", sess.UserID, "treebank_id", sess.TreebankID)
		return &LoginStep{RedirectURL: CorpusViewPath(sess.TreebankID), AlreadyBound: true}, nil
	}

	treebankID, err := NormalizeTreebankID(rawTreebankID)
	if err != nil {
		return nil, err
	}

	sess.TreebankID = treebankID
	sess.OAuthState = b.idgen.New()
	return &LoginStep{RedirectURL: b.provider.AuthorizeURL(sess.OAuthState)}, nil
}

// CompleteLogin handles the provider callback: it exchanges the code for a
// token, finds or creates the token's user in the session's store, resolves
// the username if unknown and binds the user to the session. The latest token
// is always written back to the record.
//
// A callback without the session state set up by BeginLogin returns a
// *SessionStateError before anything is exchanged or stored.
func (b *IdentityBinder) CompleteLogin(ctx context.Context, sess *Session, code, state string) error {
	if sess.TreebankID == "" {
		return &SessionStateError{Reason: "no treebank_id in session"}
	}
	if sess.OAuthState == "" || state != sess.OAuthState {
		return &SessionStateError{Reason: "oauth state mismatch"}
	}
	if code == "" {
		return &SessionStateError{Reason: "no authorization code received"}
	}
	sess.OAuthState = ""

	token, err := b.provider.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	store, err := b.stores.OpenOrCreate(ctx, sess.TreebankID)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	user, err := store.GetUser(ctx, ByToken(token))
	if err != nil {
		return fmt.Errorf("finding user by token: %w", err)
	}
	if user == nil {
		id, err := store.AddUser(ctx, token)
		if err != nil {
			return fmt.Errorf("adding user: %w", err)
		}
		user = &UserRecord{ID: id, Token: token}
		b.logger.Info("user added", "user_id", id, "treebank_id", sess.TreebankID)
	}
	sess.UserID = user.ID

	username := user.Username
	if username == "" {
		username, err = b.provider.Username(ctx, token)
		if err != nil {
			b.logger.Warn("resolving username failed", "user_id", user.ID, "error", err)
			username = ""
		}
		if username != "" {
			if err := store.ModifyUser(ctx, user.ID, WithUsername(username)); err != nil {
				return fmt.Errorf("storing username: %w", err)
			}
		}
	}
	if username != "" {
		sess.Username = username
	}

	if err := store.ModifyUser(ctx, user.ID, WithToken(token)); err != nil {
		return fmt.Errorf("binding token: %w", err)
	}

	b.logger.Info("logged in", "user_id", user.ID, "username", username, "treebank_id", sess.TreebankID)
	return nil
}

// Logout clears the bound user's token (the record itself is kept) and the
// session's identity. An unauthenticated session is left alone.
func (b *IdentityBinder) Logout(ctx context.Context, sess *Session) error {
	if !sess.Authenticated() {
		b.logger.Info("not logged in")
		return nil
	}
	userID := sess.UserID
	sess.clearIdentity()

	store, err := b.stores.Open(ctx, sess.TreebankID)
	if errors.Is(err, ErrNotFound) {
		b.logger.Warn("logout without store", "treebank_id", sess.TreebankID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	err = store.ModifyUser(ctx, userID, ClearToken())
	if errors.Is(err, ErrNotFound) {
		b.logger.Warn("logout for unknown user", "user_id", userID, "treebank_id", sess.TreebankID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}

	b.logger.Info("logged out", "user_id", userID)
	return nil
}

// TokenForSession returns the stored token of the session's user, or "" if
// the session is unbound or no token is stored.
func (b *IdentityBinder) TokenForSession(ctx context.Context, sess *Session) (string, error) {
	if !sess.Authenticated() || sess.TreebankID == "" {
		return "", nil
	}

	store, err := b.stores.Open(ctx, sess.TreebankID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	user, err := store.GetUser(ctx, ByID(sess.UserID))
	if err != nil {
		return "", fmt.Errorf("finding user by id: %w", err)
	}
	if user == nil {
		return "", nil
	}
	return user.Token, nil
}

// Username returns the session's display name, resolving it through the
// provider with the stored token when only the user id is known.
func (b *IdentityBinder) Username(ctx context.Context, sess *Session) string {
	if sess.Username != "" || !sess.Authenticated() {
		return sess.Username
	}

	token, err := b.TokenForSession(ctx, sess)
	if err != nil {
		b.logger.Warn("looking up session token failed", "user_id", sess.UserID, "error", err)
		return ""
	}
	if token == "" {
		return ""
	}

	username, err := b.provider.Username(ctx, token)
	if err != nil || username == "" {
		b.logger.Warn("resolving username failed", "user_id", sess.UserID, "error", err)
		return ""
	}
	sess.Username = username

	store, err := b.stores.Open(ctx, sess.TreebankID)
	if err != nil {
		return username
	}
	defer store.Close()
	if err := store.ModifyUser(ctx, sess.UserID, WithUsername(username)); err != nil {
		b.logger.Warn("storing username failed", "user_id", sess.UserID, "error", err)
	}
	return username
}
