package annotatrix

// Session is the per-browser state threaded explicitly through the binder
// and gateway. The transport layer loads it before a call and persists it
// afterwards.
type Session struct {
	TreebankID string
	UserID     string
	Username   string
	OAuthState string
}

// Authenticated reports whether a user is bound to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// clearIdentity drops the bound user, keeping the active treebank.
func (s *Session) clearIdentity() {
	s.UserID = ""
	s.Username = ""
}
