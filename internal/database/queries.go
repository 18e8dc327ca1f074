package database

// Corpus queries. The corpus table holds a single row with id 1.
const (
	getCorpus = `SELECT filename, gui, labeler FROM corpus WHERE id = 1`

	getCorpusText = `SELECT filename, corpus_text FROM corpus WHERE id = 1`

	upsertCorpus = `INSERT INTO corpus (id, filename, gui, labeler, corpus_text, updated_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	filename = excluded.filename,
	gui = excluded.gui,
	labeler = excluded.labeler,
	corpus_text = excluded.corpus_text,
	updated_at = excluded.updated_at`

	deleteSentences = `DELETE FROM sentences`
	insertSentence  = `INSERT INTO sentences (num, sentence) VALUES (?, ?)`
	countSentences  = `SELECT COUNT(*) FROM sentences`
	getSentence     = `SELECT sentence FROM sentences WHERE num = ?`
	listSentences   = `SELECT sentence FROM sentences ORDER BY num`
)

// User queries.
const (
	insertUser = `INSERT INTO users (id, username, token_hash, token_sealed, created_at, updated_at)
VALUES (?, NULL, ?, ?, ?, ?)`

	selectUser = `SELECT id, username, token_sealed FROM users`

	userExists = `SELECT 1 FROM users WHERE id = ?`

	updateUsername = `UPDATE users SET username = ?, updated_at = ? WHERE id = ?`

	updateToken = `UPDATE users SET token_hash = ?, token_sealed = ?, updated_at = ? WHERE id = ?`

	// releaseToken unbinds a token hash from every user except the given id.
	releaseToken = `UPDATE users SET token_hash = NULL, token_sealed = NULL, updated_at = ?
WHERE token_hash = ? AND id != ?`
)
