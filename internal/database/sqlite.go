package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"annotatrix/internal/annotatrix"
)

// DriverName is the database/sql driver used for corpus stores. It is the
// stock SQLite driver with per-connection PRAGMAs applied on connect.
const DriverName = "sqlite3_annotatrix"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Concurrent saves to one store wait for each other instead of
			// failing with SQLITE_BUSY; the last writer wins.
			_, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;", nil)
			return err
		},
	})
}

// OpenConnection opens a SQLite connection pool for a store.
// path can be a file path or a "file:...?mode=memory" URI.
//
// Transactions begin IMMEDIATE so a read-then-write transaction takes the
// write lock up front and waits on busy_timeout instead of deadlocking with
// another handle on the same file.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer per store handle. This also keeps every statement of a
	// transaction on the same connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// CorpusDB implements annotatrix.CorpusStore on a single SQLite file.
type CorpusDB struct {
	db         *sql.DB
	treebankID string
	sealer     annotatrix.TokenSealer
	clock      annotatrix.Clock
	idgen      annotatrix.IDGenerator
}

// NewCorpusDB wraps an open, migrated connection. The CorpusDB owns db and
// closes it on Close.
func NewCorpusDB(db *sql.DB, treebankID string, sealer annotatrix.TokenSealer, clock annotatrix.Clock, idgen annotatrix.IDGenerator) *CorpusDB {
	return &CorpusDB{
		db:         db,
		treebankID: treebankID,
		sealer:     sealer,
		clock:      clock,
		idgen:      idgen,
	}
}

// Corpus operations

func (s *CorpusDB) Update(ctx context.Context, state *annotatrix.State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteSentences); err != nil {
		return fmt.Errorf("clearing sentences: %w", err)
	}
	for i, sent := range state.Sentences {
		if _, err := tx.ExecContext(ctx, insertSentence, i, string(sent)); err != nil {
			return fmt.Errorf("inserting sentence %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, upsertCorpus,
		state.Filename,
		nullJSON(state.GUI),
		nullJSON(state.Labeler),
		annotatrix.RenderCorpusText(state.Sentences),
		s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing corpus metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *CorpusDB) AllSentences(ctx context.Context) (*annotatrix.Corpus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	corpus, err := readCorpusMeta(ctx, tx)
	if err != nil {
		return nil, err
	}

	sentences, err := readSentences(ctx, tx)
	if err != nil {
		return nil, err
	}
	corpus.Sentences = sentences
	corpus.Max = len(sentences)
	return corpus, nil
}

func (s *CorpusDB) Sentence(ctx context.Context, index int) (*annotatrix.Corpus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, countSentences).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting sentences: %w", err)
	}
	if index < 0 || index >= count {
		return nil, &annotatrix.NotFoundError{What: "sentence", Key: strconv.Itoa(index)}
	}

	var raw string
	if err := tx.QueryRowContext(ctx, getSentence, index).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &annotatrix.NotFoundError{What: "sentence", Key: strconv.Itoa(index)}
		}
		return nil, fmt.Errorf("reading sentence %d: %w", index, err)
	}

	corpus, err := readCorpusMeta(ctx, tx)
	if err != nil {
		return nil, err
	}
	corpus.Sentences = []json.RawMessage{json.RawMessage(raw)}
	corpus.Max = count
	return corpus, nil
}

// CorpusText serves the text cached by the last Update. A store without a
// cached text, such as one created by a login, regenerates it from the
// sentences.
func (s *CorpusDB) CorpusText(ctx context.Context) (string, string, error) {
	var filename, text string
	err := s.db.QueryRowContext(ctx, getCorpusText).Scan(&filename, &text)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("reading corpus text: %w", err)
	}
	if text != "" {
		return text, annotatrix.DisplayFilename(filename, s.treebankID), nil
	}

	corpus, err := s.AllSentences(ctx)
	if err != nil {
		return "", "", err
	}
	return annotatrix.RenderCorpusText(corpus.Sentences), annotatrix.DisplayFilename(corpus.Filename, s.treebankID), nil
}

// readCorpusMeta returns the corpus-level fields. A store created by a login
// before any save has no corpus row yet and reads as empty.
func readCorpusMeta(ctx context.Context, tx *sql.Tx) (*annotatrix.Corpus, error) {
	var (
		filename string
		gui      sql.NullString
		labeler  sql.NullString
	)
	err := tx.QueryRowContext(ctx, getCorpus).Scan(&filename, &gui, &labeler)
	if errors.Is(err, sql.ErrNoRows) {
		return &annotatrix.Corpus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading corpus metadata: %w", err)
	}
	return &annotatrix.Corpus{
		Filename: filename,
		GUI:      rawJSON(gui),
		Labeler:  rawJSON(labeler),
	}, nil
}

func readSentences(ctx context.Context, tx *sql.Tx) ([]json.RawMessage, error) {
	rows, err := tx.QueryContext(ctx, listSentences)
	if err != nil {
		return nil, fmt.Errorf("listing sentences: %w", err)
	}
	defer rows.Close()

	sentences := []json.RawMessage{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning sentence: %w", err)
		}
		sentences = append(sentences, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sentences: %w", err)
	}
	return sentences, nil
}

// User operations

func (s *CorpusDB) AddUser(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", &annotatrix.ValidationError{Field: "token", Reason: "empty token"}
	}
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return "", fmt.Errorf("sealing token: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.clock.Now().UTC()
	hash := tokenHash(token)
	if _, err := tx.ExecContext(ctx, releaseToken, now, hash, ""); err != nil {
		return "", fmt.Errorf("releasing token: %w", err)
	}

	id := s.idgen.New()
	if _, err := tx.ExecContext(ctx, insertUser, id, hash, sealed, now, now); err != nil {
		return "", fmt.Errorf("inserting user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *CorpusDB) GetUser(ctx context.Context, lookup annotatrix.UserLookup) (*annotatrix.UserRecord, error) {
	if err := lookup.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if lookup.Token != "" {
		where = append(where, "token_hash = ?")
		args = append(args, tokenHash(lookup.Token))
	}
	if lookup.ID != "" {
		where = append(where, "id = ?")
		args = append(args, lookup.ID)
	}

	var (
		user     annotatrix.UserRecord
		username sql.NullString
		sealed   []byte
	)
	query := selectUser + " WHERE " + strings.Join(where, " AND ")
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &username, &sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	user.Username = username.String

	if sealed != nil {
		token, err := s.sealer.Open(sealed)
		if err != nil {
			return nil, fmt.Errorf("opening token of user %s: %w", user.ID, err)
		}
		user.Token = token
	}
	return &user, nil
}

func (s *CorpusDB) ModifyUser(ctx context.Context, userID string, opts ...annotatrix.UserOption) error {
	change := annotatrix.NewUserChange(opts...)

	var sealed []byte
	if change.SetToken && change.Token != "" {
		var err error
		if sealed, err = s.sealer.Seal(change.Token); err != nil {
			return fmt.Errorf("sealing token: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, userExists, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &annotatrix.NotFoundError{What: "user", Key: userID}
		}
		return fmt.Errorf("finding user: %w", err)
	}

	now := s.clock.Now().UTC()
	if change.SetUsername {
		username := sql.NullString{String: change.Username, Valid: change.Username != ""}
		if _, err := tx.ExecContext(ctx, updateUsername, username, now, userID); err != nil {
			return fmt.Errorf("updating username: %w", err)
		}
	}

	if change.SetToken {
		if change.Token == "" {
			if _, err := tx.ExecContext(ctx, updateToken, nil, nil, now, userID); err != nil {
				return fmt.Errorf("clearing token: %w", err)
			}
		} else {
			hash := tokenHash(change.Token)
			if _, err := tx.ExecContext(ctx, releaseToken, now, hash, userID); err != nil {
				return fmt.Errorf("releasing token: %w", err)
			}
			if _, err := tx.ExecContext(ctx, updateToken, hash, sealed, now, userID); err != nil {
				return fmt.Errorf("binding token: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// BackupTo creates a complete copy of the store at destPath using VACUUM INTO.
// destPath must not exist or be empty.
func (s *CorpusDB) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up store: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *CorpusDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// tokenHash is the lookup key of an OAuth token. Tokens themselves are only
// stored sealed.
func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}

// Compile-time check that CorpusDB implements annotatrix.CorpusStore
var _ annotatrix.CorpusStore = (*CorpusDB)(nil)
