// Package store persists sessions, transcripts, and generated responses.
// It degrades to an in-memory map when the database cannot be opened, so a
// broken disk never blocks a capture session.
package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Session is one capture session record.
type Session struct {
	ID        string
	VisitorID string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Transcript is the finalized accumulated transcript for a session.
type Transcript struct {
	ID        string
	SessionID string
	Text      string
	CreatedAt time.Time
}

// Response is one generated reply for a transcript.
type Response struct {
	ID           string
	TranscriptID string
	Content      string
	AudioURL     string
	CreatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	visitorId TEXT NOT NULL,
	startedAt REAL NOT NULL,
	endedAt REAL
);

CREATE TABLE IF NOT EXISTS transcripts (
	id TEXT PRIMARY KEY,
	sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	createdAt REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	id TEXT PRIMARY KEY,
	transcriptId TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	audioUrl TEXT,
	createdAt REAL NOT NULL
);
`

// Store is the record store behind the pipeline. When degraded, writes go
// to process memory and are lost at shutdown; the pipeline neither knows
// nor cares which mode is active.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	degraded    bool
	sessions    map[string]Session
	transcripts map[string]Transcript
	responses   map[string]Response
}

// Open opens (and migrates) the sqlite database at path. On failure it
// returns a degraded in-memory store and a nil error; the capability is
// queryable via IsAvailable.
func Open(path string) (*Store, error) {
	s := &Store{
		sessions:    make(map[string]Session),
		transcripts: make(map[string]Transcript),
		responses:   make(map[string]Response),
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_journal_mode=WAL")
	if err == nil {
		err = db.Ping()
	}
	if err == nil {
		_, err = db.Exec(schema)
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		s.degraded = true
		return s, nil
	}

	s.db = db
	return s, nil
}

// IsAvailable reports whether the durable backend is usable.
func (s *Store) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.degraded
}

// Degrade switches to the in-memory backend. Called once when a write
// fails, instead of branching on error codes at every call site.
func (s *Store) Degrade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.degraded = true
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateSession records a new session.
func (s *Store) CreateSession(id, visitorID string) (Session, error) {
	sess := Session{ID: id, VisitorID: visitorID, StartedAt: time.Now()}

	if !s.IsAvailable() {
		s.mu.Lock()
		s.sessions[sess.ID] = sess
		s.mu.Unlock()
		return sess, nil
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, visitorId, startedAt) VALUES (?, ?, ?)`,
		sess.ID, sess.VisitorID, unix(sess.StartedAt),
	)
	if err != nil {
		s.Degrade()
		s.mu.Lock()
		s.sessions[sess.ID] = sess
		s.mu.Unlock()
		return sess, nil
	}
	return sess, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(id string) error {
	now := time.Now()

	if !s.IsAvailable() {
		s.mu.Lock()
		if sess, ok := s.sessions[id]; ok {
			sess.EndedAt = &now
			s.sessions[id] = sess
		}
		s.mu.Unlock()
		return nil
	}

	_, err := s.db.Exec(`UPDATE sessions SET endedAt = ? WHERE id = ?`, unix(now), id)
	return errors.Wrap(err, "end session")
}

// SaveTranscript stores the finalized transcript for a session and returns
// its record.
func (s *Store) SaveTranscript(sessionID, text string) (Transcript, error) {
	tr := Transcript{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	if !s.IsAvailable() {
		s.mu.Lock()
		s.transcripts[tr.ID] = tr
		s.mu.Unlock()
		return tr, nil
	}

	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, sessionId, text, createdAt) VALUES (?, ?, ?, ?)`,
		tr.ID, tr.SessionID, tr.Text, unix(tr.CreatedAt),
	)
	if err != nil {
		s.Degrade()
		s.mu.Lock()
		s.transcripts[tr.ID] = tr
		s.mu.Unlock()
	}
	return tr, nil
}

// LatestTranscript returns the most recent transcript for a session, or
// sql.ErrNoRows if none exists.
func (s *Store) LatestTranscript(sessionID string) (Transcript, error) {
	if !s.IsAvailable() {
		s.mu.Lock()
		defer s.mu.Unlock()
		var latest Transcript
		found := false
		for _, tr := range s.transcripts {
			if tr.SessionID == sessionID && (!found || tr.CreatedAt.After(latest.CreatedAt)) {
				latest = tr
				found = true
			}
		}
		if !found {
			return Transcript{}, sql.ErrNoRows
		}
		return latest, nil
	}

	row := s.db.QueryRow(
		`SELECT id, sessionId, text, createdAt FROM transcripts WHERE sessionId = ? ORDER BY createdAt DESC LIMIT 1`,
		sessionID,
	)
	var tr Transcript
	var createdAt float64
	if err := row.Scan(&tr.ID, &tr.SessionID, &tr.Text, &createdAt); err != nil {
		return Transcript{}, err
	}
	tr.CreatedAt = timeFromUnix(createdAt)
	return tr, nil
}

// SaveResponse stores a generated reply.
func (s *Store) SaveResponse(transcriptID, content, audioURL string) (Response, error) {
	resp := Response{
		ID:           uuid.NewString(),
		TranscriptID: transcriptID,
		Content:      content,
		AudioURL:     audioURL,
		CreatedAt:    time.Now(),
	}

	if !s.IsAvailable() {
		s.mu.Lock()
		s.responses[resp.ID] = resp
		s.mu.Unlock()
		return resp, nil
	}

	_, err := s.db.Exec(
		`INSERT INTO responses (id, transcriptId, content, audioUrl, createdAt) VALUES (?, ?, ?, ?, ?)`,
		resp.ID, resp.TranscriptID, resp.Content, resp.AudioURL, unix(resp.CreatedAt),
	)
	if err != nil {
		s.Degrade()
		s.mu.Lock()
		s.responses[resp.ID] = resp
		s.mu.Unlock()
	}
	return resp, nil
}

func unix(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

func timeFromUnix(v float64) time.Time {
	return time.UnixMilli(int64(v * 1000))
}
