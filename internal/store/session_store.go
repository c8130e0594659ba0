package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/snare/internal/domain"
)

// Intelligence categories as stored in the intelligence table.
const (
	categoryPaymentHandle = "payment_handle"
	categoryPhoneNumber   = "phone_number"
	categoryBankAccount   = "bank_account"
	categoryLink          = "link"
	categoryKeyword       = "keyword"
)

const timeLayout = time.RFC3339Nano

// SQLiteSessionStore implements honeypot.SessionStore backed by SQLite.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

// ensure inserts an empty session row if the id is unknown. Returns whether
// the row was created.
func ensure(ex interface {
	Exec(query string, args ...any) (sql.Result, error)
}, id string) (bool, error) {
	now := fmtTime(time.Now())
	res, err := ex.Exec(
		`INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`,
		id, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("creating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteSessionStore) GetOrCreate(id string) (*domain.Session, bool, error) {
	created, err := ensure(s.db.sql, id)
	if err != nil {
		return nil, false, err
	}
	sess, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	return sess, created, nil
}

func (s *SQLiteSessionStore) Get(id string) (*domain.Session, error) {
	var sess domain.Session
	var createdAt, updatedAt, detectedAt, engagedAt, concludedAt, callbackSentAt string

	err := s.db.sql.QueryRow(
		`SELECT id, created_at, updated_at,
		        scam_detected, scam_confidence, detected_at,
		        agent_engaged, engaged_at, engaged_seq,
		        concluded, concluded_at,
		        callback_sent, callback_sent_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(
		&sess.ID, &createdAt, &updatedAt,
		&sess.ScamDetected, &sess.ScamConfidence, &detectedAt,
		&sess.AgentEngaged, &engagedAt, &sess.EngagedSeq,
		&sess.Concluded, &concludedAt,
		&sess.CallbackSent, &callbackSentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	sess.DetectedAt = parseTime(detectedAt)
	sess.EngagedAt = parseTime(engagedAt)
	sess.ConcludedAt = parseTime(concludedAt)
	sess.CallbackSentAt = parseTime(callbackSentAt)

	if sess.Messages, err = s.loadMessages(id); err != nil {
		return nil, err
	}
	if sess.Intelligence, err = s.loadIntelligence(id); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteSessionStore) Append(id string, msg domain.Message) (domain.Message, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()

	if _, err := ensure(tx, id); err != nil {
		return domain.Message{}, err
	}

	var lastSeq int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?`, id,
	).Scan(&lastSeq); err != nil {
		return domain.Message{}, fmt.Errorf("reading last seq: %w", err)
	}

	msg.Seq = lastSeq + 1
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	if _, err := tx.Exec(
		`INSERT INTO messages (session_id, seq, sender, text, sent_at, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, msg.Seq, string(msg.Sender), msg.Text, fmtTime(msg.SentAt), fmtTime(msg.ReceivedAt),
	); err != nil {
		return domain.Message{}, fmt.Errorf("appending message: %w", err)
	}

	if err := touch(tx, id); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *SQLiteSessionStore) MarkDetected(id string, confidence float64) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := ensure(tx, id); err != nil {
		return err
	}
	// detected_at is set only on the first detection.
	if _, err := tx.Exec(
		`UPDATE sessions SET
			scam_confidence = ?,
			detected_at = CASE WHEN scam_detected = 1 THEN detected_at ELSE ? END,
			scam_detected = 1,
			updated_at = ?
		 WHERE id = ?`,
		confidence, fmtTime(time.Now()), fmtTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("marking detected: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteSessionStore) Engage(id string) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := ensure(tx, id); err != nil {
		return err
	}

	var engaged bool
	if err := tx.QueryRow(`SELECT agent_engaged FROM sessions WHERE id = ?`, id).Scan(&engaged); err != nil {
		return fmt.Errorf("reading engagement: %w", err)
	}
	if engaged {
		return tx.Commit()
	}

	var lastSeq int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?`, id,
	).Scan(&lastSeq); err != nil {
		return fmt.Errorf("reading last seq: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE sessions SET agent_engaged = 1, engaged_at = ?, engaged_seq = ?, updated_at = ?
		 WHERE id = ?`,
		fmtTime(time.Now()), lastSeq+1, fmtTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("marking engaged: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteSessionStore) MergeIntelligence(id string, b domain.Bundle) (domain.Bundle, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return domain.Bundle{}, err
	}
	defer tx.Rollback()

	if _, err := ensure(tx, id); err != nil {
		return domain.Bundle{}, err
	}

	insert := func(category string, values []string) error {
		for _, v := range values {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO intelligence (session_id, category, value) VALUES (?, ?, ?)`,
				id, category, v,
			); err != nil {
				return fmt.Errorf("inserting intelligence: %w", err)
			}
		}
		return nil
	}
	if err := insert(categoryPaymentHandle, b.PaymentHandles); err != nil {
		return domain.Bundle{}, err
	}
	if err := insert(categoryPhoneNumber, b.PhoneNumbers); err != nil {
		return domain.Bundle{}, err
	}
	if err := insert(categoryBankAccount, b.BankAccounts); err != nil {
		return domain.Bundle{}, err
	}
	if err := insert(categoryLink, b.Links); err != nil {
		return domain.Bundle{}, err
	}
	if err := insert(categoryKeyword, b.Keywords); err != nil {
		return domain.Bundle{}, err
	}

	if err := touch(tx, id); err != nil {
		return domain.Bundle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bundle{}, err
	}
	return s.loadIntelligence(id)
}

func (s *SQLiteSessionStore) MarkConcluded(id string) error {
	return s.markFlag(id, "concluded", "concluded_at")
}

func (s *SQLiteSessionStore) MarkCallbackSent(id string) error {
	return s.markFlag(id, "callback_sent", "callback_sent_at")
}

// markFlag sets a sticky flag column, recording the timestamp on the first
// transition only. Column names come from the two callers above, never from
// user input.
func (s *SQLiteSessionStore) markFlag(id, flagCol, atCol string) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := ensure(tx, id); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE sessions SET %[2]s = CASE WHEN %[1]s = 1 THEN %[2]s ELSE ? END, %[1]s = 1, updated_at = ? WHERE id = ?`,
		flagCol, atCol,
	)
	if _, err := tx.Exec(query, fmtTime(time.Now()), fmtTime(time.Now()), id); err != nil {
		return fmt.Errorf("marking %s: %w", flagCol, err)
	}
	return tx.Commit()
}

func (s *SQLiteSessionStore) List() ([]*domain.Session, error) {
	rows, err := s.db.sql.Query(`SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

func (s *SQLiteSessionStore) Delete(id string) (bool, error) {
	res, err := s.db.sql.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func touch(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// loadMessages loads all messages for a session in sequence order.
func (s *SQLiteSessionStore) loadMessages(id string) ([]domain.Message, error) {
	rows, err := s.db.sql.Query(
		`SELECT seq, sender, text, sent_at, received_at
		 FROM messages WHERE session_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var sender, sentAt, receivedAt string
		if err := rows.Scan(&msg.Seq, &sender, &msg.Text, &sentAt, &receivedAt); err != nil {
			return nil, err
		}
		msg.Sender = domain.Sender(sender)
		msg.SentAt = parseTime(sentAt)
		msg.ReceivedAt = parseTime(receivedAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// loadIntelligence rebuilds the bundle from the intelligence rows. Values
// come back sorted per category, matching the in-memory merge semantics.
func (s *SQLiteSessionStore) loadIntelligence(id string) (domain.Bundle, error) {
	rows, err := s.db.sql.Query(
		`SELECT category, value FROM intelligence WHERE session_id = ? ORDER BY category, value`, id,
	)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("loading intelligence: %w", err)
	}
	defer rows.Close()

	var b domain.Bundle
	for rows.Next() {
		var category, value string
		if err := rows.Scan(&category, &value); err != nil {
			return domain.Bundle{}, err
		}
		switch category {
		case categoryPaymentHandle:
			b.PaymentHandles = append(b.PaymentHandles, value)
		case categoryPhoneNumber:
			b.PhoneNumbers = append(b.PhoneNumbers, value)
		case categoryBankAccount:
			b.BankAccounts = append(b.BankAccounts, value)
		case categoryLink:
			b.Links = append(b.Links, value)
		case categoryKeyword:
			b.Keywords = append(b.Keywords, value)
		}
	}
	return b, rows.Err()
}
