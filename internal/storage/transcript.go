/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talkbox/internal/errs"
)

// EventKind classifies a transcript event.
type EventKind string

const (
	EventLine    EventKind = "line"
	EventOptions EventKind = "options"
	EventChoice  EventKind = "choice"
	EventCommand EventKind = "command"
	EventJump    EventKind = "jump"
	EventEnd     EventKind = "end"
	EventError   EventKind = "error"
)

// Session is one play-through of a script.
type Session struct {
	ID        int64
	Script    string
	StartNode string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
	Outcome   string
	Events    int
}

// Open reports whether the session has not been ended.
func (s Session) Open() bool { return s.EndedAt.IsZero() }

// Event is one recorded runner event. Seq and At are filled by Append when zero.
type Event struct {
	Seq     int
	Kind    EventKind
	Node    string
	Speaker string
	Text    string
	At      time.Time
}

// language=SQL
const insertSessionSQL = `INSERT INTO sessions(script, start_node, started_at) VALUES (?, ?, ?) RETURNING id`

// language=SQL
const selectSessionStateSQL = `SELECT ended_at FROM sessions WHERE id = ?`

// language=SQL
const nextSeqSQL = `SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?`

// language=SQL
const insertEventSQL = `INSERT INTO events(session_id, seq, kind, node, speaker, text, at) VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
const endSessionSQL = `UPDATE sessions SET ended_at = ?, outcome = ? WHERE id = ? AND ended_at IS NULL`

// language=SQL
const listEventsSQL = `SELECT seq, kind, node, speaker, text, at FROM events WHERE session_id = ? ORDER BY seq`

// language=SQL
const sessionColumns = `SELECT s.id, s.script, s.start_node, s.started_at, s.ended_at, s.outcome,
	(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id) FROM sessions s`

// language=SQL
const pruneEventsSQL = `DELETE FROM events WHERE session_id NOT IN (
	SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
)`

// language=SQL
const pruneSessionsSQL = `DELETE FROM sessions WHERE id NOT IN (
	SELECT id FROM (SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?) AS keep
)`

// stampLayout is fixed width so timestamps sort as text.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

func unstamp(s string) time.Time {
	t, _ := time.Parse(stampLayout, s)
	return t
}

// BeginSession opens a new session for script starting at node.
func (s *Store) BeginSession(ctx context.Context, script, node string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(insertSessionSQL), script, node, stamp(time.Now())).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("begin session: %w", err)
	}
	s.log.Debug("session started", slog.Int64("session", id), slog.String("script", script), slog.String("node", node))
	return id, nil
}

// Append records ev at the end of session id. Appending to an unknown session
// fails with errs.ErrLookup; to an ended one with errs.ErrState.
func (s *Store) Append(ctx context.Context, id int64, ev Event) (Event, error) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ev, err
	}
	defer func() { _ = tx.Rollback() }()

	var ended sql.NullString
	switch err := tx.QueryRowContext(ctx, s.rebind(selectSessionStateSQL), id).Scan(&ended); {
	case errors.Is(err, sql.ErrNoRows):
		return ev, fmt.Errorf("%w: session %d", errs.ErrLookup, id)
	case err != nil:
		return ev, err
	case ended.Valid:
		return ev, fmt.Errorf("%w: session %d has ended", errs.ErrState, id)
	}
	if err := tx.QueryRowContext(ctx, s.rebind(nextSeqSQL), id).Scan(&ev.Seq); err != nil {
		return ev, err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(insertEventSQL), id, ev.Seq, string(ev.Kind), ev.Node, ev.Speaker, ev.Text, stamp(ev.At)); err != nil {
		return ev, fmt.Errorf("append event: %w", err)
	}
	return ev, tx.Commit()
}

// EndSession closes session id with outcome. Ending twice fails with errs.ErrState.
func (s *Store) EndSession(ctx context.Context, id int64, outcome string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(endSessionSQL), stamp(time.Now()), outcome, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Session(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %d already ended", errs.ErrState, id)
	}
	s.log.Debug("session ended", slog.Int64("session", id), slog.String("outcome", outcome))
	return nil
}

// Events returns the events of session id in order.
func (s *Store) Events(ctx context.Context, id int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(listEventsSQL), id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var ev Event
		var kind, at string
		if err := rows.Scan(&ev.Seq, &kind, &ev.Node, &ev.Speaker, &ev.Text, &at); err != nil {
			return nil, err
		}
		ev.Kind = EventKind(kind)
		ev.At = unstamp(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Session returns session id, or errs.ErrLookup.
func (s *Store) Session(ctx context.Context, id int64) (Session, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(sessionColumns+` WHERE s.id = ?`), id)
	if err != nil {
		return Session{}, err
	}
	list, err := scanSessions(rows)
	if err != nil {
		return Session{}, err
	}
	if len(list) == 0 {
		return Session{}, fmt.Errorf("%w: session %d", errs.ErrLookup, id)
	}
	return list[0], nil
}

// Sessions returns up to limit sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(sessionColumns+` ORDER BY s.started_at DESC, s.id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	defer func() { _ = rows.Close() }()
	var out []Session
	for rows.Next() {
		var ss Session
		var started string
		var ended sql.NullString
		if err := rows.Scan(&ss.ID, &ss.Script, &ss.StartNode, &started, &ended, &ss.Outcome, &ss.Events); err != nil {
			return nil, err
		}
		ss.StartedAt = unstamp(started)
		if ended.Valid {
			ss.EndedAt = unstamp(ended.String)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Prune keeps the keepLast most recent sessions and deletes older ones with
// their events. It returns the number of sessions removed.
func (s *Store) Prune(ctx context.Context, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.rebind(pruneEventsSQL), keepLast); err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(pruneSessionsSQL), keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("pruned sessions", slog.Int64("removed", n), slog.Int("kept", keepLast))
	}
	return n, nil
}
