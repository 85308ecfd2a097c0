// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/thinkbox/services/orchestrator/datatypes"
	"modernc.org/sqlite"
)

const (
	sqliteConstraint      = 19
	sqliteConstraintCheck = 275
	sqliteConstraintFK    = 787
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL DEFAULT 'anonymous',
  original_prompt TEXT NOT NULL,
  phase TEXT NOT NULL DEFAULT 'idle',
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS nodes (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  parent_id TEXT REFERENCES nodes(id) ON DELETE CASCADE,
  agent_type TEXT NOT NULL CHECK(agent_type IN ('root','creator','skeptic','lateral','summary')),
  content TEXT NOT NULL,
  metadata TEXT NOT NULL DEFAULT '{}',
  grade INTEGER CHECK(grade >= 1 AND grade <= 5),
  status TEXT NOT NULL DEFAULT 'complete' CHECK(status IN ('pending','generating','complete','ignored')),
  x_pos REAL NOT NULL DEFAULT 0,
  y_pos REAL NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deep_dives (
  id TEXT PRIMARY KEY,
  node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
  full_markdown_content TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_nodes_session ON nodes(session_id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
CREATE INDEX IF NOT EXISTS idx_deep_dives_node ON deep_dives(node_id);
`

// SQLiteStore implements Store on a local SQLite database with WAL mode
// and foreign keys enabled. Parent cycles are impossible by construction:
// parents are always pre-existing rows and parent_id is write-once.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets the stream replay read while an action writes. Foreign
	// keys drive the session cascade delete.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Info("Opened brainstorm store", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Sessions
// =============================================================================

func (s *SQLiteStore) CreateSession(ctx context.Context, id, userID, prompt string) (*datatypes.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, original_prompt, phase) VALUES (?, ?, ?, 'idle')`,
		id, userID, prompt)
	if err != nil {
		return nil, wrapSQLiteError(err)
	}
	return s.GetSession(ctx, id)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*datatypes.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, original_prompt, phase, created_at FROM sessions WHERE id = ?`, id)
	var sess datatypes.Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.OriginalPrompt, &sess.Phase, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) UpdateSessionPhase(ctx context.Context, id string, phase datatypes.Phase) error {
	if phase.Ordinal() < 0 {
		return fmt.Errorf("%w: unknown phase %q", ErrConstraint, phase)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current datatypes.Phase
	if err := tx.QueryRowContext(ctx, `SELECT phase FROM sessions WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if phase.Ordinal() < current.Ordinal() {
		return fmt.Errorf("%w: phase cannot move backward (%s -> %s)", ErrConstraint, current, phase)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET phase = ? WHERE id = ?`, phase, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, limit int) ([]datatypes.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.original_prompt, s.phase, s.created_at, COUNT(n.id)
		FROM sessions s
		LEFT JOIN nodes n ON n.session_id = s.id AND n.agent_type != 'root'
		WHERE s.user_id = ?
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []datatypes.SessionSummary{}
	for rows.Next() {
		var sum datatypes.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.OriginalPrompt, &sum.Phase, &sum.CreatedAt, &sum.NodeCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	// Cascade takes the nodes and deep dives with it.
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Nodes
// =============================================================================

const insertNodeSQL = `
INSERT INTO nodes (id, session_id, parent_id, agent_type, content, metadata, grade, status, x_pos, y_pos)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) CreateNode(ctx context.Context, node *datatypes.Node) (*datatypes.Node, error) {
	_, err := s.db.ExecContext(ctx, insertNodeSQL,
		node.ID, node.SessionID, node.ParentID, node.AgentType,
		node.Content, node.Metadata, node.Grade, node.Status, node.XPos, node.YPos)
	if err != nil {
		return nil, wrapSQLiteError(err)
	}
	return s.GetNode(ctx, node.ID)
}

// CreateChildNode checks the session node cap and the parent child cap and
// performs the insert inside one immediate transaction, so two concurrent
// expands cannot jointly exceed either cap.
func (s *SQLiteStore) CreateChildNode(ctx context.Context, node *datatypes.Node) (*datatypes.Node, error) {
	if node.ParentID == nil {
		return nil, fmt.Errorf("%w: child node requires a parent", ErrConstraint)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The write lock must be taken before the counts are read, otherwise
	// this is the same check-then-act race at a smaller scale.
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET id = id WHERE id = ?`, node.SessionID); err != nil {
		return nil, err
	}

	var total int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE session_id = ?`, node.SessionID).Scan(&total); err != nil {
		return nil, err
	}
	if total >= MaxNodesPerSession {
		return nil, &CapacityError{Kind: "session_nodes", Limit: MaxNodesPerSession}
	}

	var parentType datatypes.AgentType
	if err := tx.QueryRowContext(ctx,
		`SELECT agent_type FROM nodes WHERE id = ?`, *node.ParentID).Scan(&parentType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parentType != datatypes.AgentRoot {
		var children int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM nodes WHERE parent_id = ?`, *node.ParentID).Scan(&children); err != nil {
			return nil, err
		}
		if children >= MaxChildrenPerNode {
			return nil, &CapacityError{Kind: "node_children", Limit: MaxChildrenPerNode}
		}
	}

	if _, err := tx.ExecContext(ctx, insertNodeSQL,
		node.ID, node.SessionID, node.ParentID, node.AgentType,
		node.Content, node.Metadata, node.Grade, node.Status, node.XPos, node.YPos); err != nil {
		return nil, wrapSQLiteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetNode(ctx, node.ID)
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*datatypes.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, parent_id, agent_type, content, metadata, grade, status, x_pos, y_pos, created_at
		FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return node, nil
}

func (s *SQLiteStore) ListSessionNodes(ctx context.Context, sessionID string) ([]datatypes.Node, error) {
	// rowid breaks created_at ties; datetime('now') only has one-second
	// resolution and a whole phase can land inside it.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, parent_id, agent_type, content, metadata, grade, status, x_pos, y_pos, created_at
		FROM nodes WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []datatypes.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

func (s *SQLiteStore) UpdateNode(ctx context.Context, id string, patch *datatypes.PatchNodeRequest) error {
	sets := []string{}
	args := []any{}
	if patch.GradeSet {
		sets = append(sets, "grade = ?")
		args = append(args, patch.Grade)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.XPos != nil {
		sets = append(sets, "x_pos = ?")
		args = append(args, *patch.XPos)
	}
	if patch.YPos != nil {
		sets = append(sets, "y_pos = ?")
		args = append(args, *patch.YPos)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE nodes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return wrapSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountDirectChildren(ctx context.Context, nodeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE parent_id = ?`, nodeID).Scan(&count)
	return count, err
}

func (s *SQLiteStore) CountSessionNodes(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// =============================================================================
// Deep dives
// =============================================================================

func (s *SQLiteStore) CreateDeepDive(ctx context.Context, id, nodeID, markdown string) (*datatypes.DeepDive, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deep_dives (id, node_id, full_markdown_content) VALUES (?, ?, ?)`,
		id, nodeID, markdown)
	if err != nil {
		return nil, wrapSQLiteError(err)
	}
	return s.GetLatestDeepDive(ctx, nodeID)
}

func (s *SQLiteStore) GetLatestDeepDive(ctx context.Context, nodeID string) (*datatypes.DeepDive, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_id, full_markdown_content, created_at
		FROM deep_dives WHERE node_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, nodeID)
	var dd datatypes.DeepDive
	if err := row.Scan(&dd.ID, &dd.NodeID, &dd.FullMarkdownContent, &dd.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &dd, nil
}

// =============================================================================
// Helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*datatypes.Node, error) {
	var node datatypes.Node
	var parentID sql.NullString
	var grade sql.NullInt64
	if err := row.Scan(&node.ID, &node.SessionID, &parentID, &node.AgentType,
		&node.Content, &node.Metadata, &grade, &node.Status,
		&node.XPos, &node.YPos, &node.CreatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	if grade.Valid {
		g := int(grade.Int64)
		node.Grade = &g
	}
	return &node, nil
}

func wrapSQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqliteConstraint || code == sqliteConstraintCheck || code == sqliteConstraintFK {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
