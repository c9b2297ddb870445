// File: internal/store/store.go

// Package store provides the per-process sqlite persistence layer. Every
// save is idempotent by primary key; a crash between flushes loses at
// most the unflushed window.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `
CREATE TABLE IF NOT EXISTS agents (
    id         TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS thoughts (
    id          TEXT PRIMARY KEY,
    producer_id TEXT NOT NULL,
    trigger     TEXT NOT NULL,
    observation TEXT NOT NULL,
    reasoning   TEXT NOT NULL,
    conclusion  TEXT NOT NULL,
    suggested   TEXT NOT NULL,
    confidence  REAL NOT NULL,
    timestamp   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS decisions (
    id           TEXT PRIMARY KEY,
    agent_id     TEXT NOT NULL,
    action       TEXT NOT NULL,
    priority     REAL NOT NULL,
    status       TEXT NOT NULL,
    result       TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    completed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pheromones (
    id            TEXT PRIMARY KEY,
    producer_id   TEXT NOT NULL,
    content       TEXT NOT NULL,
    domain        TEXT NOT NULL,
    confidence    REAL NOT NULL,
    strength      REAL NOT NULL,
    connections   TEXT NOT NULL,
    timestamp     INTEGER NOT NULL,
    attestation   TEXT NOT NULL,
    da_commitment TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS collective_memories (
    id           TEXT PRIMARY KEY,
    topic        TEXT NOT NULL,
    synthesis    TEXT NOT NULL,
    contributors TEXT NOT NULL,
    signal_ids   TEXT NOT NULL,
    confidence   REAL NOT NULL,
    attestation  TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    report       TEXT
);
`

// Store implements schemas.Store on a local sqlite file.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// An empty path yields an in-memory database, useful for tests and for
// running without persistence.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite handles one writer; serialize all access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveAgent upserts an agent's serialized state blob.
func (s *Store) SaveAgent(ctx context.Context, agentID string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO agents (id, state, updated_at) VALUES (?, ?, strftime('%s','now'))
        ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		agentID, string(state))
	if err != nil {
		return fmt.Errorf("failed to save agent state: %w", err)
	}
	return nil
}

// LoadAgent returns the last persisted state blob, or nil when none
// exists.
func (s *Store) LoadAgent(ctx context.Context, agentID string) ([]byte, error) {
	var state string
	err := s.db.GetContext(ctx, &state, `SELECT state FROM agents WHERE id = ?`, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent state: %w", err)
	}
	return []byte(state), nil
}

// SaveThought upserts one thought.
func (s *Store) SaveThought(ctx context.Context, t schemas.Thought) error {
	suggested, err := json.MarshalToString(t.SuggestedActions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggested actions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO thoughts (id, producer_id, trigger, observation, reasoning, conclusion, suggested, confidence, timestamp)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET confidence = excluded.confidence`,
		t.ID, t.ProducerID, t.Trigger, t.Observation, t.Reasoning, t.Conclusion, suggested, t.Confidence, t.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save thought: %w", err)
	}
	return nil
}

// SaveDecision upserts one decision, refreshing status and result so the
// completed/failed transition overwrites the executing row.
func (s *Store) SaveDecision(ctx context.Context, d schemas.Decision) error {
	action, err := json.MarshalToString(d.Action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO decisions (id, agent_id, action, priority, status, result, created_at, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            result = excluded.result,
            completed_at = excluded.completed_at`,
		d.ID, d.AgentID, action, d.Priority, string(d.Status), d.Result, d.CreatedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// SavePheromone upserts one signal, refreshing the mutable fields.
func (s *Store) SavePheromone(ctx context.Context, sig schemas.Signal) error {
	connections, err := json.MarshalToString(sig.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO pheromones (id, producer_id, content, domain, confidence, strength, connections, timestamp, attestation, da_commitment)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            strength = excluded.strength,
            da_commitment = excluded.da_commitment`,
		sig.ID, sig.ProducerID, sig.Content, sig.Domain, sig.Confidence, sig.Strength, connections, sig.Timestamp, sig.Attestation, sig.DACommitment)
	if err != nil {
		return fmt.Errorf("failed to save pheromone: %w", err)
	}
	return nil
}

// SaveCollectiveMemory upserts one collective memory. Memories are
// immutable after creation, so a conflicting insert is a no-op.
func (s *Store) SaveCollectiveMemory(ctx context.Context, m schemas.CollectiveMemory) error {
	contributors, err := json.MarshalToString(m.Contributors)
	if err != nil {
		return fmt.Errorf("failed to marshal contributors: %w", err)
	}
	signalIDs, err := json.MarshalToString(m.SignalIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal signal ids: %w", err)
	}
	var report sql.NullString
	if m.Report != nil {
		encoded, err := json.MarshalToString(m.Report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		report = sql.NullString{String: encoded, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO collective_memories (id, topic, synthesis, contributors, signal_ids, confidence, attestation, created_at, report)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`,
		m.ID, m.Topic, m.Synthesis, contributors, signalIDs, m.Confidence, m.Attestation, m.CreatedAt, report)
	if err != nil {
		return fmt.Errorf("failed to save collective memory: %w", err)
	}
	return nil
}

// LoadCollectiveMemories returns every persisted memory, newest first.
func (s *Store) LoadCollectiveMemories(ctx context.Context) ([]schemas.CollectiveMemory, error) {
	rows, err := s.db.QueryxContext(ctx, `
        SELECT id, topic, synthesis, contributors, signal_ids, confidence, attestation, created_at, report
        FROM collective_memories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collective memories: %w", err)
	}
	defer rows.Close()

	var memories []schemas.CollectiveMemory
	for rows.Next() {
		var (
			m            schemas.CollectiveMemory
			contributors string
			signalIDs    string
			report       sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Topic, &m.Synthesis, &contributors, &signalIDs, &m.Confidence, &m.Attestation, &m.CreatedAt, &report); err != nil {
			return nil, fmt.Errorf("failed to scan collective memory row: %w", err)
		}
		if err := json.UnmarshalFromString(contributors, &m.Contributors); err != nil {
			return nil, fmt.Errorf("failed to decode contributors: %w", err)
		}
		if err := json.UnmarshalFromString(signalIDs, &m.SignalIDs); err != nil {
			return nil, fmt.Errorf("failed to decode signal ids: %w", err)
		}
		if report.Valid && strings.TrimSpace(report.String) != "" {
			var r schemas.CollectiveReport
			if err := json.UnmarshalFromString(report.String, &r); err != nil {
				return nil, fmt.Errorf("failed to decode report: %w", err)
			}
			m.Report = &r
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return memories, nil
}
