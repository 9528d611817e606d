package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFactStore persists long-term user facts in PostgreSQL.
type PostgresFactStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFactStore(ctx context.Context, databaseURL string) (*PostgresFactStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initFactSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresFactStore{pool: pool}, nil
}

func initFactSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_facts (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			fact_key TEXT NOT NULL,
			fact_value TEXT NOT NULL,
			embedding REAL[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_facts_user_seq ON user_facts (user_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresFactStore) SaveFact(ctx context.Context, userID, key, value string) (Fact, error) {
	fact := Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_facts (id, user_id, fact_key, fact_value, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		fact.ID,
		fact.UserID,
		fact.Key,
		fact.Value,
		fact.Embedding,
		fact.CreatedAt,
	)
	if err != nil {
		return Fact{}, fmt.Errorf("save fact: %w", err)
	}
	return fact, nil
}

func (s *PostgresFactStore) GetFacts(ctx context.Context, userID string) ([]Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, fact_key, fact_value, embedding, created_at
		 FROM user_facts WHERE user_id=$1 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	return scanFacts(rows)
}

// SearchFacts uses strpos so matching stays a literal, case-sensitive substring test.
func (s *PostgresFactStore) SearchFacts(ctx context.Context, userID, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultFactLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, fact_key, fact_value, embedding, created_at
		 FROM user_facts
		 WHERE user_id=$1 AND (strpos(fact_key, $2) > 0 OR strpos(fact_value, $2) > 0)
		 ORDER BY seq LIMIT $3`,
		userID,
		query,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	return scanFacts(rows)
}

func (s *PostgresFactStore) ClearFacts(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_facts WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("clear facts: %w", err)
	}
	return nil
}

func (s *PostgresFactStore) Close() error {
	s.pool.Close()
	return nil
}

func scanFacts(rows pgx.Rows) ([]Fact, error) {
	defer rows.Close()
	var items []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.UserID, &f.Key, &f.Value, &f.Embedding, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return items, nil
}
