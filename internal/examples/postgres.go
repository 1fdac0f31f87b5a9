package examples

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"
)

// MinSimilarity drops examples too far from the question to help
const MinSimilarity = 0.5

// PostgresStore keeps examples in translator_examples and ranks them with
// pgvector cosine distance.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the application database through lib/pq
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "examples: open database")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping tests the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Similar implements Source
func (s *PostgresStore) Similar(ctx context.Context, question string, limit int) ([]Example, error) {
	if limit <= 0 {
		return nil, nil
	}
	vector := pgvector.NewVector(Embed(question))

	query := `
		SELECT id, question, sql_text, 1 - (embedding <=> $1) AS similarity
		FROM translator_examples
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, vector, MinSimilarity, limit)
	if err != nil {
		return nil, eris.Wrap(err, "examples: query similar")
	}
	defer rows.Close()

	var out []Example
	for rows.Next() {
		var ex Example
		if err := rows.Scan(&ex.ID, &ex.Question, &ex.SQL, &ex.Similarity); err != nil {
			return nil, eris.Wrap(err, "examples: scan similar row")
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "examples: iterate similar rows")
	}
	return out, nil
}

// Store upserts an example keyed by its question
func (s *PostgresStore) Store(ctx context.Context, ex Example) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	vector := pgvector.NewVector(Embed(ex.Question))

	query := `
		INSERT INTO translator_examples (id, question, sql_text, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (question) DO UPDATE SET
			sql_text = EXCLUDED.sql_text,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, ex.ID, ex.Question, ex.SQL, vector, time.Now().UTC()); err != nil {
		return eris.Wrapf(err, "examples: store %q", ex.Question)
	}
	return nil
}

// SeedDefaults stores the built-in examples
func (s *PostgresStore) SeedDefaults(ctx context.Context) (int, error) {
	exs := Seed().Examples
	for _, ex := range exs {
		if err := s.Store(ctx, ex); err != nil {
			return 0, err
		}
	}
	return len(exs), nil
}
