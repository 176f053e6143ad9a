package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/resume-matcher/internal/vectorstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

const (
	collectionsTable   = "resume_matcher_collections"
	undefinedTableCode = "42P01"
)

// Store keeps every collection in its own table and records dimension and metric in
// a metadata table.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ vectorstore.Store = (*Store)(nil)

func New(ctx context.Context, connString string, logger *zap.Logger) (*Store, error) {
	if connString == "" {
		return nil, errors.New("database connection string is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// the vector type must exist before pooled connections register it
	if err := ensureSchema(ctx, connString); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

func ensureSchema(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("error creating pgvector extension: %w", err)
	}

	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name text PRIMARY KEY,
		dimension integer NOT NULL,
		distance text NOT NULL
	)`, collectionsTable)
	if _, err := conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("error creating collections table: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) RecreateCollection(ctx context.Context, name string, dimension int, distance vectorstore.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if _, err := operator(distance); err != nil {
		return err
	}

	table := tableName(name)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop collection %s: %w", name, err)
		}

		create := fmt.Sprintf(`CREATE TABLE %s (
			id bigint PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload jsonb NOT NULL DEFAULT '{}'::jsonb
		)`, table, dimension)
		if _, err := tx.Exec(ctx, create); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}

		register := fmt.Sprintf(`INSERT INTO %s (name, dimension, distance) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET dimension = EXCLUDED.dimension, distance = EXCLUDED.distance`, collectionsTable)
		if _, err := tx.Exec(ctx, register, name, dimension, string(distance)); err != nil {
			return fmt.Errorf("register collection %s: %w", name, err)
		}

		s.logger.Debug("pgvector collection recreated",
			zap.String("collection", name),
			zap.Int("dimension", dimension),
			zap.String("distance", string(distance)),
		)
		return nil
	})
}

func (s *Store) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, tableName(name))

	batch := &pgx.Batch{}
	for _, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		batch.Queue(sql, int64(p.ID), pgvector.NewVector(p.Vector), payload)
	}

	results := s.pool.SendBatch(ctx, batch)
	for _, p := range points {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return notFound(fmt.Errorf("upsert point %d into %s: %w", p.ID, name, err), err)
		}
	}
	return results.Close()
}

func (s *Store) Search(ctx context.Context, name string, vector []float32, limit int) ([]vectorstore.Hit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	var distance string
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT distance FROM %s WHERE name = $1", collectionsTable), name).Scan(&distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, vectorstore.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup collection %s: %w", name, err)
	}

	op, err := operator(vectorstore.Distance(distance))
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT id, payload, embedding %s $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`, op, tableName(name))

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, notFound(fmt.Errorf("search %s: %w", name, err), err)
	}
	defer rows.Close()

	hits := make([]vectorstore.Hit, 0, limit)
	for rows.Next() {
		var (
			id      int64
			payload map[string]any
			d       float64
		)
		if err := rows.Scan(&id, &payload, &d); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, vectorstore.Hit{
			ID:      uint64(id),
			Payload: payload,
			Score:   similarity(vectorstore.Distance(distance), d),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, notFound(fmt.Errorf("search %s: %w", name, err), err)
	}

	return hits, nil
}

func tableName(collection string) string {
	return pgx.Identifier{"collection_" + collection}.Sanitize()
}

func operator(d vectorstore.Distance) (string, error) {
	switch d {
	case vectorstore.Cosine, "":
		return "<=>", nil
	case vectorstore.Dot:
		return "<#>", nil
	case vectorstore.Euclid:
		return "<->", nil
	default:
		return "", fmt.Errorf("unsupported distance %q", d)
	}
}

// similarity converts a pgvector distance into a higher-is-better score.
// <#> is the negative inner product, so negating it yields the dot product.
func similarity(d vectorstore.Distance, distance float64) float32 {
	if d == vectorstore.Cosine || d == "" {
		return float32(1 - distance)
	}
	return float32(-distance)
}

func notFound(wrapped, cause error) error {
	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) && pgErr.Code == undefinedTableCode {
		return fmt.Errorf("%w: %w", wrapped, vectorstore.ErrCollectionNotFound)
	}
	return wrapped
}
