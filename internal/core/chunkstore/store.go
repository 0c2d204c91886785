// Package chunkstore persists evidence chunks in Postgres with pgvector.
package chunkstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

// deletePageSize bounds each round of DeleteByURL so a large document's
// removal never holds one giant transaction.
const deletePageSize = 200

const defaultTable = "guideline_chunks"

// tablePattern guards the configured table name. It is interpolated into SQL
// as an identifier, which can never be a bind parameter.
var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Store struct {
	db   *sql.DB
	stmt statements
}

var _ core.ChunkStore = (*Store)(nil)

// Options configure the connection; SslCertPath is optional and switches the
// DSN to verify-ca when present. Table defaults to guideline_chunks.
type Options struct {
	DatabaseURL string
	SslCertPath string
	Table       string
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("chunkstore: DATABASE_URL is empty")
	}
	table := opts.Table
	if table == "" {
		table = defaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("chunkstore: invalid table name %q", table)
	}

	dsn := opts.DatabaseURL
	if opts.SslCertPath != "" {
		if _, err := os.Stat(opts.SslCertPath); err != nil {
			return nil, fmt.Errorf("chunkstore: ssl cert not accessible at %q: %w", opts.SslCertPath, err)
		}
		u, err := url.Parse(opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("chunkstore: invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", opts.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chunkstore: ping db: %w", err)
	}

	if err := ensureBootstrapped(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chunkstore: bootstrap: %w", err)
	}

	return &Store{db: db, stmt: buildStatements(table)}, nil
}

// statements are the store's queries with the table identifier baked in.
type statements struct {
	upsert     string
	search     string
	deletePage string
}

func buildStatements(table string) statements {
	return statements{
		upsert: fmt.Sprintf(`
			INSERT INTO %[1]s
				(id, content, search_text, embedding, title, organization, year, source_url, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				search_text = EXCLUDED.search_text,
				embedding = EXCLUDED.embedding,
				title = EXCLUDED.title,
				organization = EXCLUDED.organization,
				year = EXCLUDED.year,
				source_url = EXCLUDED.source_url,
				position = EXCLUDED.position,
				created_at = now()
		`, table),
		search: fmt.Sprintf(`
			SELECT id, content, search_text, embedding, title, organization, year, source_url, position, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM %[1]s
			ORDER BY embedding <=> $1
			LIMIT $2
		`, table),
		deletePage: fmt.Sprintf(`
			DELETE FROM %[1]s
			WHERE id IN (
				SELECT id FROM %[1]s WHERE source_url = $1 LIMIT $2
			)
		`, table),
	}
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertChunks writes one batch in a single transaction. Conflicting chunk
// IDs are overwritten so re-ingestion of the same document replaces rather
// than duplicates its chunks.
func (s *Store) UpsertChunks(ctx context.Context, chunks []models.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, s.stmt.upsert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.Content, ch.SearchText, vec, ch.Title, ch.Organization, ch.Year, ch.SourceURL, ch.Position,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunks runs a cosine-similarity search and filters the page to the
// caller's minimum score.
func (s *Store) SearchChunks(ctx context.Context, queryVec []float32, minSimilarity float64, limit int) ([]models.ScoredChunk, error) {
	vec := pgvector.NewVector(queryVec)
	rows, err := s.db.QueryContext(ctx, s.stmt.search, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&sc.ID, &sc.Content, &sc.SearchText, &emb, &sc.Title, &sc.Organization,
			&sc.Year, &sc.SourceURL, &sc.Position, &sc.CreatedAt, &sc.Similarity,
		); err != nil {
			return nil, err
		}
		if sc.Similarity < minSimilarity {
			continue
		}
		sc.Embedding = emb.Slice()
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DeleteByURL removes a document's chunks in bounded pages with a plain
// loop. Returns the number of rows deleted.
func (s *Store) DeleteByURL(ctx context.Context, sourceURL string) (int, error) {
	total := 0
	for {
		res, err := s.db.ExecContext(ctx, s.stmt.deletePage, sourceURL, deletePageSize)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < deletePageSize {
			return total, nil
		}
	}
}
