package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/config"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

type DatabaseClient struct {
	db       *sql.DB
	embedDim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, embedDim: cfg.EmbedDim}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, storage_url, content_type, source_type, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.StorageURL, doc.ContentType, doc.SourceType, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, content_type, source_type, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.StorageURL, &d.ContentType, &d.SourceType, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, storage_url, content_type, source_type, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.StorageURL, &d.ContentType, &d.SourceType, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Processing jobs

// ResetJob is a conditional upsert keyed on document_id: it either creates
// the job or rewrites it back to the pending baseline. The WHERE clause
// makes it a compare-and-swap that refuses while the job is processing.
func (c *DatabaseClient) ResetJob(ctx context.Context, documentID string, jobConfig map[string]any) (*models.ProcessingJob, error) {
	cfgBytes, err := json.Marshal(orEmpty(jobConfig))
	if err != nil {
		return nil, fmt.Errorf("marshal job config: %w", err)
	}

	const q = `
		INSERT INTO processing_jobs
			(id, document_id, status, progress, details, error_message, config, created_at, updated_at)
		VALUES
			($1, $2, 'pending', 0, '', '', $3, now(), now())
		ON CONFLICT (document_id) DO UPDATE SET
			status = 'pending', progress = 0, details = '', error_message = '',
			config = EXCLUDED.config, started_at = NULL, completed_at = NULL, updated_at = now()
		WHERE processing_jobs.status <> 'processing'
		RETURNING id, document_id, status, progress, details, error_message, config,
		          created_at, started_at, updated_at, completed_at
	`
	job, err := scanJob(c.db.QueryRowContext(ctx, q, uuid.NewString(), documentID, cfgBytes))
	if err == sql.ErrNoRows {
		return nil, core.ErrJobRunning
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (c *DatabaseClient) GetJobByDocument(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	const q = `
		SELECT id, document_id, status, progress, details, error_message, config,
		       created_at, started_at, updated_at, completed_at
		FROM processing_jobs
		WHERE document_id = $1
	`
	job, err := scanJob(c.db.QueryRowContext(ctx, q, documentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkJobProcessing claims the job for one run. The status predicate
// makes the claim a compare-and-swap: only a pending job can move to
// processing, so when the same document sits in the queue twice, the
// second worker loses the claim and gets ErrJobRunning.
func (c *DatabaseClient) MarkJobProcessing(ctx context.Context, documentID string, progress int, details string) error {
	const q = `
		UPDATE processing_jobs
		SET status = 'processing', progress = GREATEST(progress, $2), details = $3,
		    error_message = '', started_at = now(), updated_at = now()
		WHERE document_id = $1 AND status = 'pending'
	`
	res, err := c.db.ExecContext(ctx, q, documentID, progress, details)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		job, jerr := c.GetJobByDocument(ctx, documentID)
		if jerr != nil {
			return jerr
		}
		if job == nil {
			return fmt.Errorf("job not found for document: %s", documentID)
		}
		return core.ErrJobRunning
	}
	return nil
}

// UpdateJobProgress keeps progress monotonic within a run via GREATEST.
func (c *DatabaseClient) UpdateJobProgress(ctx context.Context, documentID string, progress int, details string) error {
	const q = `
		UPDATE processing_jobs
		SET progress = GREATEST(progress, $2), details = $3, updated_at = now()
		WHERE document_id = $1
	`
	return c.execJobUpdate(ctx, q, documentID, progress, details)
}

func (c *DatabaseClient) CompleteJob(ctx context.Context, documentID string) error {
	const q = `
		UPDATE processing_jobs
		SET status = 'completed', progress = 100, details = 'done',
		    completed_at = now(), updated_at = now()
		WHERE document_id = $1
	`
	return c.execJobUpdate(ctx, q, documentID)
}

func (c *DatabaseClient) FailJob(ctx context.Context, documentID string, errMsg string) error {
	const q = `
		UPDATE processing_jobs
		SET status = 'failed', error_message = $2, completed_at = now(), updated_at = now()
		WHERE document_id = $1
	`
	return c.execJobUpdate(ctx, q, documentID, errMsg)
}

func (c *DatabaseClient) execJobUpdate(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job not found for document: %v", args[0])
	}
	return nil
}

// Chunks

// ReplaceDocumentChunks deletes prior chunks (embeddings cascade) and
// inserts the new set in a single transaction.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, word_count, page_start, page_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Content, ch.WordCount, ch.PageStart, ch.PageEnd,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, content, word_count, page_start, page_end, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		var pageStart, pageEnd sql.NullInt64
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Content, &ch.WordCount, &pageStart, &pageEnd, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.PageStart = int(pageStart.Int64)
		ch.PageEnd = int(pageEnd.Int64)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// Embeddings

func (c *DatabaseClient) InsertChunkEmbedding(ctx context.Context, emb *models.ChunkEmbedding) error {
	if emb == nil {
		return errors.New("nil embedding")
	}
	if c.embedDim > 0 && len(emb.Vector) != c.embedDim {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(emb.Vector), c.embedDim)
	}
	metaBytes, err := json.Marshal(orEmpty(emb.Metadata))
	if err != nil {
		return fmt.Errorf("marshal embedding metadata: %w", err)
	}

	const q = `
		INSERT INTO chunk_embeddings (id, chunk_id, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err = c.db.ExecContext(ctx, q, emb.ID, emb.ChunkID, pgvector.NewVector(emb.Vector), metaBytes)
	return err
}

func (c *DatabaseClient) CountEmbeddingsByDocument(ctx context.Context, documentID string) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM chunk_embeddings e
		JOIN document_chunks ch ON ch.id = e.chunk_id
		WHERE ch.document_id = $1
	`
	var n int
	err := c.db.QueryRowContext(ctx, q, documentID).Scan(&n)
	return n, err
}

// Search reads

func (c *DatabaseClient) ListEmbeddedChunks(ctx context.Context, documentIDs []string) ([]models.SearchCandidate, error) {
	q := `
		SELECT e.chunk_id, ch.document_id, d.file_name, d.content_type,
		       ch.content, ch.word_count, ch.page_start, ch.page_end, e.embedding
		FROM chunk_embeddings e
		JOIN document_chunks ch ON ch.id = e.chunk_id
		JOIN documents d ON d.id = ch.document_id
	`
	args := []any{}
	if len(documentIDs) > 0 {
		q += " WHERE ch.document_id IN (" + placeholders(1, len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	q += " ORDER BY ch.document_id, ch.chunk_index"

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchCandidate
	for rows.Next() {
		var (
			cand               models.SearchCandidate
			pageStart, pageEnd sql.NullInt64
			vec                pgvector.Vector
		)
		if err := rows.Scan(
			&cand.ChunkID, &cand.DocumentID, &cand.DocumentName, &cand.DocumentType,
			&cand.Content, &cand.WordCount, &pageStart, &pageEnd, &vec,
		); err != nil {
			return nil, err
		}
		cand.PageStart = int(pageStart.Int64)
		cand.PageEnd = int(pageEnd.Int64)
		cand.Vector = vec.Slice()
		out = append(out, cand)
	}
	return out, rows.Err()
}

// MatchChunksByText is the lexical fallback: a case-insensitive substring
// match ordered by chunk size as the secondary ranking signal.
func (c *DatabaseClient) MatchChunksByText(ctx context.Context, query string, documentIDs []string, limit int) ([]models.SearchCandidate, error) {
	q := `
		SELECT ch.id, ch.document_id, d.file_name, d.content_type,
		       ch.content, ch.word_count, ch.page_start, ch.page_end
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE ch.content ILIKE '%' || $1 || '%'
	`
	args := []any{query}
	if len(documentIDs) > 0 {
		q += " AND ch.document_id IN (" + placeholders(2, len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	q += fmt.Sprintf(" ORDER BY ch.word_count DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchCandidate
	for rows.Next() {
		var (
			cand               models.SearchCandidate
			pageStart, pageEnd sql.NullInt64
		)
		if err := rows.Scan(
			&cand.ChunkID, &cand.DocumentID, &cand.DocumentName, &cand.DocumentType,
			&cand.Content, &cand.WordCount, &pageStart, &pageEnd,
		); err != nil {
			return nil, err
		}
		cand.PageStart = int(pageStart.Int64)
		cand.PageEnd = int(pageEnd.Int64)
		out = append(out, cand)
	}
	return out, rows.Err()
}

// helpers

func scanJob(row *sql.Row) (*models.ProcessingJob, error) {
	var (
		j                      models.ProcessingJob
		cfgBytes               []byte
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.DocumentID, &j.Status, &j.Progress, &j.Details, &j.ErrorMessage, &cfgBytes,
		&j.CreatedAt, &startedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfgBytes) > 0 {
		if err := json.Unmarshal(cfgBytes, &j.Config); err != nil {
			return nil, fmt.Errorf("unmarshal job config: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// placeholders renders "$start, $start+1, ..." for dynamic IN clauses.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
