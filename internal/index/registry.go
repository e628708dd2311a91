package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lexarch/lexarch/internal/metadata"
)

// ErrUnreadableDocument marks a source file that could not be read or
// parsed. Sync treats it as skippable rather than fatal.
var ErrUnreadableDocument = errors.New("unreadable document")

// Fingerprint identifies a document version. Two fingerprints describe
// the same content when size and hash match; mtime is informational and
// never part of equality, so touch(1) alone does not trigger a rebuild.
type Fingerprint struct {
	Size   int64
	MTime  time.Time
	SHA256 string
}

// Equal reports whether both fingerprints describe the same content.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.SHA256 == other.SHA256
}

// ComputeFingerprint hashes the reader's content into a fingerprint.
func ComputeFingerprint(r io.Reader, size int64, mtime time.Time) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return Fingerprint{
		Size:   size,
		MTime:  mtime,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// DocumentRecord is a registry entry for one indexed document.
type DocumentRecord struct {
	Identity     string
	Fingerprint  Fingerprint
	Tier         metadata.Tier
	Jurisdiction metadata.Jurisdiction
	Title        string
	Year         int
	ChunkCount   int
	IndexedAt    time.Time
}

// NeedsReindex reports whether the document identified by identity must
// be (re)indexed given its current fingerprint. Unknown documents need
// indexing; known ones only when content changed.
func (s *Store) NeedsReindex(ctx context.Context, identity string, fp Fingerprint) (bool, error) {
	var size int64
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT size, sha256 FROM documents WHERE identity = ?", identity,
	).Scan(&size, &hash)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", identity, err)
	}
	return !fp.Equal(Fingerprint{Size: size, SHA256: hash}), nil
}

// Commit records a document as indexed. Called only after its chunks
// and vectors are durably written, so a crash in between leaves the
// registry conservative and the next sync re-indexes.
func (s *Store) Commit(ctx context.Context, identity string, fp Fingerprint, info metadata.Info, chunkCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (identity, size, mtime_unix, sha256, tier, jurisdiction, title, year, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			size = excluded.size,
			mtime_unix = excluded.mtime_unix,
			sha256 = excluded.sha256,
			tier = excluded.tier,
			jurisdiction = excluded.jurisdiction,
			title = excluded.title,
			year = excluded.year,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at
	`, identity, fp.Size, fp.MTime.Unix(), fp.SHA256,
		int(info.Tier), string(info.Jurisdiction), info.Title, info.Year,
		chunkCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("committing %s: %w", identity, err)
	}
	return nil
}

// DeleteDocument removes a document and its chunks from the index.
func (s *Store) DeleteDocument(ctx context.Context, identity string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE identity = ?", identity); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", identity, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE identity = ?", identity); err != nil {
		return fmt.Errorf("deleting %s: %w", identity, err)
	}
	return tx.Commit()
}

// ListDocuments returns all registry entries ordered by identity.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, size, mtime_unix, sha256, tier, jurisdiction, title, year, chunk_count, indexed_at
		FROM documents ORDER BY identity
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		var mtimeUnix int64
		var tier int
		var jurisdiction string
		if err := rows.Scan(&rec.Identity, &rec.Fingerprint.Size, &mtimeUnix, &rec.Fingerprint.SHA256,
			&tier, &jurisdiction, &rec.Title, &rec.Year, &rec.ChunkCount, &rec.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		rec.Fingerprint.MTime = time.Unix(mtimeUnix, 0)
		rec.Tier = metadata.Tier(tier)
		rec.Jurisdiction = metadata.Jurisdiction(jurisdiction)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetDocument returns the registry entry for identity, or nil when the
// document is not indexed.
func (s *Store) GetDocument(ctx context.Context, identity string) (*DocumentRecord, error) {
	var rec DocumentRecord
	var mtimeUnix int64
	var tier int
	var jurisdiction string
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, size, mtime_unix, sha256, tier, jurisdiction, title, year, chunk_count, indexed_at
		FROM documents WHERE identity = ?
	`, identity).Scan(&rec.Identity, &rec.Fingerprint.Size, &mtimeUnix, &rec.Fingerprint.SHA256,
		&tier, &jurisdiction, &rec.Title, &rec.Year, &rec.ChunkCount, &rec.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", identity, err)
	}
	rec.Fingerprint.MTime = time.Unix(mtimeUnix, 0)
	rec.Tier = metadata.Tier(tier)
	rec.Jurisdiction = metadata.Jurisdiction(jurisdiction)
	return &rec, nil
}
