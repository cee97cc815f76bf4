package store

import (
	"context"
	"errors"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memoryColumns = `id, version, kind, summary, confidence, importance,
	recorded_at, valid_from, valid_until, archived, archive_reason,
	superseded_by, supersedes, external_refs, tx_time`

// MemoryStore keeps every memory as an append-only chain of versions in
// memory_versions. The (id, version) primary key doubles as the
// compare-and-swap: two writers racing to write version N+1 collide on the
// key and the loser gets ErrVersionConflict.
type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	m.Version = 1
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_versions (id, version, kind, summary, confidence, importance,
		    recorded_at, valid_from, valid_until, archived, archive_reason,
		    superseded_by, supersedes, external_refs, tx_time)
		 VALUES ($1, 1, $2, $3, $4, $5, NOW(), $6, NULL, FALSE, '', $7, $8, $9, NOW())
		 RETURNING recorded_at, tx_time`,
		m.ID, m.Kind, m.Summary, m.Confidence, m.Importance,
		m.ValidFrom, m.SupersededBy, m.Supersedes, nonNullRefs(m.ExternalRefs),
	).Scan(&m.RecordedAt, &m.TxTime)
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+`
		 FROM memory_versions WHERE id = $1
		 ORDER BY version DESC LIMIT 1`, id)
	return scanMemory(row)
}

func (s *MemoryStore) GetAsOf(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Memory, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+`
		 FROM memory_versions WHERE id = $1 AND tx_time <= $2
		 ORDER BY version DESC LIMIT 1`, id, at)
	return scanMemory(row)
}

func (s *MemoryStore) InsertVersion(ctx context.Context, m *domain.Memory, expected int64) error {
	m.Version = expected + 1
	err := s.db.QueryRow(ctx,
		`INSERT INTO memory_versions (id, version, kind, summary, confidence, importance,
		    recorded_at, valid_from, valid_until, archived, archive_reason,
		    superseded_by, supersedes, external_refs, tx_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		 RETURNING tx_time`,
		m.ID, m.Version, m.Kind, m.Summary, m.Confidence, m.Importance,
		m.RecordedAt, m.ValidFrom, m.ValidUntil, m.Archived, m.ArchiveReason,
		m.SupersededBy, m.Supersedes, nonNullRefs(m.ExternalRefs),
	).Scan(&m.TxTime)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Memory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM memory_versions WHERE id = $1
		 ORDER BY version ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// ListByExternalRef returns the latest version of every non-archived memory
// referencing the given key.
func (s *MemoryStore) ListByExternalRef(ctx context.Context, ref domain.ExternalRef, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (id) `+memoryColumns+`
		 FROM memory_versions
		 WHERE external_refs @> $1
		 ORDER BY id, version DESC
		 LIMIT $2`,
		[]domain.ExternalRef{ref}, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, m := range all {
		if !m.Archived {
			live = append(live, m)
		}
	}
	return live, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (id) `+memoryColumns+`
		 FROM memory_versions
		 WHERE recorded_at >= $1
		 ORDER BY id, version DESC
		 LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemory(row pgx.Row) (*domain.Memory, error) {
	m := &domain.Memory{}
	err := row.Scan(&m.ID, &m.Version, &m.Kind, &m.Summary, &m.Confidence, &m.Importance,
		&m.RecordedAt, &m.ValidFrom, &m.ValidUntil, &m.Archived, &m.ArchiveReason,
		&m.SupersededBy, &m.Supersedes, &m.ExternalRefs, &m.TxTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func scanMemories(rows pgx.Rows) ([]domain.Memory, error) {
	var results []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := rows.Scan(&m.ID, &m.Version, &m.Kind, &m.Summary, &m.Confidence, &m.Importance,
			&m.RecordedAt, &m.ValidFrom, &m.ValidUntil, &m.Archived, &m.ArchiveReason,
			&m.SupersededBy, &m.Supersedes, &m.ExternalRefs, &m.TxTime); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
