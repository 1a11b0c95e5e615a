package resumes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/jackc/pgx/v5"
)

// PGStore implements Store on a Postgres table with a jsonb payload column.
type PGStore struct {
	DB    *sql.DB
	Table string
}

// NewPGStore constructs a PGStore. table may be schema qualified ("app.resumes").
func NewPGStore(db *sql.DB, table string) *PGStore {
	if strings.TrimSpace(table) == "" {
		table = "resumes"
	}
	return &PGStore{DB: db, Table: table}
}

const pgColumns = "resume_id, payload, version, created_at, updated_at"

func (s *PGStore) ident() string {
	return pgx.Identifier(strings.Split(s.Table, ".")).Sanitize()
}

// Get returns a resume by id.
func (s *PGStore) Get(ctx context.Context, id string) (Resume, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE resume_id = $1`, pgColumns, s.ident())
	resume, err := scanResume(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Resume{}, s.classify("select", id, err)
	}
	return resume, nil
}

// Put inserts a resume (ON CONFLICT DO NOTHING) or updates an existing row.
func (s *PGStore) Put(ctx context.Context, resume Resume, opts PutOptions) (Resume, error) {
	payload, err := json.Marshal(resume.Payload)
	if err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if opts.MustNotExist {
		return s.insert(ctx, resume, payload)
	}
	return s.update(ctx, resume, payload, opts.ExpectedVersion)
}

func (s *PGStore) insert(ctx context.Context, resume Resume, payload []byte) (Resume, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (resume_id) DO NOTHING`, s.ident(), pgColumns)
	res, err := s.DB.ExecContext(ctx, query,
		resume.ID,
		payload,
		resume.Version,
		resume.CreatedAt,
		resume.UpdatedAt,
	)
	if err != nil {
		return Resume{}, s.classify("insert", resume.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Resume{}, s.classify("insert", resume.ID, err)
	}
	if n == 0 {
		return Resume{}, fmt.Errorf("%w: resume %s already exists", ErrConflict, resume.ID)
	}
	return resume, nil
}

func (s *PGStore) update(ctx context.Context, resume Resume, payload []byte, expectedVersion int64) (Resume, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET payload = $2, updated_at = $3, version = version + 1
WHERE resume_id = $1 AND ($4::bigint = 0 OR version = $4)
RETURNING %s`, s.ident(), pgColumns)
	updated, err := scanResume(s.DB.QueryRowContext(ctx, query, resume.ID, payload, resume.UpdatedAt, expectedVersion))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Resume{}, s.classify("update", resume.ID, err)
	}
	if expectedVersion == 0 {
		return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, resume.ID)
	}

	// The row either vanished or moved past the expected version.
	current, err := s.Get(ctx, resume.ID)
	if err != nil {
		return Resume{}, err
	}
	return Resume{}, fmt.Errorf("%w: resume %s is at version %d", ErrConflict, resume.ID, current.Version)
}

// Delete removes a resume by id.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE resume_id = $1`, s.ident())
	res, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return s.classify("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.classify("delete", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Scan streams rows from a single SELECT; rows are decoded as they are read.
func (s *PGStore) Scan(ctx context.Context) iter.Seq2[Resume, error] {
	return func(yield func(Resume, error) bool) {
		query := fmt.Sprintf(`SELECT %s FROM %s`, pgColumns, s.ident())
		rows, err := s.DB.QueryContext(ctx, query)
		if err != nil {
			yield(Resume{}, s.classify("scan", "", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			resume, err := scanResume(rows)
			if err != nil {
				yield(Resume{}, err)
				return
			}
			if !yield(resume, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Resume{}, s.classify("scan", "", err))
		}
	}
}

// Ping verifies database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return s.classify("ping", "", err)
	}
	return nil
}

func (s *PGStore) classify(op, id string, err error) error {
	if errors.Is(err, errCorruptRecord) {
		return err
	}
	return fmt.Errorf("%w: postgres %s table=%s key=%s: %v", ErrStoreUnavailable, op, s.Table, id, err)
}

var errCorruptRecord = errors.New("corrupt resume record")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResume(row rowScanner) (Resume, error) {
	var (
		resume  Resume
		payload []byte
	)
	if err := row.Scan(&resume.ID, &payload, &resume.Version, &resume.CreatedAt, &resume.UpdatedAt); err != nil {
		return Resume{}, err
	}
	if err := json.Unmarshal(payload, &resume.Payload); err != nil {
		return Resume{}, fmt.Errorf("%w: payload of %s: %v", errCorruptRecord, resume.ID, err)
	}
	if resume.Payload == nil {
		resume.Payload = Document{}
	}
	resume.CreatedAt = resume.CreatedAt.UTC()
	resume.UpdatedAt = resume.UpdatedAt.UTC()
	return resume, nil
}

var (
	_ Store  = (*PGStore)(nil)
	_ Pinger = (*PGStore)(nil)
)
