package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	// ErrNotFound is returned for unknown documents.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when saved version is not the latest.
	ErrVersionConflict = errors.New("version conflict")
)

const schema = `
CREATE TABLE IF NOT EXISTS revisions (
	doc_id    TEXT    NOT NULL,
	version   INTEGER NOT NULL,
	content   TEXT    NOT NULL,
	title     TEXT    NOT NULL DEFAULT '',
	date      TEXT    NOT NULL DEFAULT '',
	timezone  TEXT    NOT NULL DEFAULT '',
	reference TEXT    NOT NULL DEFAULT '',
	modified  TEXT    NOT NULL,
	PRIMARY KEY (doc_id, version)
);
`

const selectLatest = `SELECT version, content, title, date, timezone, reference, modified
FROM revisions WHERE doc_id = ? ORDER BY version DESC LIMIT 1`

// Store keeps every acknowledged revision of every document.
type Store struct {
	pool *sqlitex.Pool
	log  *zap.Logger
	now  func() time.Time
}

// OpenStore opens (creating if necessary) revision database at path.
func OpenStore(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open revision store %q: %w", path, err)
	}

	s := &Store{pool: pool, log: log.Named("store"), now: time.Now}
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to open revision store %q: %w", path, err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to initialize revision store: %w", err)
	}
	return s, nil
}

// Close releases database connections.
func (s *Store) Close() error {
	return s.pool.Close()
}

// NewID returns identity for a new document.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidateID checks that document identity is well formed.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}
	return nil
}

// Latest returns most recent revision of the document.
func (s *Store) Latest(ctx context.Context, id string) (*Revision, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	rev, err := latest(conn, id)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, ErrNotFound
	}
	return rev, nil
}

// Save stores new revision on top of base version. When base is not the
// latest version, latest revision is returned together with
// ErrVersionConflict. Saving version 0 of unknown document creates it.
func (s *Store) Save(ctx context.Context, id string, base int64, rev Revision) (_ *Revision, err error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, err
	}
	defer endFn(&err)

	current, err := latest(conn, id)
	if err != nil {
		return nil, err
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if version != base {
		s.log.Debug("Stale save rejected", zap.String("id", id), zap.Int64("base", base), zap.Int64("latest", version))
		if current == nil {
			return nil, ErrNotFound
		}
		return current, ErrVersionConflict
	}

	rev.ID = id
	rev.Version = version + 1
	rev.Modified = s.now().UTC().Truncate(time.Second)
	err = sqlitex.Execute(conn, `INSERT INTO revisions (doc_id, version, content, title, date, timezone, reference, modified)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{id, rev.Version, rev.Content, rev.Title, rev.Date, rev.Timezone, rev.Reference, rev.Modified.Format(time.RFC3339)},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to store revision %d of %s: %w", rev.Version, id, err)
	}
	s.log.Debug("Revision stored", zap.String("id", id), zap.Int64("version", rev.Version))
	return &rev, nil
}

// Versions lists stored version numbers of the document, oldest first.
func (s *Store) Versions(ctx context.Context, id string) ([]int64, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var versions []int64
	err = sqlitex.Execute(conn, `SELECT version FROM revisions WHERE doc_id = ? ORDER BY version`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				versions = append(versions, stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func latest(conn *sqlite.Conn, id string) (*Revision, error) {
	var rev *Revision
	err := sqlitex.Execute(conn, selectLatest, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			modified, err := time.Parse(time.RFC3339, stmt.ColumnText(6))
			if err != nil {
				return fmt.Errorf("bad modification time of %s: %w", id, err)
			}
			rev = &Revision{
				ID:        id,
				Version:   stmt.ColumnInt64(0),
				Content:   stmt.ColumnText(1),
				Title:     stmt.ColumnText(2),
				Date:      stmt.ColumnText(3),
				Timezone:  stmt.ColumnText(4),
				Reference: stmt.ColumnText(5),
				Modified:  modified,
			}
			return nil
		},
	})
	return rev, err
}
