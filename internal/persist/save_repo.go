package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/heavy-go/hv/internal/serialize"
)

// SaveInfo describes a stored save without its streams.
type SaveInfo struct {
	ID          uuid.UUID
	Name        string
	Fingerprint uint64
	ObjectCount int
	Size        int
}

type SaveRepo struct {
	db *DB
}

func NewSaveRepo(db *DB) *SaveRepo {
	return &SaveRepo{db: db}
}

// Insert stores a save.
func (r *SaveRepo) Insert(ctx context.Context, s *Save) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO saves (id, name, codec_fingerprint, object_count, objects, lua_values, digest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, int64(s.Fingerprint), s.ObjectCount,
		s.Snapshot.Objects, s.Snapshot.Values, s.Digest, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert save %s: %w", s.ID, err)
	}
	r.db.log.Debug("stored save",
		zap.String("id", s.ID.String()),
		zap.String("name", s.Name),
		zap.Int("objects", s.ObjectCount))
	return nil
}

const selectSave = `SELECT id, name, codec_fingerprint, object_count, objects, lua_values, digest, created_at FROM saves`

func scanSave(row pgx.Row) (*Save, error) {
	s := &Save{Snapshot: &serialize.Snapshot{}}
	var fp int64
	err := row.Scan(&s.ID, &s.Name, &fp, &s.ObjectCount,
		&s.Snapshot.Objects, &s.Snapshot.Values, &s.Digest, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Fingerprint = uint64(fp)
	return s, nil
}

// Load returns the save with the given id, or nil if none.
func (r *SaveRepo) Load(ctx context.Context, id uuid.UUID) (*Save, error) {
	s, err := scanSave(r.db.Pool.QueryRow(ctx, selectSave+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load save %s: %w", id, err)
	}
	return s, nil
}

// Latest returns the newest save with the given name, or nil if none.
func (r *SaveRepo) Latest(ctx context.Context, name string) (*Save, error) {
	s, err := scanSave(r.db.Pool.QueryRow(ctx,
		selectSave+` WHERE name = $1 ORDER BY created_at DESC LIMIT 1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest save %q: %w", name, err)
	}
	return s, nil
}

// List returns every save with the given name, newest first.
func (r *SaveRepo) List(ctx context.Context, name string) ([]SaveInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, codec_fingerprint, object_count, octet_length(objects) + octet_length(lua_values)
		 FROM saves WHERE name = $1 ORDER BY created_at DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("list saves %q: %w", name, err)
	}
	defer rows.Close()

	var out []SaveInfo
	for rows.Next() {
		var info SaveInfo
		var fp int64
		if err := rows.Scan(&info.ID, &info.Name, &fp, &info.ObjectCount, &info.Size); err != nil {
			return nil, err
		}
		info.Fingerprint = uint64(fp)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a save.
func (r *SaveRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM saves WHERE id = $1`, id)
	return err
}

// Prune keeps the newest keep saves of name and deletes the rest. It returns
// the number of deleted saves.
func (r *SaveRepo) Prune(ctx context.Context, name string, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM saves WHERE name = $1 AND id NOT IN (
		     SELECT id FROM saves WHERE name = $1 ORDER BY created_at DESC LIMIT $2)`,
		name, keep)
	if err != nil {
		return 0, fmt.Errorf("prune saves %q: %w", name, err)
	}
	return tag.RowsAffected(), nil
}
