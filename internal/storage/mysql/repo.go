package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"repscore/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
func nullF64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- hotels ----

func sourceNamesJSON(m map[domain.Source]string) any {
	if len(m) == 0 {
		return nil
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func hotelArgs(h domain.Hotel) []any {
	return []any{
		h.Name,
		domain.NameKey(h.Name),
		valStr(h.City),
		valStr(h.State),
		valInt(h.Keys),
		valStr(h.Kind),
		valStr(h.Brand),
		valStr(h.Parent),
		sourceNamesJSON(h.SourceNames),
	}
}

func (r *Repo) CreateHotel(ctx context.Context, h domain.Hotel) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertHotelSQL, hotelArgs(h)...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) UpdateHotel(ctx context.Context, h domain.Hotel) error {
	args := append(hotelArgs(h), h.ID)
	_, err := r.db.ExecContext(ctx, updateHotelSQL, args...)
	return err
}

func (r *Repo) SoftDeleteHotel(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, softDeleteHotelSQL, id); err != nil {
		return err
	}
	// a deleted hotel drops out of every group it belonged to
	if _, err := tx.ExecContext(ctx, deleteHotelMembershipsSQL, id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanHotel(row rowScanner) (domain.Hotel, error) {
	var h domain.Hotel
	var city, state, kind, brand, parent sql.NullString
	var keys sql.NullInt64
	var names sql.NullString
	if err := row.Scan(&h.ID, &h.Name, &city, &state, &keys, &kind, &brand, &parent, &names, &h.Deleted); err != nil {
		return domain.Hotel{}, err
	}
	h.City = nullStr(city)
	h.State = nullStr(state)
	h.Keys = nullInt(keys)
	h.Kind = nullStr(kind)
	h.Brand = nullStr(brand)
	h.Parent = nullStr(parent)
	if names.Valid && names.String != "" {
		_ = json.Unmarshal([]byte(names.String), &h.SourceNames)
	}
	return h, nil
}

func (r *Repo) GetHotel(ctx context.Context, id int64) (domain.Hotel, error) {
	h, err := scanHotel(r.db.QueryRowContext(ctx, getHotelSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Hotel{}, domain.ErrNotFound
		}
		return domain.Hotel{}, err
	}
	return h, nil
}

func (r *Repo) listHotelRows(ctx context.Context, query string, args ...any) ([]domain.Hotel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hotel
	for rows.Next() {
		h, err := scanHotel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) ListHotels(ctx context.Context) ([]domain.Hotel, error) {
	return r.listHotelRows(ctx, listHotelsSQL)
}

func (r *Repo) FindHotelsByName(ctx context.Context, nameKey string) ([]domain.Hotel, error) {
	return r.listHotelRows(ctx, findHotelsByNameSQL, nameKey)
}

// ---- snapshots ----

func snapshotArgs(s domain.Snapshot) []any {
	args := []any{s.HotelID, s.CollectedAt.UTC(), string(s.Method)}
	for _, src := range domain.KnownSources() {
		rd := s.Readings[src]
		args = append(args, valF64(rd.Score), valInt(rd.Count), valF64(rd.Normalized))
	}
	return append(args, valF64(s.Composite))
}

func scanSnapshot(row rowScanner) (domain.Snapshot, error) {
	var s domain.Snapshot
	var method string
	var vals [12]any
	var scores, normals [4]sql.NullFloat64
	var counts [4]sql.NullInt64
	for i := 0; i < 4; i++ {
		vals[i*3] = &scores[i]
		vals[i*3+1] = &counts[i]
		vals[i*3+2] = &normals[i]
	}
	var composite sql.NullFloat64
	dest := []any{&s.ID, &s.HotelID, &s.CollectedAt, &method}
	dest = append(dest, vals[:]...)
	dest = append(dest, &composite)
	if err := row.Scan(dest...); err != nil {
		return domain.Snapshot{}, err
	}
	s.Method = domain.Method(method)
	s.CollectedAt = s.CollectedAt.UTC()
	s.Readings = make(map[domain.Source]domain.Reading, 4)
	for i, src := range domain.KnownSources() {
		s.Readings[src] = domain.Reading{
			Score:      nullF64(scores[i]),
			Count:      nullInt(counts[i]),
			Normalized: nullF64(normals[i]),
		}
	}
	s.Composite = nullF64(composite)
	return s, nil
}

// InsertSnapshot appends within a transaction that locks the hotel row:
// the lock serializes same-hotel appends, and the latest pointer is
// refreshed with a single timestamp comparison instead of a history scan.
// Ties go to the new snapshot (higher id).
func (r *Repo) InsertSnapshot(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()

	var hotelID int64
	var latestAt sql.NullTime
	if err := tx.QueryRowContext(ctx, lockHotelLatestSQL, s.HotelID).Scan(&hotelID, &latestAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, err
	}

	res, err := tx.ExecContext(ctx, insertSnapshotSQL, snapshotArgs(s)...)
	if err != nil {
		return domain.Snapshot{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Snapshot{}, err
	}

	if !latestAt.Valid || !s.CollectedAt.UTC().Before(latestAt.Time.UTC()) {
		if _, err := tx.ExecContext(ctx, setLatestSnapshotSQL, id, s.HotelID); err != nil {
			return domain.Snapshot{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	s.ID = id
	return s, nil
}

func (r *Repo) LatestSnapshot(ctx context.Context, hotelID int64) (*domain.Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx, latestSnapshotSQL, hotelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) listSnapshotRows(ctx context.Context, query string, args ...any) ([]domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) ListSnapshots(ctx context.Context, hotelID int64) ([]domain.Snapshot, error) {
	return r.listSnapshotRows(ctx, listSnapshotsSQL, hotelID)
}

func (r *Repo) ListSnapshotsBetween(ctx context.Context, hotelID int64, from, to time.Time) ([]domain.Snapshot, error) {
	return r.listSnapshotRows(ctx, listSnapshotsBetweenSQL, hotelID, from.UTC(), to.UTC())
}

// ---- groups ----

func (r *Repo) CreateGroup(ctx context.Context, g domain.Group) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertGroupSQL, g.Name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := insertMembers(ctx, tx, id, g.HotelIDs); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (r *Repo) UpdateGroup(ctx context.Context, g domain.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, updateGroupSQL, g.Name, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// name unchanged is fine; verify the group exists at all
		var id int64
		if err := tx.QueryRowContext(ctx, getGroupSQL, g.ID).Scan(&id, new(string)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, deleteMembersSQL, g.ID); err != nil {
		return err
	}
	if err := insertMembers(ctx, tx, g.ID, g.HotelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMembers(ctx context.Context, tx *sql.Tx, groupID int64, hotelIDs []int64) error {
	for _, hid := range hotelIDs {
		if _, err := tx.ExecContext(ctx, insertMemberSQL, groupID, hid); err != nil {
			return fmt.Errorf("add hotel %d to group %d: %w", hid, groupID, err)
		}
	}
	return nil
}

func (r *Repo) GetGroup(ctx context.Context, id int64) (domain.Group, error) {
	var g domain.Group
	if err := r.db.QueryRowContext(ctx, getGroupSQL, id).Scan(&g.ID, &g.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Group{}, domain.ErrNotFound
		}
		return domain.Group{}, err
	}
	members, err := r.groupMembers(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	g.HotelIDs = members
	return g, nil
}

func (r *Repo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, listGroupsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		members, err := r.groupMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].HotelIDs = members
	}
	return out, nil
}

func (r *Repo) groupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listMembersSQL, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var hid int64
		if err := rows.Scan(&hid); err != nil {
			return nil, err
		}
		out = append(out, hid)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, deleteMembersSQL, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, deleteGroupSQL, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}
