package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/shotdetection"
)

var _ events.Sink = (*DB)(nil)

// Emit records e. Shot events also get a row in shots.
func (db *DB) Emit(e events.Event) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var targetName, targetAction sql.NullString
	if e.Target != nil {
		targetName = sql.NullString{String: e.Target.Name, Valid: true}
		targetAction = sql.NullString{String: string(e.Target.Action), Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO shot_events (event_id, seq, kind, ts_ms, camera, from_state, to_state, message, target_name, target_action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Seq, string(e.Kind), e.Timestamp, e.Camera,
		nullString(e.FromState), nullString(e.ToState), nullString(e.Message),
		targetName, targetAction,
	)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", e.Seq, err)
	}

	if s := e.Shot; s != nil {
		var row, col sql.NullInt64
		if s.Sector.Valid {
			row = sql.NullInt64{Int64: int64(s.Sector.Row), Valid: true}
			col = sql.NullInt64{Int64: int64(s.Sector.Col), Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO shots (event_id, x, y, color, intensity, frame_seq, sector_row, sector_col, pixels)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, s.X, s.Y, s.Color.String(), s.Intensity, s.FrameSeq, row, col, s.Pixels,
		)
		if err != nil {
			return fmt.Errorf("insert shot %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const eventColumns = `
	e.event_id, e.seq, e.kind, e.ts_ms, e.camera, e.from_state, e.to_state, e.message,
	e.target_name, e.target_action,
	s.x, s.y, s.color, s.intensity, s.frame_seq, s.sector_row, s.sector_col, s.pixels`

// RecentEvents returns up to limit events, oldest first, ending with the most
// recent one. A kind of "" matches every kind.
func (db *DB) RecentEvents(kind events.Kind, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT * FROM (
			SELECT `+eventColumns+`
			FROM shot_events e LEFT JOIN shots s ON s.event_id = e.event_id
			WHERE ? = '' OR e.kind = ?
			ORDER BY e.seq DESC
			LIMIT ?
		) ORDER BY seq ASC`, string(kind), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Shots returns the most recent shots, oldest first.
func (db *DB) Shots(limit int) ([]shotdetection.Shot, error) {
	evs, err := db.RecentEvents(events.KindShot, limit)
	if err != nil {
		return nil, err
	}
	shots := make([]shotdetection.Shot, 0, len(evs))
	for _, e := range evs {
		if e.Shot != nil {
			shots = append(shots, *e.Shot)
		}
	}
	return shots, nil
}

// CountByKind returns the number of stored events per kind.
func (db *DB) CountByKind() (map[events.Kind]int, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM shot_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[events.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[events.Kind(kind)] = n
	}
	return counts, rows.Err()
}

func scanEvent(rows *sql.Rows) (events.Event, error) {
	var (
		e                        events.Event
		kind                     string
		from, to, msg            sql.NullString
		targetName, targetAction sql.NullString
		x, y, intensity          sql.NullFloat64
		color                    sql.NullString
		frameSeq, pixels         sql.NullInt64
		row, col                 sql.NullInt64
	)
	err := rows.Scan(
		&e.ID, &e.Seq, &kind, &e.Timestamp, &e.Camera, &from, &to, &msg,
		&targetName, &targetAction,
		&x, &y, &color, &intensity, &frameSeq, &row, &col, &pixels,
	)
	if err != nil {
		return e, err
	}
	e.Kind = events.Kind(kind)
	e.FromState, e.ToState, e.Message = from.String, to.String, msg.String
	if targetName.Valid {
		e.Target = &events.TargetChange{Name: targetName.String, Action: events.TargetAction(targetAction.String)}
	}
	if x.Valid {
		s := &shotdetection.Shot{
			X:         x.Float64,
			Y:         y.Float64,
			Intensity: intensity.Float64,
			Timestamp: e.Timestamp,
			FrameSeq:  uint64(frameSeq.Int64),
			Pixels:    int(pixels.Int64),
		}
		if err := s.Color.UnmarshalText([]byte(color.String)); err != nil {
			return e, err
		}
		if row.Valid {
			s.Sector = arenamask.Sector{Row: int(row.Int64), Col: int(col.Int64), Valid: true}
		}
		e.Shot = s
	}
	return e, nil
}
