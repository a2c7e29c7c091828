package argo

import (
	"context"
	"database/sql"
	"time"

	"github.com/alecthomas/errors"

	fcsql "github.com/floatchat/floatchat/providers/sql"
)

// SQLStore is a [Store] backed by a SQL database migrated with the argo migrations.
type SQLStore struct {
	db     *sql.DB
	driver fcsql.Driver
	now    func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, driver fcsql.Driver) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// WithClock overrides the clock used to anchor time series windows.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

func (s *SQLStore) Floats(ctx context.Context, filter Filter) ([]Float, error) {
	where, args := filter.where()
	rows, err := s.db.QueryContext(ctx, s.driver.Denormalise(
		`SELECT id, lat, lon, last_contact, temperature, salinity, status FROM floats`+where+` ORDER BY id`), args...)
	if err != nil {
		return nil, errors.Errorf("failed to query floats: %w", err)
	}
	defer rows.Close()
	out := []Float{}
	for rows.Next() {
		float, err := scanFloat(rows)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, float)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("failed to query floats: %w", err)
	}
	for i := range out {
		out[i].Trajectory, err = s.trajectory(ctx, out[i].ID)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return out, nil
}

func (s *SQLStore) Float(ctx context.Context, id string) (Float, error) {
	row := s.db.QueryRowContext(ctx, s.driver.Denormalise(
		`SELECT id, lat, lon, last_contact, temperature, salinity, status FROM floats WHERE id = ?`), id)
	float, err := scanFloat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Float{}, errors.Errorf("float %s: %w", id, ErrNotFound)
	} else if err != nil {
		return Float{}, errors.WithStack(err)
	}
	float.Trajectory, err = s.trajectory(ctx, id)
	return float, errors.WithStack(err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFloat(row scanner) (Float, error) {
	var (
		float       Float
		status      string
		temperature sql.NullFloat64
		salinity    sql.NullFloat64
	)
	err := row.Scan(&float.ID, &float.Lat, &float.Lon, &float.LastContact, &temperature, &salinity, &status)
	if err != nil {
		return Float{}, errors.Wrap(err, "failed to scan float")
	}
	float.LastContact = float.LastContact.UTC()
	float.Status = Status(status)
	if temperature.Valid {
		float.Temperature = &temperature.Float64
	}
	if salinity.Valid {
		float.Salinity = &salinity.Float64
	}
	return float, nil
}

func (s *SQLStore) trajectory(ctx context.Context, id string) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, s.driver.Denormalise(
		`SELECT lat, lon FROM float_positions WHERE float_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, errors.Errorf("%s: failed to query trajectory: %w", id, err)
	}
	defer rows.Close()
	out := []Position{}
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, errors.Errorf("%s: failed to scan position: %w", id, err)
		}
		out = append(out, p)
	}
	return out, errors.WithStack(rows.Err())
}

func (s *SQLStore) Profile(ctx context.Context, id string, variable Variable) (Profile, error) {
	variable, err := ParseVariable(string(variable))
	if err != nil {
		return Profile{}, errors.WithStack(err)
	}
	rows, err := s.db.QueryContext(ctx, s.driver.Denormalise(
		`SELECT depth, value, measured_at, qc FROM argo_profiles WHERE float_id = ? AND variable = ? ORDER BY seq`),
		id, string(variable))
	if err != nil {
		return Profile{}, errors.Errorf("%s: failed to query profile: %w", id, err)
	}
	defer rows.Close()
	profile := Profile{FloatID: id, Variable: variable}
	for rows.Next() {
		var (
			depth, value float64
			measuredAt   time.Time
			qc           int
		)
		if err := rows.Scan(&depth, &value, &measuredAt, &qc); err != nil {
			return Profile{}, errors.Errorf("%s: failed to scan profile: %w", id, err)
		}
		profile.Depth = append(profile.Depth, depth)
		profile.Values = append(profile.Values, value)
		profile.Timestamps = append(profile.Timestamps, measuredAt.UTC())
		profile.QualityFlags = append(profile.QualityFlags, qc)
	}
	if err := rows.Err(); err != nil {
		return Profile{}, errors.WithStack(err)
	}
	if len(profile.Depth) == 0 {
		return Profile{}, errors.Errorf("%s profile for float %s: %w", variable, id, ErrNotFound)
	}
	return profile, nil
}

// TimeSeries returns the stored samples of the variable measured within the last days, most recent first.
func (s *SQLStore) TimeSeries(ctx context.Context, id string, variable Variable, days int) (TimeSeries, error) {
	variable, err := ParseVariable(string(variable))
	if err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	if err := checkDays(days); err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	if _, err := s.Float(ctx, id); err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, s.driver.Denormalise(
		`SELECT measured_at, value, depth FROM argo_profiles
		 WHERE float_id = ? AND variable = ? AND measured_at >= ?
		 ORDER BY measured_at DESC, seq`), id, string(variable), since)
	if err != nil {
		return TimeSeries{}, errors.Errorf("%s: failed to query time series: %w", id, err)
	}
	defer rows.Close()
	series := TimeSeries{FloatID: id, Variable: variable, Points: []Point{}}
	for rows.Next() {
		var point Point
		if err := rows.Scan(&point.Timestamp, &point.Value, &point.Depth); err != nil {
			return TimeSeries{}, errors.Errorf("%s: failed to scan time series: %w", id, err)
		}
		point.Timestamp = point.Timestamp.UTC()
		series.Points = append(series.Points, point)
	}
	return series, errors.WithStack(rows.Err())
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM floats`).Scan(&stats.TotalFloats)
	if err != nil {
		return Stats{}, errors.Errorf("failed to count floats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, s.driver.Denormalise(`SELECT COUNT(*) FROM floats WHERE status = ?`), string(StatusActive)).Scan(&stats.ActiveFloats)
	if err != nil {
		return Stats{}, errors.Errorf("failed to count active floats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM float_positions`).Scan(&stats.TotalProfiles)
	if err != nil {
		return Stats{}, errors.Errorf("failed to count profiles: %w", err)
	}
	if stats.TotalFloats == 0 {
		return stats, nil
	}
	err = s.db.QueryRowContext(ctx, `SELECT last_contact FROM floats ORDER BY last_contact DESC LIMIT 1`).Scan(&stats.LastUpdate)
	if err != nil {
		return Stats{}, errors.Errorf("failed to query last update: %w", err)
	}
	stats.LastUpdate = stats.LastUpdate.UTC()
	return stats, nil
}

func (s *SQLStore) Quality(ctx context.Context, id string) (Quality, error) {
	query := `SELECT variable, qc FROM argo_profiles`
	args := []any{}
	if id != "" {
		if _, err := s.Float(ctx, id); err != nil {
			return Quality{}, errors.WithStack(err)
		}
		query += ` WHERE float_id = ?`
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, s.driver.Denormalise(query), args...)
	if err != nil {
		return Quality{}, errors.Errorf("failed to query quality flags: %w", err)
	}
	defer rows.Close()
	samples := []qcSample{}
	for rows.Next() {
		var (
			variable string
			qc       int
		)
		if err := rows.Scan(&variable, &qc); err != nil {
			return Quality{}, errors.Errorf("failed to scan quality flag: %w", err)
		}
		samples = append(samples, qcSample{variable: Variable(variable), qc: qc})
	}
	if err := rows.Err(); err != nil {
		return Quality{}, errors.WithStack(err)
	}
	return computeQuality(id, samples), nil
}

// PutFloat inserts or replaces a float and its trajectory.
func (s *SQLStore) PutFloat(ctx context.Context, float Float) error {
	if err := validateFloat(float); err != nil {
		return errors.WithStack(err)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx, s.driver.Denormalise(`SELECT COUNT(*) FROM floats WHERE id = ?`), float.ID).Scan(&count)
		if err != nil {
			return errors.WithStack(err)
		}
		args := []any{float.Lat, float.Lon, float.LastContact.UTC(), nullable(float.Temperature), nullable(float.Salinity), string(float.Status), float.ID}
		if count == 0 {
			_, err = tx.ExecContext(ctx, s.driver.Denormalise(
				`INSERT INTO floats (lat, lon, last_contact, temperature, salinity, status, id) VALUES (?, ?, ?, ?, ?, ?, ?)`), args...)
		} else {
			_, err = tx.ExecContext(ctx, s.driver.Denormalise(
				`UPDATE floats SET lat = ?, lon = ?, last_contact = ?, temperature = ?, salinity = ?, status = ? WHERE id = ?`), args...)
		}
		if err != nil {
			return errors.Errorf("%s: failed to store float: %w", float.ID, s.driver.TranslateError(err))
		}
		if _, err := tx.ExecContext(ctx, s.driver.Denormalise(`DELETE FROM float_positions WHERE float_id = ?`), float.ID); err != nil {
			return errors.WithStack(err)
		}
		for seq, p := range float.Trajectory {
			_, err := tx.ExecContext(ctx, s.driver.Denormalise(
				`INSERT INTO float_positions (float_id, seq, lat, lon) VALUES (?, ?, ?, ?)`), float.ID, seq, p.Lat(), p.Lon())
			if err != nil {
				return errors.Errorf("%s: failed to store position: %w", float.ID, s.driver.TranslateError(err))
			}
		}
		return nil
	})
}

// PutProfile replaces the stored profile of the variable for a float.
func (s *SQLStore) PutProfile(ctx context.Context, profile Profile) error {
	if err := validateProfile(profile); err != nil {
		return errors.WithStack(err)
	}
	if _, err := s.Float(ctx, profile.FloatID); err != nil {
		return errors.WithStack(err)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.driver.Denormalise(`DELETE FROM argo_profiles WHERE float_id = ? AND variable = ?`),
			profile.FloatID, string(profile.Variable))
		if err != nil {
			return errors.WithStack(err)
		}
		for i := range profile.Depth {
			_, err := tx.ExecContext(ctx, s.driver.Denormalise(
				`INSERT INTO argo_profiles (float_id, variable, seq, depth, value, measured_at, qc) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				profile.FloatID, string(profile.Variable), i, profile.Depth[i], profile.Values[i], profile.Timestamps[i].UTC(), profile.QualityFlags[i])
			if err != nil {
				return errors.Errorf("%s/%s: failed to store sample: %w", profile.FloatID, profile.Variable, s.driver.TranslateError(err))
			}
		}
		return nil
	})
}

func (s *SQLStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint
	if err := fn(tx); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(tx.Commit())
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
