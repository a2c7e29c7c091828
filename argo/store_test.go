package argo_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/argo/migrations"
	"github.com/floatchat/floatchat/providers/sql/sqltest"
)

var lastContact = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func testStore(t *testing.T, store argo.Store) {
	ctx := t.Context()

	t.Run("Floats", func(t *testing.T) {
		floats, err := store.Floats(ctx, argo.Filter{})
		assert.NoError(t, err)
		ids := []string{}
		for _, float := range floats {
			ids = append(ids, float.ID)
		}
		assert.Equal(t, []string{"1902672", "1902677", "2900464", "2900533", "2902201"}, ids)
		first := floats[0]
		assert.Equal(t, 15.5, first.Lat)
		assert.Equal(t, 68.2, first.Lon)
		assert.True(t, lastContact.Equal(first.LastContact), "%s", first.LastContact)
		assert.Equal(t, argo.Bound(28.5), first.Temperature)
		assert.Equal(t, []argo.Position{{15.1, 67.9}, {15.3, 68.0}, {15.5, 68.2}}, first.Trajectory)
	})

	t.Run("FilteredFloats", func(t *testing.T) {
		floats, err := store.Floats(ctx, argo.Filter{LatMin: argo.Bound(10), LatMax: argo.Bound(25)})
		assert.NoError(t, err)
		assert.Equal(t, 2, len(floats))
		assert.Equal(t, "1902672", floats[0].ID)
		assert.Equal(t, "2900533", floats[1].ID)

		floats, err = store.Floats(ctx, argo.Filter{Status: argo.StatusDelayed})
		assert.NoError(t, err)
		assert.Equal(t, 1, len(floats))
		assert.Equal(t, "2902201", floats[0].ID)

		floats, err = store.Floats(ctx, argo.Filter{Start: time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)})
		assert.NoError(t, err)
		assert.Equal(t, 2, len(floats))
	})

	t.Run("Float", func(t *testing.T) {
		float, err := store.Float(ctx, "2900464")
		assert.NoError(t, err)
		assert.Equal(t, -2.1, float.Lat)
		assert.Equal(t, argo.StatusActive, float.Status)

		_, err = store.Float(ctx, "0000000")
		assert.IsError(t, err, argo.ErrNotFound)
	})

	t.Run("Profile", func(t *testing.T) {
		profile, err := store.Profile(ctx, "1902672", argo.Salinity)
		assert.NoError(t, err)
		assert.Equal(t, argo.Salinity, profile.Variable)
		assert.Equal(t, []float64{0, 10, 20, 50, 100, 200, 500, 1000, 1500, 2000}, profile.Depth)
		assert.Equal(t, 35.1, profile.Values[0])
		assert.Equal(t, 10, len(profile.Timestamps))
		assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, profile.QualityFlags)

		_, err = store.Profile(ctx, "1902672", argo.Variable("chlorophyll"))
		assert.IsError(t, err, argo.ErrInvalidVariable)

		_, err = store.Profile(ctx, "0000000", argo.Temperature)
		assert.IsError(t, err, argo.ErrNotFound)
	})

	t.Run("TimeSeriesRange", func(t *testing.T) {
		_, err := store.TimeSeries(ctx, "1902672", argo.Temperature, 0)
		assert.IsError(t, err, argo.ErrInvalidRange)
		_, err = store.TimeSeries(ctx, "1902672", argo.Temperature, argo.MaxTimeSeriesDays+1)
		assert.IsError(t, err, argo.ErrInvalidRange)
		_, err = store.TimeSeries(ctx, "0000000", argo.Temperature, 30)
		assert.IsError(t, err, argo.ErrNotFound)
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 5, stats.TotalFloats)
		assert.Equal(t, 4, stats.ActiveFloats)
		assert.Equal(t, 15, stats.TotalProfiles)
		assert.True(t, lastContact.Equal(stats.LastUpdate), "%s", stats.LastUpdate)
	})

	t.Run("Quality", func(t *testing.T) {
		quality, err := store.Quality(ctx, "")
		assert.NoError(t, err)
		assert.Equal(t, argo.Quality{
			Overall:     1,
			Temperature: 1,
			Salinity:    1,
			Details:     "Quality assessment for all floats completed",
		}, quality)

		_, err = store.Quality(ctx, "0000000")
		assert.IsError(t, err, argo.ErrNotFound)
	})

	t.Run("PutProfile", func(t *testing.T) {
		at := lastContact.Add(time.Hour)
		err := store.PutProfile(ctx, argo.Profile{
			FloatID:      "2902201",
			Variable:     argo.Temperature,
			Depth:        []float64{0, 10, 20, 50},
			Values:       []float64{28.9, 28.7, 0, 26.1},
			Timestamps:   []time.Time{at, at, at, at},
			QualityFlags: []int{argo.QCGood, argo.QCGood, argo.QCMissing, 4},
		})
		assert.NoError(t, err)

		profile, err := store.Profile(ctx, "2902201", argo.Temperature)
		assert.NoError(t, err)
		assert.Equal(t, []float64{0, 10, 20, 50}, profile.Depth)

		quality, err := store.Quality(ctx, "2902201")
		assert.NoError(t, err)
		assert.Equal(t, "2902201", quality.FloatID)
		assert.Equal(t, 0.5, quality.Temperature)
		assert.Equal(t, 1.0, quality.Salinity)
		assert.Equal(t, "Quality assessment for float 2902201 completed", quality.Details)
		assert.True(t, quality.MissingFraction > 0)

		err = store.PutProfile(ctx, argo.Profile{FloatID: "0000000", Variable: argo.Oxygen})
		assert.IsError(t, err, argo.ErrNotFound)

		err = store.PutProfile(ctx, argo.Profile{FloatID: "2902201", Variable: argo.Oxygen, Depth: []float64{1}})
		assert.Error(t, err)
	})

	t.Run("PutFloat", func(t *testing.T) {
		float, err := store.Float(ctx, "2900533")
		assert.NoError(t, err)
		float.Status = argo.StatusInactive
		float.Salinity = nil
		float.Trajectory = append(float.Trajectory, argo.Position{22.6, 60.0})
		assert.NoError(t, store.PutFloat(ctx, float))

		updated, err := store.Float(ctx, "2900533")
		assert.NoError(t, err)
		assert.Equal(t, argo.StatusInactive, updated.Status)
		assert.Zero(t, updated.Salinity)
		assert.Equal(t, 4, len(updated.Trajectory))

		stats, err := store.Stats(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 3, stats.ActiveFloats)
		assert.Equal(t, 16, stats.TotalProfiles)

		assert.Error(t, store.PutFloat(ctx, argo.Float{ID: "bad", Lat: 91}))
		assert.Error(t, store.PutFloat(ctx, argo.Float{}))
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, argo.NewSeededMemoryStore())
}

func TestMemoryStoreTimeSeries(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	store := argo.NewSeededMemoryStore().WithClock(func() time.Time { return now })
	series, err := store.TimeSeries(t.Context(), "1902672", "", 30)
	assert.NoError(t, err)
	assert.Equal(t, argo.Temperature, series.Variable)
	assert.Equal(t, 30, len(series.Points))
	assert.Equal(t, argo.Point{Timestamp: now, Value: 28.0, Depth: 10}, series.Points[0])
	i := 4
	assert.Equal(t, argo.Point{
		Timestamp: now.AddDate(0, 0, -i),
		Value:     28.0 + float64(i)*0.1 + float64(i%3)*0.5,
		Depth:     30,
	}, series.Points[i])
}

func newSQLStore(t *testing.T, dsn string) *argo.SQLStore {
	t.Helper()
	db, driver := sqltest.NewForTesting(t, dsn, migrations.Migrations())
	for _, table := range []string{"argo_profiles", "float_positions", "floats"} {
		_, err := db.ExecContext(t.Context(), "DELETE FROM "+table)
		assert.NoError(t, err)
	}
	store := argo.NewSQLStore(db, driver)
	assert.NoError(t, argo.SeedDataset().Load(t.Context(), store))
	return store
}

func testSQLStore(t *testing.T, dsn string) {
	store := newSQLStore(t, dsn)
	testStore(t, store)

	t.Run("TimeSeries", func(t *testing.T) {
		store.WithClock(func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) })
		series, err := store.TimeSeries(t.Context(), "1902672", argo.Oxygen, 7)
		assert.NoError(t, err)
		assert.Equal(t, 10, len(series.Points))
		assert.Equal(t, 245.0, series.Points[0].Value)
		assert.Equal(t, 0.0, series.Points[0].Depth)
		assert.True(t, lastContact.Equal(series.Points[0].Timestamp))

		series, err = store.TimeSeries(t.Context(), "1902672", argo.Oxygen, 1)
		assert.NoError(t, err)
		assert.Equal(t, 0, len(series.Points))
	})
}

func TestSQLiteStore(t *testing.T) {
	testSQLStore(t, sqltest.MemoryDSN(t))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("FLOATCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLOATCHAT_TEST_POSTGRES_DSN not set")
	}
	testSQLStore(t, dsn)
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("FLOATCHAT_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FLOATCHAT_TEST_MYSQL_DSN not set")
	}
	testSQLStore(t, dsn)
}

type countingStore struct {
	argo.Store
	calls int
}

func (c *countingStore) Stats(ctx context.Context) (argo.Stats, error) {
	c.calls++
	return c.Store.Stats(ctx)
}
