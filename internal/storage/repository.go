package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"healthtrend/internal/feed"
	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertDailySampleSQL = `INSERT INTO daily_samples (
        kind,
        day,
        value,
        source
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (kind, day) DO UPDATE
    SET
        value      = EXCLUDED.value,
        source     = EXCLUDED.source,
        updated_at = now();`

	listSamplesBetweenSQL = `SELECT
        kind,
        day,
        value,
        source,
        updated_at
    FROM daily_samples
    WHERE kind = $1
      AND day >= $2
      AND day <= $3
    ORDER BY day;`

	countSamplesSQL = `SELECT COUNT(*) FROM daily_samples WHERE kind = $1;`

	insertAlertSQL = `INSERT INTO alerts (
        kind,
        day,
        current_value,
        target_value,
        unit,
        delta_text,
        snapshot_id,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (kind, day) DO UPDATE
    SET current_value = EXCLUDED.current_value,
        target_value  = EXCLUDED.target_value,
        unit          = EXCLUDED.unit,
        delta_text    = EXCLUDED.delta_text,
        snapshot_id   = EXCLUDED.snapshot_id,
        channels      = EXCLUDED.channels
    RETURNING id, created_at;`

	lastAlertSQL = `SELECT created_at
    FROM alerts
    WHERE kind = $1
    ORDER BY created_at DESC
    LIMIT 1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines operations for daily sample persistence.
type SampleStore interface {
	UpsertSamples(ctx context.Context, samples []DailySample) error
	ListSamplesBetween(ctx context.Context, kind metric.Kind, from, to series.Day) ([]DailySample, error)
	CountSamples(ctx context.Context, kind metric.Kind) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LastAlertAt(ctx context.Context, kind metric.Kind) (time.Time, bool, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to daily samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSamples writes samples in one transaction; an existing (kind, day) row is replaced.
func (s *Store) UpsertSamples(ctx context.Context, samples []DailySample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(upsertDailySampleSQL,
			string(sample.Kind),
			sample.Day.Midnight(time.UTC),
			sample.Value.String(),
			sample.Source,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for i := range samples {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return fmt.Errorf("upsert sample %s %s: %w", samples[i].Kind, samples[i].Day, execErr)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// ListSamplesBetween lists samples for kind within the inclusive day range.
func (s *Store) ListSamplesBetween(ctx context.Context, kind metric.Kind, from, to series.Day) ([]DailySample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, string(kind), from.Midnight(time.UTC), to.Midnight(time.UTC))
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]DailySample, 0)
	for rows.Next() {
		sample, scanErr := scanDailySample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples for kind.
func (s *Store) CountSamples(ctx context.Context, kind metric.Kind) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL, string(kind)).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// FetchSamples serves the table as a sample feed.
func (s *Store) FetchSamples(ctx context.Context, kind metric.Kind, from, to series.Day) ([]series.Sample, error) {
	rows, err := s.ListSamplesBetween(ctx, kind, from, to)
	if err != nil {
		return nil, err
	}
	return ToSeries(rows), nil
}

// InsertAlert persists an alert emission. One row per kind and day.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		string(alert.Kind),
		alert.Day.Midnight(time.UTC),
		alert.Current.String(),
		alert.Target.String(),
		string(alert.Unit),
		alert.DeltaText,
		alert.SnapshotID,
		alert.Channels,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// LastAlertAt returns when the most recent alert for kind was recorded.
func (s *Store) LastAlertAt(ctx context.Context, kind metric.Kind) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var at time.Time
	if scanErr := pool.QueryRow(ctx, lastAlertSQL, string(kind)).Scan(&at); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last alert: %w", scanErr)
	}
	return at, true, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanDailySample(rows pgx.Rows) (DailySample, error) {
	var (
		kind      string
		day       time.Time
		valueStr  string
		source    string
		updatedAt time.Time
	)

	if err := rows.Scan(&kind, &day, &valueStr, &source, &updatedAt); err != nil {
		return DailySample{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return DailySample{}, fmt.Errorf("parse sample value: %w", err)
	}

	return DailySample{
		Kind:      metric.Kind(kind),
		Day:       series.DayOf(day, time.UTC),
		Value:     value,
		Source:    source,
		UpdatedAt: updatedAt,
	}, nil
}

// FromSeries converts feed samples into rows tagged with source.
func FromSeries(kind metric.Kind, source string, samples []series.Sample) []DailySample {
	out := make([]DailySample, 0, len(samples))
	for _, sample := range samples {
		if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			continue
		}
		out = append(out, DailySample{
			Kind:   kind,
			Day:    sample.Day,
			Value:  decimal.NewFromFloat(sample.Value),
			Source: source,
		})
	}
	return out
}

// ToSeries converts rows into feed samples.
func ToSeries(rows []DailySample) []series.Sample {
	out := make([]series.Sample, 0, len(rows))
	for _, row := range rows {
		out = append(out, series.Sample{Day: row.Day, Value: row.Value.InexactFloat64()})
	}
	return out
}

var (
	_ SampleStore    = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ feed.Source    = (*Store)(nil)
)
