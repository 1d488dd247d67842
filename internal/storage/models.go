package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

// DailySample is one persisted base-unit value for a metric on a calendar day.
type DailySample struct {
	Kind      metric.Kind
	Day       series.Day
	Value     decimal.Decimal
	Source    string
	UpdatedAt time.Time
}

// AlertRecord captures an emitted adverse-delta alert for cooldown and auditing.
type AlertRecord struct {
	ID         int64
	Kind       metric.Kind
	Day        series.Day
	Current    decimal.Decimal
	Target     decimal.Decimal
	Unit       metric.Unit
	DeltaText  string
	SnapshotID string
	Channels   []string
	CreatedAt  time.Time
}
