package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"healthtrend/internal/display"
	"healthtrend/internal/pipeline"
)

// Sections in the CSV export.
const (
	SectionDaily   = "daily"
	SectionPeriod  = "period"
	SectionMonthly = "monthly"
	SectionKPI     = "kpi"
)

// WriteCSV writes the snapshot in long format: section,label,value,unit.
// Entries without data carry an empty value.
func WriteCSV(w io.Writer, snap *pipeline.Snapshot) error {
	writer := csv.NewWriter(w)
	unit := snap.Unit.Label()

	rows := [][]string{{"section", "label", "value", "unit"}}
	for _, p := range snap.Chart {
		rows = append(rows, []string{SectionDaily, p.Day.String(), formatFloat(p.Value), unit})
	}
	for _, e := range snap.Periods {
		rows = append(rows, entryRow(SectionPeriod, e, unit))
	}
	for _, e := range snap.Monthly {
		rows = append(rows, entryRow(SectionMonthly, e, unit))
	}
	rows = append(rows,
		[]string{SectionKPI, "current", snap.KPI.Current, ""},
		[]string{SectionKPI, "target", snap.KPI.Target, ""},
		[]string{SectionKPI, "delta", snap.KPI.Delta.Text, string(snap.KPI.Delta.Tone)},
	)

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func entryRow(section string, e display.Entry, unit string) []string {
	value := ""
	if e.Valid {
		value = formatFloat(e.Value)
	}
	return []string{section, e.Label, value, unit}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
