package metric

import (
	"fmt"
	"strings"
)

// Unit names a measurement unit.
type Unit string

const (
	UnitKilogram    Unit = "kg"
	UnitPound       Unit = "lb"
	UnitCount       Unit = "count"
	UnitMinute      Unit = "min"
	UnitHour        Unit = "h"
	UnitKilocalorie Unit = "kcal"
	UnitKilojoule   Unit = "kJ"
	UnitMgPerDL     Unit = "mg/dL"
	UnitMmolPerL    Unit = "mmol/L"
	UnitPercent     Unit = "%"
)

const (
	poundsPerKilogram = 2.20462
	minutesPerHour    = 60.0
	kilojoulesPerKcal = 4.184
	mgdlPerMmol       = 18.0182
)

// factors holds display = base * factor for every non-base unit.
var factors = map[Kind]map[Unit]float64{
	KindWeight:   {UnitPound: poundsPerKilogram},
	KindSleep:    {UnitHour: 1 / minutesPerHour},
	KindExercise: {UnitHour: 1 / minutesPerHour},
	KindEnergy:   {UnitKilojoule: kilojoulesPerKcal},
	KindGlucose:  {UnitMmolPerL: 1 / mgdlPerMmol},
}

// UnsupportedUnitError reports a (kind, unit) pair outside the conversion table.
type UnsupportedUnitError struct {
	Kind Kind
	Unit Unit
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported unit %q for metric kind %q", e.Unit, e.Kind)
}

func factor(kind Kind, unit Unit) (float64, error) {
	p, ok := policies[kind]
	if !ok || !p.Supports(unit) {
		return 0, &UnsupportedUnitError{Kind: kind, Unit: unit}
	}
	if unit == p.Base {
		return 1, nil
	}
	f, ok := factors[kind][unit]
	if !ok {
		return 0, &UnsupportedUnitError{Kind: kind, Unit: unit}
	}
	return f, nil
}

// ToDisplay converts a base-unit value into unit. No rounding is applied.
func ToDisplay(base float64, kind Kind, unit Unit) (float64, error) {
	f, err := factor(kind, unit)
	if err != nil {
		return 0, err
	}
	return base * f, nil
}

// ToBase converts a display-unit value back into the kind's base unit.
func ToBase(display float64, kind Kind, unit Unit) (float64, error) {
	f, err := factor(kind, unit)
	if err != nil {
		return 0, err
	}
	return display / f, nil
}

// Label is the short suffix shown next to formatted values.
func (u Unit) Label() string {
	switch u {
	case UnitPound:
		return "lbs"
	case UnitCount:
		return "steps"
	}
	return string(u)
}

// ParseUnit resolves a configured unit name. Matching is case-insensitive.
func ParseUnit(s string) (Unit, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "lbs", "pound", "pounds":
		return UnitPound, nil
	case "steps":
		return UnitCount, nil
	case "hours":
		return UnitHour, nil
	case "minutes":
		return UnitMinute, nil
	}
	for _, u := range []Unit{UnitKilogram, UnitPound, UnitCount, UnitMinute, UnitHour, UnitKilocalorie, UnitKilojoule, UnitMgPerDL, UnitMmolPerL, UnitPercent} {
		if strings.EqualFold(trimmed, string(u)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}
