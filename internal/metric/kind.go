package metric

import (
	"fmt"
	"strings"
)

// Kind tags a metric stream and selects its conversion, delta and scale policy.
type Kind string

const (
	KindWeight   Kind = "weight"
	KindSteps    Kind = "steps"
	KindSleep    Kind = "sleep_minutes"
	KindExercise Kind = "exercise_minutes"
	KindEnergy   Kind = "energy"
	KindGlucose  Kind = "glucose"
	KindBodyFat  Kind = "body_fat"
)

// Direction states which side of the target is desirable.
type Direction string

const (
	LowerIsBetter  Direction = "lower_is_better"
	HigherIsBetter Direction = "higher_is_better"
)

// ScaleStyle selects the axis policy used for chart scaling.
type ScaleStyle string

const (
	// ScaleRange pads around the observed min/max (weight, glucose).
	ScaleRange ScaleStyle = "range"
	// ScaleZeroBased anchors the axis at zero.
	ScaleZeroBased ScaleStyle = "zero_based"
	// ScaleCount anchors at zero and steps in round thousands.
	ScaleCount ScaleStyle = "count"
	// ScalePercent clamps the axis to 0..100.
	ScalePercent ScaleStyle = "percent"
)

// Policy is the per-kind strategy entry.
type Policy struct {
	Kind      Kind
	Base      Unit
	Units     []Unit
	Direction Direction
	Scale     ScaleStyle
	// Qualifies reports whether a base value counts as a measurement for
	// averaging and latest-known-good lookups.
	Qualifies func(v float64) bool
}

func positive(v float64) bool { return v > 0 }

var policies = map[Kind]Policy{
	KindWeight: {
		Kind:      KindWeight,
		Base:      UnitKilogram,
		Units:     []Unit{UnitKilogram, UnitPound},
		Direction: LowerIsBetter,
		Scale:     ScaleRange,
		Qualifies: positive,
	},
	KindSteps: {
		Kind:      KindSteps,
		Base:      UnitCount,
		Units:     []Unit{UnitCount},
		Direction: HigherIsBetter,
		Scale:     ScaleCount,
		Qualifies: positive,
	},
	KindSleep: {
		Kind:      KindSleep,
		Base:      UnitMinute,
		Units:     []Unit{UnitMinute, UnitHour},
		Direction: HigherIsBetter,
		Scale:     ScaleZeroBased,
		Qualifies: positive,
	},
	KindExercise: {
		Kind:      KindExercise,
		Base:      UnitMinute,
		Units:     []Unit{UnitMinute, UnitHour},
		Direction: HigherIsBetter,
		Scale:     ScaleZeroBased,
		Qualifies: positive,
	},
	KindEnergy: {
		Kind:      KindEnergy,
		Base:      UnitKilocalorie,
		Units:     []Unit{UnitKilocalorie, UnitKilojoule},
		Direction: HigherIsBetter,
		Scale:     ScaleZeroBased,
		Qualifies: positive,
	},
	KindGlucose: {
		Kind:      KindGlucose,
		Base:      UnitMgPerDL,
		Units:     []Unit{UnitMgPerDL, UnitMmolPerL},
		Direction: LowerIsBetter,
		Scale:     ScaleRange,
		Qualifies: positive,
	},
	KindBodyFat: {
		Kind:      KindBodyFat,
		Base:      UnitPercent,
		Units:     []Unit{UnitPercent},
		Direction: LowerIsBetter,
		Scale:     ScalePercent,
		Qualifies: positive,
	},
}

var orderedKinds = []Kind{KindWeight, KindSteps, KindSleep, KindExercise, KindEnergy, KindGlucose, KindBodyFat}

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(orderedKinds))
	copy(out, orderedKinds)
	return out
}

// Lookup returns the policy for kind.
func Lookup(kind Kind) (Policy, bool) {
	p, ok := policies[kind]
	return p, ok
}

// MustLookup returns the policy for kind or panics. Only for kinds validated earlier.
func MustLookup(kind Kind) Policy {
	p, ok := policies[kind]
	if !ok {
		panic(fmt.Sprintf("metric: unknown kind %q", kind))
	}
	return p
}

// ParseKind resolves a configured kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := policies[k]; !ok {
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
	return k, nil
}

// Supports reports whether unit is a valid display unit for the policy's kind.
func (p Policy) Supports(unit Unit) bool {
	for _, u := range p.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// ParseDirection resolves a configured delta direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case LowerIsBetter:
		return LowerIsBetter, nil
	case HigherIsBetter:
		return HigherIsBetter, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}
