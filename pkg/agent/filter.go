package agent

import "fmt"

// Admission is the outcome of applying the constraint filter to one item.
type Admission struct {
	Admitted bool
	Reason   string
}

// ApplyConstraints decides whether an evidence item is admissible under the
// given constraint set. It is a pure function.
//
// An item with an unknown published year is never rejected on time grounds:
// missing metadata is not treated as a violation, so incomplete sources do
// not starve the evidence pool.
func ApplyConstraints(item EvidenceItem, cs ConstraintSet) Admission {
	if len(cs.SourceTypes) > 0 && !containsSourceType(cs.SourceTypes, item.SourceType) {
		return Admission{Reason: fmt.Sprintf("source_type %s not in allowed set", item.SourceType)}
	}
	if tr := cs.TimeRange; tr != nil && item.PublishedYear > 0 {
		if tr.StartYear > 0 && item.PublishedYear < tr.StartYear {
			return Admission{Reason: fmt.Sprintf("published_year %d before start_year %d", item.PublishedYear, tr.StartYear)}
		}
		if tr.EndYear > 0 && item.PublishedYear > tr.EndYear {
			return Admission{Reason: fmt.Sprintf("published_year %d after end_year %d", item.PublishedYear, tr.EndYear)}
		}
	}
	return Admission{Admitted: true}
}

// MergeConstraints combines the user-specified floor with a critic override.
// The result can only be as strict or stricter than the floor: source types
// intersect and the time range tightens. An override that would loosen or
// empty out the floor is ignored on that axis.
func MergeConstraints(floor ConstraintSet, override *ConstraintSet) ConstraintSet {
	if override == nil {
		return floor
	}
	merged := ConstraintSet{Quality: floor.Quality}

	switch {
	case len(floor.SourceTypes) == 0:
		merged.SourceTypes = append(merged.SourceTypes, override.SourceTypes...)
	case len(override.SourceTypes) == 0:
		merged.SourceTypes = append(merged.SourceTypes, floor.SourceTypes...)
	default:
		for _, st := range floor.SourceTypes {
			if containsSourceType(override.SourceTypes, st) {
				merged.SourceTypes = append(merged.SourceTypes, st)
			}
		}
		if len(merged.SourceTypes) == 0 {
			merged.SourceTypes = append(merged.SourceTypes, floor.SourceTypes...)
		}
	}

	merged.TimeRange = mergeTimeRange(floor.TimeRange, override.TimeRange)
	if override.Quality != "" {
		merged.Quality = override.Quality
	}
	return merged
}

func mergeTimeRange(floor, override *TimeRange) *TimeRange {
	if floor == nil && override == nil {
		return nil
	}
	if floor == nil {
		tr := *override
		return &tr
	}
	if override == nil {
		tr := *floor
		return &tr
	}
	tr := TimeRange{StartYear: floor.StartYear, EndYear: floor.EndYear}
	if override.StartYear > tr.StartYear {
		tr.StartYear = override.StartYear
	}
	if override.EndYear > 0 && (tr.EndYear == 0 || override.EndYear < tr.EndYear) {
		tr.EndYear = override.EndYear
	}
	// A tightening that inverted the window falls back to the floor.
	if tr.StartYear > 0 && tr.EndYear > 0 && tr.StartYear > tr.EndYear {
		fallback := *floor
		return &fallback
	}
	return &tr
}

func containsSourceType(set []SourceType, st SourceType) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}
