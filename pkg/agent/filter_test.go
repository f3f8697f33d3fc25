package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyConstraints(t *testing.T) {
	tests := []struct {
		name       string
		item       EvidenceItem
		cs         ConstraintSet
		admitted   bool
		wantReason string
	}{
		{
			name:     "no constraints admits everything",
			item:     EvidenceItem{SourceType: SourceBlog, PublishedYear: 1995},
			cs:       ConstraintSet{},
			admitted: true,
		},
		{
			name:     "allowed source type",
			item:     EvidenceItem{SourceType: SourcePeerReviewed, PublishedYear: 2020},
			cs:       ConstraintSet{SourceTypes: []SourceType{SourcePeerReviewed}},
			admitted: true,
		},
		{
			name:       "disallowed source type",
			item:       EvidenceItem{SourceType: SourceNews, PublishedYear: 2020},
			cs:         ConstraintSet{SourceTypes: []SourceType{SourcePeerReviewed}},
			admitted:   false,
			wantReason: "source_type news not in allowed set",
		},
		{
			name:       "published before window",
			item:       EvidenceItem{SourceType: SourceNews, PublishedYear: 2010},
			cs:         ConstraintSet{TimeRange: &TimeRange{StartYear: 2015}},
			admitted:   false,
			wantReason: "published_year 2010 before start_year 2015",
		},
		{
			name:       "published after window",
			item:       EvidenceItem{SourceType: SourceNews, PublishedYear: 2024},
			cs:         ConstraintSet{TimeRange: &TimeRange{EndYear: 2020}},
			admitted:   false,
			wantReason: "published_year 2024 after end_year 2020",
		},
		{
			name:     "inside window",
			item:     EvidenceItem{SourceType: SourceNews, PublishedYear: 2018},
			cs:       ConstraintSet{TimeRange: &TimeRange{StartYear: 2015, EndYear: 2020}},
			admitted: true,
		},
		{
			name:     "unknown year passes time constraint",
			item:     EvidenceItem{SourceType: SourceNews, PublishedYear: 0},
			cs:       ConstraintSet{TimeRange: &TimeRange{StartYear: 2015, EndYear: 2020}},
			admitted: true,
		},
		{
			name:       "source type checked before time range",
			item:       EvidenceItem{SourceType: SourceBlog, PublishedYear: 2010},
			cs:         ConstraintSet{SourceTypes: []SourceType{SourceNews}, TimeRange: &TimeRange{StartYear: 2015}},
			admitted:   false,
			wantReason: "source_type blog not in allowed set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adm := ApplyConstraints(tt.item, tt.cs)
			assert.Equal(t, tt.admitted, adm.Admitted)
			assert.Equal(t, tt.wantReason, adm.Reason)
		})
	}
}

func TestMergeConstraints(t *testing.T) {
	floor := ConstraintSet{
		SourceTypes: []SourceType{SourcePeerReviewed, SourcePreprint},
		TimeRange:   &TimeRange{StartYear: 2010, EndYear: 2024},
	}

	t.Run("nil override returns floor", func(t *testing.T) {
		merged := MergeConstraints(floor, nil)
		assert.Equal(t, floor, merged)
	})

	t.Run("intersects source types", func(t *testing.T) {
		merged := MergeConstraints(floor, &ConstraintSet{SourceTypes: []SourceType{SourcePreprint, SourceNews}})
		assert.Equal(t, []SourceType{SourcePreprint}, merged.SourceTypes)
	})

	t.Run("disjoint source types fall back to floor", func(t *testing.T) {
		merged := MergeConstraints(floor, &ConstraintSet{SourceTypes: []SourceType{SourceBlog}})
		assert.Equal(t, floor.SourceTypes, merged.SourceTypes)
	})

	t.Run("empty floor adopts override types", func(t *testing.T) {
		merged := MergeConstraints(ConstraintSet{}, &ConstraintSet{SourceTypes: []SourceType{SourceNews}})
		assert.Equal(t, []SourceType{SourceNews}, merged.SourceTypes)
	})

	t.Run("time range can only tighten", func(t *testing.T) {
		merged := MergeConstraints(floor, &ConstraintSet{TimeRange: &TimeRange{StartYear: 2015, EndYear: 2020}})
		assert.Equal(t, &TimeRange{StartYear: 2015, EndYear: 2020}, merged.TimeRange)

		// An attempt to widen is ignored on both bounds.
		merged = MergeConstraints(floor, &ConstraintSet{TimeRange: &TimeRange{StartYear: 2000, EndYear: 2030}})
		assert.Equal(t, floor.TimeRange, merged.TimeRange)
	})

	t.Run("inverted tightened window falls back to floor", func(t *testing.T) {
		narrow := ConstraintSet{TimeRange: &TimeRange{StartYear: 2010, EndYear: 2015}}
		merged := MergeConstraints(narrow, &ConstraintSet{TimeRange: &TimeRange{StartYear: 2020}})
		assert.Equal(t, narrow.TimeRange, merged.TimeRange)
	})

	t.Run("override time range applies when floor has none", func(t *testing.T) {
		merged := MergeConstraints(ConstraintSet{}, &ConstraintSet{TimeRange: &TimeRange{StartYear: 2018}})
		assert.Equal(t, &TimeRange{StartYear: 2018}, merged.TimeRange)
	})
}

func TestConstraintSetValidate(t *testing.T) {
	assert.NoError(t, ConstraintSet{}.Validate())
	assert.NoError(t, ConstraintSet{SourceTypes: []SourceType{SourceNews}, TimeRange: &TimeRange{StartYear: 2000, EndYear: 2020}}.Validate())
	assert.Error(t, ConstraintSet{SourceTypes: []SourceType{"journal"}}.Validate())
	assert.Error(t, ConstraintSet{TimeRange: &TimeRange{StartYear: 2021, EndYear: 2020}}.Validate())
}
