package review

import (
	"math"

	"github.com/ppiankov/veracity/internal/model"
)

// Merger combines automatic SubVerdicts with optional human overrides.
// Human judgment is authoritative over the category; confidence is a
// weighted average so an uncertain human does not erase a strong
// automatic signal entirely.
type Merger struct {
	humanWeight float64
}

// NewMerger creates a Merger. weight is the human share of the merged
// confidence (default 0.7 when out of range).
func NewMerger(weight float64) Merger {
	if weight <= 0 || weight > 1 {
		weight = 0.7
	}
	return Merger{humanWeight: weight}
}

// Merge applies one override to one automatic SubVerdict. A nil override
// is a no-op pass-through: the automatic verdict is returned unchanged.
func (m Merger) Merge(auto model.SubVerdict, override *model.ReviewOverride) model.SubVerdict {
	if override == nil {
		return auto
	}

	merged := auto
	adjusted := false

	if override.Category != nil && override.Category.Valid() {
		merged.Category = *override.Category
		adjusted = true
	}

	if override.Confidence != nil {
		human := math.Max(0, math.Min(*override.Confidence, 1))
		merged.Confidence = m.humanWeight*human + (1-m.humanWeight)*auto.Confidence
		adjusted = true
	}

	if adjusted {
		merged.HumanAdjusted = true
		merged.HumanComment = override.Comment
	}

	return merged
}

// MergeAll applies overrides (keyed by SubClaim ordinal) to all
// automatic SubVerdicts, preserving order.
func (m Merger) MergeAll(auto []model.SubVerdict, overrides map[int]*model.ReviewOverride) []model.SubVerdict {
	if len(overrides) == 0 {
		return auto
	}
	merged := make([]model.SubVerdict, len(auto))
	for i, sv := range auto {
		merged[i] = m.Merge(sv, overrides[sv.SubClaimIndex])
	}
	return merged
}
