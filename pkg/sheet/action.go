package sheet

import (
	"fmt"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
)

// ProcessAction returns the action's roll expression extended by every
// Quality whose tags match one of the action's quality tags and whose rank
// in ctx is non-zero, along with a note per applied quality.
//
// A quality's rank is its own value when it has one, otherwise the value of
// its first child property (one whose ParentID is the quality's id).
func ProcessAction(action Action, props []Property, ctx expr.Context) (string, []string) {
	final := action.RollExpression
	var notes []string

	for _, tag := range action.QualityTags {
		for _, q := range props {
			if q.Usage != UsageQuality || !q.HasTag(tag) {
				continue
			}
			key, rank, ok := qualityRank(q, props, ctx)
			if !ok || rank == 0 {
				continue
			}
			final += " + " + key
			notes = append(notes, fmt.Sprintf("Used '%s' Quality (Rank %d)", q.Name, rank))
		}
	}
	return final, notes
}

func qualityRank(q Property, props []Property, ctx expr.Context) (string, int, bool) {
	if v, ok := ctx[q.ID]; ok {
		return q.ID, v, true
	}
	for _, child := range props {
		if child.ParentID != q.ID {
			continue
		}
		if v, ok := ctx[child.ID]; ok {
			return child.ID, v, true
		}
	}
	return "", 0, false
}
