package state

import (
	"strings"

	"github.com/leapstack-labs/structon/pkg/core"
)

// buildUnitWhere translates a UnitQuery into a WHERE clause and its
// arguments. Placeholders stay in ? form; q rewrites them per dialect.
func buildUnitWhere(q core.UnitQuery) (string, []any) {
	var conds []string
	var args []any

	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Stage != "" {
		conds = append(conds, "stages LIKE ?")
		args = append(args, "%,"+string(q.Stage)+",%")
	}
	if q.Parent != "" {
		conds = append(conds, "parent_identifier = ?")
		args = append(args, q.Parent)
	}
	if q.Intent != "" {
		conds = append(conds, "LOWER(intent) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Intent)+"%")
	}
	if q.RootsOnly {
		conds = append(conds, "parent_identifier IS NULL")
	}
	if q.MinTension != nil {
		conds = append(conds, "tension >= ?")
		args = append(args, *q.MinTension)
	}
	if q.MaxTension != nil {
		conds = append(conds, "tension <= ?")
		args = append(args, *q.MaxTension)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
