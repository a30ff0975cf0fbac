package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded refers to the proposed row inside ON CONFLICT DO UPDATE
func Excluded(column string) string {
	return fmt.Sprintf("%s = EXCLUDED.%s", column, column)
}

// Upsert appends ON CONFLICT (conflict) DO UPDATE SET for every column in update
func Upsert(ib *sqlbuilder.InsertBuilder, conflict string, update ...string) *sqlbuilder.InsertBuilder {
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = Excluded(col)
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflict, strings.Join(sets, ", ")))
	return ib
}

// Paginate applies limit and offset to a select
func Paginate(sb *sqlbuilder.SelectBuilder, page, pageSize int) *sqlbuilder.SelectBuilder {
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)
	return sb
}
