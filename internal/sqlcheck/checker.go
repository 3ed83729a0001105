// Package sqlcheck grades a student's SQL query by running it next to a
// reference query on a read-only SQLite data set.
package sqlcheck

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shrimpsizemoose/semla/internal/models"
)

type Result struct {
	Status   models.SolutionStatus
	Feedback string
}

func correct() Result {
	return Result{Status: models.SolutionCorrect}
}

func incorrect(format string, args ...interface{}) Result {
	return Result{Status: models.SolutionIncorrect, Feedback: fmt.Sprintf(format, args...)}
}

// readOnlyDSN opens the file in SQLite's read-only mode and additionally
// turns on query_only, so writes fail inside the engine.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String() + "?mode=ro&_pragma=query_only(1)", nil
}

type resultSet struct {
	rows [][]interface{}
}

// width is taken from the first row, 0 for an empty result.
func (r resultSet) width() int {
	if len(r.rows) == 0 {
		return 0
	}
	return len(r.rows[0])
}

// Check runs both queries and compares their output. The order of the checks
// is fixed and the first failing one decides the feedback.
func Check(ctx context.Context, dataSetPath, referenceQuery, submittedQuery string, considerOrder bool) Result {
	dsn, err := readOnlyDSN(dataSetPath)
	if err != nil {
		return incorrect("The data set for this problem is unavailable: %v", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return incorrect("The data set for this problem is unavailable: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	expected, err := run(ctx, db, referenceQuery)
	if err != nil {
		return incorrect("The reference solution could not be run: <br><strong>%v</strong>", err)
	}

	got, err := run(ctx, db, submittedQuery)
	if err != nil {
		return incorrect("Problem with your query: <br><strong>%v</strong>", err)
	}

	if got.width() != expected.width() {
		return incorrect(
			"The number of columns returned are incorrect. Your query returns <strong>%d</strong> columns, while expected number of columns is <strong>%d</strong>.",
			got.width(), expected.width(),
		)
	}

	if len(got.rows) != len(expected.rows) {
		return incorrect(
			"The number of rows returned are incorrect. Your query returns <strong>%d</strong> rows, while expected number of rows is <strong>%d</strong>.",
			len(got.rows), len(expected.rows),
		)
	}

	if considerOrder {
		for i := range expected.rows {
			for j := range expected.rows[i] {
				if !cellEqual(got.rows[i][j], expected.rows[i][j]) {
					return incorrect(
						"Incorrect output on row %d, column %d: expected <strong>%s</strong>, got <strong>%s</strong>.",
						i+1, j+1, formatCell(expected.rows[i][j]), formatCell(got.rows[i][j]),
					)
				}
			}
		}
		return correct()
	}

	if !sameMultiset(got.rows, expected.rows) {
		return incorrect("Incorrect output")
	}
	return correct()
}

func run(ctx context.Context, db *sql.DB, query string) (resultSet, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return resultSet{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return resultSet{}, err
	}

	var out resultSet
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return resultSet{}, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out.rows = append(out.rows, values)
	}
	if err := rows.Err(); err != nil {
		return resultSet{}, err
	}
	return out, nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// cellEqual treats 1 and 1.0 as the same value.
func cellEqual(a, b interface{}) bool {
	if fa, ok := numeric(a); ok {
		fb, ok := numeric(b)
		return ok && fa == fb
	}
	return a == b
}

func cellKey(v interface{}) string {
	if f, ok := numeric(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "s:" + strconv.Quote(t)
	case bool:
		return "b:" + strconv.FormatBool(t)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func rowKey(row []interface{}) string {
	keys := make([]string, len(row))
	for i, v := range row {
		keys[i] = cellKey(v)
	}
	return strings.Join(keys, "\x1f")
}

// sameMultiset compares rows ignoring order but counting duplicates.
func sameMultiset(a, b [][]interface{}) bool {
	counts := make(map[string]int, len(a))
	for _, row := range a {
		counts[rowKey(row)]++
	}
	for _, row := range b {
		k := rowKey(row)
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
