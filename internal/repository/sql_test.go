package repository

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// recordedDB is a sqlx handle over sqlmock whose matcher accepts a query
// when it contains the expected fragment and keeps the full text for
// later assertions.
type recordedDB struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock

	mu      sync.Mutex
	queries []string
}

func normalizeSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func newRecordedDB(t *testing.T) *recordedDB {
	t.Helper()

	r := &recordedDB{}
	matcher := sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		got := normalizeSQL(actual)
		if !strings.Contains(got, normalizeSQL(expected)) {
			return fmt.Errorf("query %q does not contain %q", got, expected)
		}
		r.mu.Lock()
		r.queries = append(r.queries, got)
		r.mu.Unlock()
		return nil
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r.db = sqlx.NewDb(db, "mysql")
	r.mock = mock
	return r
}

// query returns the i-th statement the matcher accepted.
func (r *recordedDB) query(t *testing.T, i int) string {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.queries) {
		t.Fatalf("expected at least %d queries, got %d", i+1, len(r.queries))
	}
	return r.queries[i]
}

func (r *recordedDB) verify(t *testing.T) {
	t.Helper()
	if err := r.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sql expectations: %v", err)
	}
}
