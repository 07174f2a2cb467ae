package metrics

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM usage_events")).
		WithArgs("acct-1", "login", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	src := NewPostgresSource(db)
	count, err := src.Count(context.Background(), "acct-1", "login", 30)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestDaysSinceLastActivity_NoActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(created_at) FROM usage_events")).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	src := NewPostgresSource(db)
	days, err := src.DaysSinceLastActivity(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, NoActivityDays, days)
}

func TestSafeCount_SubstitutesZeroOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM usage_events")).
		WillReturnError(errors.New("connection refused"))

	src := NewPostgresSource(db)
	count := SafeCount(context.Background(), src, "acct-1", "login", 30)
	assert.Equal(t, 0, count)
}

func TestSafeDaysInactive_SubstitutesMaxOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(created_at) FROM usage_events")).
		WillReturnError(errors.New("connection refused"))

	src := NewPostgresSource(db)
	days := SafeDaysInactive(context.Background(), src, "acct-1")
	assert.Equal(t, NoActivityDays, days)
}
