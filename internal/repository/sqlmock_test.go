package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"chatwarden/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

var advanceSQL = `INSERT INTO "moderator_rule_last_seen" ("moderator_id","rule_id","last_seen_timestamp") VALUES ($1,$2,$3) ` +
	`ON CONFLICT ("moderator_id","rule_id") DO UPDATE SET "last_seen_timestamp"=` + monotonicMax

func TestLastSeenRepository_AdvanceSQL(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		mockBehavior func(mock sqlmock.Sqlmock)
		wantCode     string
	}{
		{
			name: "single upsert",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(advanceSQL)).
					WithArgs(int64(10), 3, ts).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "serialization failure is retried",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(advanceSQL)).
					WillReturnError(&pgconn.PgError{Code: "40001"})
				mock.ExpectExec(regexp.QuoteMeta(advanceSQL)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "persistent conflict",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				for i := 0; i < advanceAttempts; i++ {
					mock.ExpectExec(regexp.QuoteMeta(advanceSQL)).
						WillReturnError(&pgconn.PgError{Code: "40P01"})
				}
			},
			wantCode: models.CodeConcurrencyConflict,
		},
		{
			name: "connection loss",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(advanceSQL)).
					WillReturnError(&pgconn.PgError{Code: "08006"})
			},
			wantCode: models.CodeStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.mockBehavior(mock)

			err := NewLastSeenRepository(db).Advance(context.Background(), 10, 3, ts)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, models.HasCode(err, tt.wantCode), "got %v", err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByIDSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	query := regexp.QuoteMeta(`SELECT * FROM "users" WHERE user_id = $1 ORDER BY "users"."user_id" LIMIT $2`)

	rows := sqlmock.NewRows([]string{"user_id", "username", "full_name"}).AddRow(7, "mod", "Mod Erator")
	mock.ExpectQuery(query).WithArgs(int64(7), 1).WillReturnRows(rows)

	user, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "mod", user.Username)

	mock.ExpectQuery(query).WithArgs(int64(8), 1).WillReturnError(gorm.ErrRecordNotFound)
	_, err = repo.GetByID(context.Background(), 8)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	mock.ExpectQuery(query).WithArgs(int64(9), 1).WillReturnError(errors.New("boom"))
	_, err = repo.GetByID(context.Background(), 9)
	assert.True(t, models.HasCode(err, models.CodeInternal))

	assert.NoError(t, mock.ExpectationsWereMet())
}
