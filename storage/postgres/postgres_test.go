package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/magiclink"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestTenantGetBySlug(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepository(db)

	q := `(?s)^\s*SELECT\s+id,\s*slug,\s*name,\s*timezone,\s*created_at\s+FROM\s+tenants\s+WHERE\s+slug\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "timezone", "created_at"}).
			AddRow("t-acme", "acme", "Acme Tutoring", "Europe/London", testNow))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("broken").WillReturnError(errors.New("conn reset"))

	got, err := repo.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, &tenants.Tenant{ID: "t-acme", Slug: "acme", Name: "Acme Tutoring", Timezone: "Europe/London", CreatedAt: testNow}, got)

	_, err = repo.GetBySlug(context.Background(), "ghost")
	require.ErrorIs(t, err, apperrors.ErrTenantNotFound)

	_, err = repo.GetBySlug(context.Background(), "broken")
	require.Error(t, err)
	require.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantUpsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepository(db)

	q := `(?s)^\s*INSERT\s+INTO\s+tenants\b.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE`
	mock.ExpectExec(q).WithArgs("t-acme", "acme", "Acme", "UTC", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("t-dup", "acme", "Dup", "UTC", testNow).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	require.NoError(t, repo.Upsert(context.Background(), &tenants.Tenant{ID: "t-acme", Slug: " ACME ", Name: "Acme", CreatedAt: testNow}))

	err := repo.Upsert(context.Background(), &tenants.Tenant{ID: "t-dup", Slug: "acme", Name: "Dup", CreatedAt: testNow})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	err = repo.Upsert(context.Background(), &tenants.Tenant{Slug: "not valid"})
	require.ErrorIs(t, err, apperrors.ErrInvalidTenantSlug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTenantRepository(db)

	mock.ExpectQuery(`(?s)FROM\s+tenants\s+ORDER\s+BY\s+slug\s+OFFSET\s+\$1\s+LIMIT\s+\$2`).WithArgs(0, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "timezone", "created_at"}).
			AddRow("t-acme", "acme", "Acme", "UTC", testNow).
			AddRow("t-other", "other", "Other", "UTC", testNow))

	got, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "other", got[1].Slug)
}

var (
	userColumns       = []string{"id", "email", "name", "password_hash", "created_at"}
	membershipColumns = []string{"tenant_id", "role", "parent_id", "joined_at"}
	userByEmail       = `(?s)^\s*SELECT\s+id,\s*email,\s*name,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	membershipsByUser = `(?s)^\s*SELECT\s+tenant_id,\s*role,\s*parent_id,\s*joined_at\s+FROM\s+memberships\s+WHERE\s+user_id\s*=\s*\$1`
)

func TestUserGetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(userByEmail).WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-1", "jane@example.com", "Jane", "", testNow))
	mock.ExpectQuery(membershipsByUser).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).
			AddRow("t-acme", "parent", "p-7", testNow).
			AddRow("t-other", "tutor", "", testNow))

	u, err := repo.GetByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.Len(t, u.Memberships, 2)
	require.True(t, u.HasTenantRole("t-acme", users.RoleParent))
	require.Equal(t, "p-7", u.Membership("t-acme").ParentID)
	require.True(t, u.HasTenantRole("t-other", users.RoleTutor))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(userByEmail).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestUserGetRejectsUnknownRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-1", "a@b.co", "", "", testNow))
	mock.ExpectQuery(membershipsByUser).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).AddRow("t-acme", "superuser", "", testNow))

	_, err := repo.GetByID(context.Background(), "u-1")
	require.Error(t, err)
}

func TestUserUpsertReplacesMemberships(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	u := &users.User{
		ID:           "u-1",
		Email:        "owner@acme.test",
		Name:         "Olive",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    testNow,
		Memberships:  []users.Membership{{TenantID: "t-acme", Role: users.RoleOwner}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+users\b.*ON\s+CONFLICT`).
		WithArgs("u-1", "owner@acme.test", "Olive", "$2a$10$hash", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+memberships\s+WHERE\s+user_id\s*=\s*\$1`).WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+memberships\b`).WithArgs("u-1", "t-acme", "owner", "", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Upsert(context.Background(), u))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpsertDuplicateEmailRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+users\b`).WillReturnError(&pgconn.PgError{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), &users.User{ID: "u-2", Email: "owner@acme.test", CreatedAt: testNow})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := &sessions.Session{
		ID: "s-1", TenantID: "t-acme", UserID: "u-1", Role: users.RoleAdmin,
		CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions\b`).
		WithArgs("s-1", "t-acme", "u-1", "admin", "", testNow, testNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1`).WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "role", "parent_id", "created_at", "expires_at"}).
			AddRow("s-1", "t-acme", "u-1", "admin", "", testNow, testNow.Add(time.Hour)))
	mock.ExpectQuery(`(?s)FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1`).WithArgs("s-missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$1`).WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1`).WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, s, got)

	_, err = repo.Get(ctx, "s-missing")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	n, err := repo.DeleteExpired(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, repo.Delete(ctx, "s-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

var tokenColumns = []string{"id", "token_hash", "identifier_hash", "tenant_id", "parent_user_id", "issued_at", "expires_at", "consumed_at"}

func TestMagicLinkFindByHashIsTenantScoped(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	q := `(?s)FROM\s+magic_link_tokens\s+WHERE\s+tenant_id\s*=\s*\$1\s+AND\s+token_hash\s*=\s*\$2`
	consumed := testNow.Add(-time.Minute)
	mock.ExpectQuery(q).WithArgs("t-acme", "hash-1").
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow("m-1", "hash-1", "id-hash", "t-acme", "u-1", testNow, testNow.Add(15*time.Minute), consumed))
	mock.ExpectQuery(q).WithArgs("t-other", "hash-1").WillReturnError(sql.ErrNoRows)

	tok, err := repo.FindByHash(context.Background(), "t-acme", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "u-1", tok.ParentUserID)
	require.True(t, tok.Consumed())
	require.Equal(t, consumed, *tok.ConsumedAt)

	_, err = repo.FindByHash(context.Background(), "t-other", "hash-1")
	require.ErrorIs(t, err, apperrors.ErrMagicLinkNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMagicLinkCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	tok := &magiclink.Token{ID: "m-1", TokenHash: "h", IdentifierHash: "i", TenantID: "t-acme", IssuedAt: testNow, ExpiresAt: testNow.Add(15 * time.Minute)}
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+magic_link_tokens\b`).
		WithArgs("m-1", "h", "i", "t-acme", "", testNow, testNow.Add(15*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), tok))
	require.NoError(t, mock.ExpectationsWereMet())
}

const redeemUpdate = `(?s)UPDATE\s+magic_link_tokens\s+SET\s+consumed_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+consumed_at\s+IS\s+NULL`

func redeemSession() *sessions.Session {
	return &sessions.Session{ID: "s-1", TenantID: "t-acme", UserID: "u-1", Role: users.RoleParent, ParentID: "p-1", CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour)}
}

func TestMagicLinkRedeem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(redeemUpdate).WithArgs("m-1", testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions\b`).
		WithArgs("s-1", "t-acme", "u-1", "parent", "p-1", testNow, testNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Redeem(context.Background(), "m-1", testNow, redeemSession()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMagicLinkRedeemAlreadyConsumed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(redeemUpdate).WithArgs("m-1", testNow).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Redeem(context.Background(), "m-1", testNow, redeemSession())
	require.ErrorIs(t, err, apperrors.ErrAlreadyConsumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMagicLinkRedeemSessionFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(redeemUpdate).WithArgs("m-1", testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sessions\b`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Redeem(context.Background(), "m-1", testNow, redeemSession())
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrAlreadyConsumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMagicLinkDeleteExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMagicLinkRepository(db)

	mock.ExpectExec(`DELETE\s+FROM\s+magic_link_tokens\s+WHERE\s+expires_at\s*<\s*\$1`).WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

const (
	throttleInsert = `(?s)INSERT\s+INTO\s+throttle_records\b.*ON\s+CONFLICT\s+\(scope_key\)\s+DO\s+NOTHING`
	throttleSelect = `(?s)SELECT\s+window_start,\s*attempt_count,\s*cooldown_until\s+FROM\s+throttle_records\s+WHERE\s+scope_key\s*=\s*\$1\s+FOR\s+UPDATE`
	throttleUpdate = `(?s)UPDATE\s+throttle_records\s+SET\s+window_start\s*=\s*\$2,\s*attempt_count\s*=\s*\$3,\s*cooldown_until\s*=\s*\$4`
)

var throttleColumns = []string{"window_start", "attempt_count", "cooldown_until"}

func TestThrottleStoreFirstAttempt(t *testing.T) {
	db, mock := newMock(t)
	store := NewThrottleStore(db)
	p := throttle.Policy{Window: 15 * time.Minute, MaxAttempts: 3, Cooldown: 15 * time.Minute}

	mock.ExpectBegin()
	mock.ExpectExec(throttleInsert).WithArgs("magic:email:k", testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(throttleSelect).WithArgs("magic:email:k").
		WillReturnRows(sqlmock.NewRows(throttleColumns).AddRow(testNow, 0, nil))
	mock.ExpectExec(throttleUpdate).WithArgs("magic:email:k", testNow, 1, sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.CheckAndRecord(context.Background(), "magic:email:k", p, testNow)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestThrottleStoreStartsCooldown(t *testing.T) {
	db, mock := newMock(t)
	store := NewThrottleStore(db)
	p := throttle.Policy{Window: 15 * time.Minute, MaxAttempts: 3, Cooldown: 15 * time.Minute}
	windowStart := testNow.Add(-5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(throttleInsert).WithArgs("k", testNow).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(throttleSelect).WithArgs("k").
		WillReturnRows(sqlmock.NewRows(throttleColumns).AddRow(windowStart, 3, nil))
	mock.ExpectExec(throttleUpdate).
		WithArgs("k", windowStart, 4, sql.NullTime{Time: testNow.Add(15 * time.Minute), Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.CheckAndRecord(context.Background(), "k", p, testNow)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 15*time.Minute, d.RetryAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestThrottleStoreErrorRollsBack(t *testing.T) {
	db, mock := newMock(t)
	store := NewThrottleStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(throttleInsert).WillReturnError(errors.New("timeout"))
	mock.ExpectRollback()

	_, err := store.CheckAndRecord(context.Background(), "k", throttle.Policy{Window: time.Minute, MaxAttempts: 1}, testNow)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestThrottleStoreDeleteStale(t *testing.T) {
	db, mock := newMock(t)
	store := NewThrottleStore(db)

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+throttle_records\s+WHERE\s+window_start\s*<\s*\$1`).WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.DeleteStale(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRunMigrationsUsesEmbeddedFS(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	require.Equal(t, ".", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("dirty")
	}
	require.ErrorContains(t, RunMigrations(context.Background(), db), "dirty")
}
