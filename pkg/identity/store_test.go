package identity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db), mock
}

func userColumns() []string {
	return []string{"id", "username", "email", "full_name", "role", "created_at", "updated_at"}
}

func TestStore_CreateUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("alice", "alice@example.com", "Alice Doe", RoleManagement).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), now, now))

	user, err := store.CreateUser(context.Background(), "alice", "alice@example.com", "Alice Doe", RoleManagement)
	require.NoError(t, err)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, RoleManagement, user.Role)
	assert.Equal(t, DefaultCapabilities(), user.Capabilities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	t.Run("found with capability overrides", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(userColumns()).
				AddRow(int64(7), "bob", "bob@example.com", "Bob", RoleProjectUser, now, now))
		mock.ExpectQuery(regexp.QuoteMeta("FROM user_capabilities")).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"capability", "enabled"}).
				AddRow(string(CapViewReports), true).
				AddRow(string(CapViewEvents), false))

		user, err := store.GetUser(context.Background(), 7)
		require.NoError(t, err)

		assert.Equal(t, "bob", user.Username)
		assert.True(t, user.Capabilities.Has(CapViewReports), "override should enable reports")
		assert.False(t, user.Capabilities.Has(CapViewEvents), "override should disable events")
		assert.True(t, user.Capabilities.Has(CapViewProjects), "default should remain")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(userColumns()))

		_, err := store.GetUser(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListUsers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(1), "alice", nil, nil, RoleAdmin, now, now).
			AddRow(int64(2), "bob", "bob@example.com", "Bob", RoleProjectUser, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_capabilities")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "capability", "enabled"}).
			AddRow(int64(2), string(CapViewReports), true))

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "alice", users[0].Username)
	assert.Empty(t, users[0].Email)
	assert.True(t, users[1].Capabilities.Has(CapViewReports))
	assert.False(t, users[0].Capabilities.Has(CapViewReports))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListUsersByRole(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE role = $1")).
		WithArgs(RoleProjectUser).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(2), "bob", "bob@example.com", "Bob", RoleProjectUser, now, now).
			AddRow(int64(4), "wren", nil, nil, RoleProjectUser, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_capabilities")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "capability", "enabled"}).
			AddRow(int64(4), string(CapViewReports), true))

	users, err := store.ListUsersByRole(context.Background(), RoleProjectUser)
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "bob", users[0].Username)
	assert.Equal(t, "wren", users[1].Username)
	assert.True(t, users[1].Capabilities.Has(CapViewReports))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateUserRole(t *testing.T) {
	store, mock := newMockStore(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).
			WithArgs(RoleManagement, sqlmock.AnyArg(), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.UpdateUserRole(context.Background(), 3, RoleManagement))
	})

	t.Run("missing user", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).
			WithArgs(RoleManagement, sqlmock.AnyArg(), int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateUserRole(context.Background(), 99, RoleManagement)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetCapability(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_capabilities")).
		WithArgs(int64(5), CapViewReports, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetCapability(context.Background(), 5, CapViewReports, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUserByTokenHash(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	t.Run("valid token resolves user", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("JOIN users")).
			WithArgs("somehash", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userColumns()).
				AddRow(int64(4), "carol", "carol@example.com", "Carol", RoleManagement, now, now))
		mock.ExpectQuery(regexp.QuoteMeta("FROM user_capabilities")).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"capability", "enabled"}))

		user, err := store.GetUserByTokenHash(context.Background(), "somehash", now)
		require.NoError(t, err)
		assert.Equal(t, "carol", user.Username)
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("JOIN users")).
			WithArgs("badhash", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userColumns()))

		_, err := store.GetUserByTokenHash(context.Background(), "badhash", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO api_tokens")).
		WithArgs(int64(4), "hash", "ci", expires).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))

	token := &APIToken{UserID: 4, TokenHash: "hash", Name: "ci", ExpiresAt: expires}
	require.NoError(t, store.CreateToken(context.Background(), token))

	assert.Equal(t, int64(10), token.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteToken(t *testing.T) {
	store, mock := newMockStore(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM api_tokens")).
			WithArgs(int64(10), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.DeleteToken(context.Background(), 10, 4))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM api_tokens")).
			WithArgs(int64(11), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteToken(context.Background(), 11, 4)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteExpiredTokens(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM api_tokens WHERE expires_at")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.DeleteExpiredTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
