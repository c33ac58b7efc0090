package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/utils"
)

type userFixture struct {
	h      *UserHandler
	users  *fakeUsers
	tokens *fakeTokens
	events *recorder
	admin  *model.User
}

func newUserFixture() *userFixture {
	users := newFakeUsers()
	tokens := newFakeTokens()
	ev := &recorder{}
	return &userFixture{
		h:      NewUserHandler(users, tokens, ev, 4),
		users:  users,
		tokens: tokens,
		events: ev,
		admin:  users.add("root", model.RoleAdmin, nil, "password123"),
	}
}

func farFuture() time.Time { return time.Now().Add(time.Hour) }

func TestUserCreate(t *testing.T) {
	f := newUserFixture()

	c, rec := newContext(t, request{method: http.MethodPost, path: "/v1/admin/users", claims: claimsOf(f.admin),
		body: `{"name":" Ana ","email":"Ana@Example.com","password":"s3cret-pass","role_id":1,"vic_id":10}`})
	require.NoError(t, f.h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u model.User
	decode(t, rec, &u)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "TECHNICIAN", u.RoleName)
	assert.True(t, u.Active)
	require.NotNil(t, u.VICID)
	assert.Equal(t, uint64(10), *u.VICID)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.True(t, utils.VerifyPassword(f.users.rows[u.ID].PasswordHash, "s3cret-pass"))
	assert.Eventually(t, func() bool { return f.events.has(queue.UserCreated) }, eventWait, tick)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"duplicate email", `{"name":"B","email":"ana@example.com","password":"s3cret-pass","role_id":1}`, http.StatusConflict},
		{"bad email", `{"name":"B","email":"nope","password":"s3cret-pass","role_id":1}`, http.StatusBadRequest},
		{"short password", `{"name":"B","email":"b@example.com","password":"x","role_id":1}`, http.StatusBadRequest},
		{"no role", `{"name":"B","email":"b@example.com","password":"s3cret-pass"}`, http.StatusBadRequest},
		{"unknown role", `{"name":"B","email":"b@example.com","password":"s3cret-pass","role_id":9}`, http.StatusBadRequest},
		{"inactive", `{"name":"B","email":"b@example.com","password":"s3cret-pass","role_id":2,"active":false}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(t, request{method: http.MethodPost, path: "/v1/admin/users", claims: claimsOf(f.admin), body: tt.body})
			require.NoError(t, f.h.Create(c))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestUserUpdate(t *testing.T) {
	f := newUserFixture()
	tech := f.users.add("tech", model.RoleTechnician, vicPtr(10), "password123")
	require.NoError(t, f.tokens.StoreRefresh(context.Background(), tech.ID, "h1", farFuture()))

	update := func(body string) (int, model.User) {
		c, rec := newContext(t, request{method: http.MethodPatch, path: "/v1/admin/users/2", params: idParam(tech.ID), claims: claimsOf(f.admin), body: body})
		require.NoError(t, f.h.Update(c))
		var u model.User
		if rec.Code == http.StatusOK {
			decode(t, rec, &u)
		}
		return rec.Code, u
	}

	code, u := update(`{"name":"Tech Two","role_id":2}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Tech Two", u.Name)
	assert.Equal(t, "INSPECTOR", u.RoleName)
	require.NotNil(t, u.VICID, "absent vic_id is left alone")
	assert.Equal(t, 1, f.tokens.active(tech.ID))

	code, u = update(`{"vic_id":null}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, u.VICID)

	code, _ = update(`{"password":"another-pass"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, utils.VerifyPassword(f.users.rows[tech.ID].PasswordHash, "another-pass"))
	assert.Zero(t, f.tokens.active(tech.ID))

	code, _ = update(`{"email":"root@example.com"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = update(`{"password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	require.NoError(t, f.tokens.StoreRefresh(context.Background(), tech.ID, "h2", farFuture()))
	code, u = update(`{"active":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, u.Active)
	assert.Zero(t, f.tokens.active(tech.ID))
	assert.Eventually(t, func() bool { return f.events.has(queue.UserDeactivated) }, eventWait, tick)
}

func TestUserUpdateSelf(t *testing.T) {
	f := newUserFixture()
	update := func(body string) *httptest.ResponseRecorder {
		c, rec := newContext(t, request{method: http.MethodPatch, path: "/v1/admin/users/1", params: idParam(f.admin.ID), claims: claimsOf(f.admin), body: body})
		require.NoError(t, f.h.Update(c))
		return rec
	}

	rec := update(`{"active":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot deactivate or demote your own account", errorOf(t, rec))
	assert.True(t, f.users.rows[f.admin.ID].Active)

	rec = update(`{"role_id":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.RoleAdmin, f.users.rows[f.admin.ID].RoleID)

	rec = update(`{"name":"Root","active":true,"role_id":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Root", f.users.rows[f.admin.ID].Name)
	assert.False(t, f.events.has(queue.UserDeactivated))
}

func TestUserDelete(t *testing.T) {
	f := newUserFixture()
	soft := f.users.add("soft", model.RoleInspector, nil, "password123")
	hard := f.users.add("hard", model.RoleInspector, nil, "password123")
	require.NoError(t, f.tokens.StoreRefresh(context.Background(), soft.ID, "s", farFuture()))

	c, rec := newContext(t, request{method: http.MethodDelete, path: "/v1/admin/users/2", params: idParam(soft.ID), claims: claimsOf(f.admin)})
	require.NoError(t, f.h.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, f.users.rows, soft.ID)
	assert.False(t, f.users.rows[soft.ID].Active)
	assert.Zero(t, f.tokens.active(soft.ID))

	c, rec = newContext(t, request{method: http.MethodDelete, path: "/v1/admin/users/3?hard=true", params: idParam(hard.ID), claims: claimsOf(f.admin)})
	require.NoError(t, f.h.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, f.users.rows, hard.ID)

	c, rec = newContext(t, request{method: http.MethodDelete, path: "/v1/admin/users/1", params: idParam(f.admin.ID), claims: claimsOf(f.admin)})
	require.NoError(t, f.h.Delete(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot delete your own account", errorOf(t, rec))

	c, rec = newContext(t, request{method: http.MethodDelete, path: "/v1/admin/users/99", params: idParam(99), claims: claimsOf(f.admin)})
	require.NoError(t, f.h.Delete(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserListAndGet(t *testing.T) {
	f := newUserFixture()
	f.users.add("tech", model.RoleTechnician, vicPtr(10), "password123")
	off := f.users.add("off", model.RoleTechnician, nil, "password123")
	f.users.rows[off.ID].Active = false

	c, rec := newContext(t, request{method: http.MethodGet, path: "/v1/admin/users?role_id=1&active=true", claims: claimsOf(f.admin)})
	require.NoError(t, f.h.List(c))
	var body listBody[model.User]
	decode(t, rec, &body)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "tech", body.Items[0].Name)

	c, rec = newContext(t, request{method: http.MethodGet, path: "/v1/admin/users?role_id=300", claims: claimsOf(f.admin)})
	require.NoError(t, f.h.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newContext(t, request{method: http.MethodGet, path: "/v1/admin/users/1", params: idParam(f.admin.ID), claims: claimsOf(f.admin)})
	require.NoError(t, f.h.Get(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var u model.User
	decode(t, rec, &u)
	assert.Equal(t, "ADMIN", u.RoleName)
}
