package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
	"github.com/sflow/user-access/internal/core/service"
	"github.com/sflow/user-access/internal/infrastructure/db/memory"
	"github.com/sflow/user-access/internal/infrastructure/http/handlers"
)

// fakeProvider accepts "token-<subject>" and records upstream deletions.
type fakeProvider struct {
	mu        sync.Mutex
	deleted   []string
	deleteErr error
}

func (p *fakeProvider) VerifyToken(_ context.Context, token string) (string, error) {
	subject, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", domain.ErrAuthInvalid
	}
	return subject, nil
}

func (p *fakeProvider) DeleteUser(_ context.Context, subjectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, subjectID)
	return p.deleteErr
}

type recordingQueue struct {
	tasks []ports.DeletionTask
}

func (q *recordingQueue) Enqueue(task ports.DeletionTask) error {
	q.tasks = append(q.tasks, task)
	return nil
}

type testServer struct {
	e        *echo.Echo
	repo     *memory.UserRepository
	provider *fakeProvider
	queue    *recordingQueue

	admin, user, mod *domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewUserRepository()

	seed := func(email string, role domain.Role) *domain.User {
		u, err := repo.Create(ctx, &domain.User{
			Email:             email,
			Username:          strings.Split(email, "@")[0],
			ExternalSubjectID: "kc-" + email,
			Role:              role,
			CreatedAt:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		return u
	}

	ts := &testServer{repo: repo, provider: &fakeProvider{}, queue: &recordingQueue{}}
	ts.admin = seed("admin@x", domain.RoleAdmin)
	ts.user = seed("user@x", domain.RoleUser)
	ts.mod = seed("mod@x", domain.RoleModerator)

	log := zerolog.Nop()
	ts.e = NewRouter(Dependencies{
		Authenticator: service.NewAuthService(ts.provider, repo, log),
		Users:         service.NewUserService(repo, ts.provider, ts.queue, time.Second, log),
		Readiness:     map[string]handlers.Pinger{"store": repo},
		Logger:        log,
	})
	return ts
}

func (ts *testServer) do(method, path string, actor *domain.User) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if actor != nil {
		req.Header.Set(echo.HeaderAuthorization, "Bearer token-"+actor.ExternalSubjectID)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func userPath(id int64) string {
	return "/api/v1/users/" + strconv.FormatInt(id, 10)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, rec.Code, body.Status)
	assert.Equal(t, http.StatusText(rec.Code), body.Error)
	assert.NotEmpty(t, body.Path)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
	return body
}

func TestRouter_GetUser_AllRoles(t *testing.T) {
	ts := newTestServer(t)

	for _, actor := range []*domain.User{ts.admin, ts.user, ts.mod} {
		rec := ts.do(http.MethodGet, userPath(ts.user.ID), actor)
		require.Equal(t, http.StatusOK, rec.Code, "actor %s", actor.Role)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, ts.user.ID, body["id"])
		assert.Equal(t, "user@x", body["email"])
		assert.Equal(t, "user", body["username"])
		assert.Equal(t, "USER", body["role"])
		assert.Equal(t, "2024-01-01T12:00:00Z", body["createdAt"])
		assert.NotContains(t, body, "externalSubjectId")
	}
}

func TestRouter_GetUser_Idempotent(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(http.MethodGet, userPath(ts.mod.ID), ts.user)
	second := ts.do(http.MethodGet, userPath(ts.mod.ID), ts.user)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestRouter_GetUser_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, userPath(999), ts.admin)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "User not found", body.Message)
	assert.Equal(t, "/api/v1/users/999", body.Path)
}

func TestRouter_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	requests := []struct{ method, path string }{
		{http.MethodGet, userPath(ts.user.ID)},
		{http.MethodGet, userPath(999)},
		{http.MethodGet, "/api/v1/users/role/USER"},
		{http.MethodDelete, userPath(ts.user.ID)},
		{http.MethodDelete, userPath(999)},
		{http.MethodGet, "/api/v1/users/not-a-number"},
	}
	for _, r := range requests {
		rec := ts.do(r.method, r.path, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
		assert.Equal(t, "Authentication required", decodeEnvelope(t, rec).Message)
	}
}

func TestRouter_AuthFailuresLookIdentical(t *testing.T) {
	ts := newTestServer(t)
	headers := []string{"", "Basic abc", "Bearer garbage", "Bearer token-kc-nobody@x"}

	var bodies []string
	for _, h := range headers {
		req := httptest.NewRequest(http.MethodGet, userPath(ts.user.ID), nil)
		if h != "" {
			req.Header.Set(echo.HeaderAuthorization, h)
		}
		rec := httptest.NewRecorder()
		ts.e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", h)
		body := decodeEnvelope(t, rec)
		bodies = append(bodies, body.Error+"|"+body.Message+"|"+body.Path)
	}
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestRouter_ListByRole(t *testing.T) {
	ts := newTestServer(t)
	extra, err := ts.repo.Create(context.Background(), &domain.User{Email: "user2@x", Username: "user2", ExternalSubjectID: "kc-user2@x", Role: domain.RoleUser})
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/v1/users/role/USER", ts.mod)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.EqualValues(t, ts.user.ID, users[0]["id"])
	assert.EqualValues(t, extra.ID, users[1]["id"])
	for _, u := range users {
		assert.Equal(t, "USER", u["role"])
	}
}

func TestRouter_ListByRole_EmptyArray(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.repo.DeleteByID(context.Background(), ts.mod.ID))

	rec := ts.do(http.MethodGet, "/api/v1/users/role/MODERATOR", ts.user)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRouter_ListByRole_InvalidRole(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/users/role/ROOT", ts.admin)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Message, "ADMIN, MODERATOR, USER")
}

func TestRouter_InvalidUserID(t *testing.T) {
	ts := newTestServer(t)

	for _, raw := range []string{"abc", "0", "-5"} {
		rec := ts.do(http.MethodGet, "/api/v1/users/"+raw, ts.admin)
		require.Equal(t, http.StatusBadRequest, rec.Code, "id %q", raw)
		assert.Equal(t, "Invalid user id", decodeEnvelope(t, rec).Message)
	}
}

func TestRouter_Delete_NonAdminForbiddenEvenIfMissing(t *testing.T) {
	ts := newTestServer(t)

	for _, actor := range []*domain.User{ts.user, ts.mod} {
		for _, path := range []string{userPath(ts.user.ID), userPath(999), "/api/v1/users/abc"} {
			rec := ts.do(http.MethodDelete, path, actor)
			require.Equal(t, http.StatusForbidden, rec.Code, "%s DELETE %s", actor.Role, path)
			assert.Equal(t, "Access denied", decodeEnvelope(t, rec).Message)
		}
	}
	exists, _ := ts.repo.ExistsByID(context.Background(), ts.user.ID)
	assert.True(t, exists)
}

func TestRouter_Delete_AdminTargetProtected(t *testing.T) {
	ts := newTestServer(t)
	other, err := ts.repo.Create(context.Background(), &domain.User{Email: "admin2@x", Username: "admin2", ExternalSubjectID: "kc-admin2@x", Role: domain.RoleAdmin})
	require.NoError(t, err)

	for _, id := range []int64{ts.admin.ID, other.ID} {
		rec := ts.do(http.MethodDelete, userPath(id), ts.admin)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Cannot delete admin user", decodeEnvelope(t, rec).Message)
	}
	assert.Empty(t, ts.provider.deleted)
}

func TestRouter_Delete_NotFoundMentionsID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, userPath(4242), ts.admin)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Message, "4242")
}

func TestRouter_Delete_Success(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, userPath(ts.mod.ID), ts.admin)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	exists, _ := ts.repo.ExistsByID(context.Background(), ts.mod.ID)
	assert.False(t, exists)
	assert.Equal(t, []string{ts.mod.ExternalSubjectID}, ts.provider.deleted)

	again := ts.do(http.MethodDelete, userPath(ts.mod.ID), ts.admin)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestRouter_Delete_UpstreamFailureStillSucceeds(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.deleteErr = errors.Join(domain.ErrIdentityProviderUnavailable, errors.New("timeout"))

	rec := ts.do(http.MethodDelete, userPath(ts.user.ID), ts.admin)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, ts.queue.tasks, 1)
	assert.Equal(t, ts.user.ExternalSubjectID, ts.queue.tasks[0].SubjectID)
}

// Seed scenario: admin deletes user, admin self-delete refused, moderator
// refused on the deleted id, anonymous GET refused.
func TestRouter_SeedScenario(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, userPath(ts.user.ID), ts.admin)
	require.Equal(t, http.StatusNoContent, rec.Code)
	exists, err := ts.repo.ExistsByID(context.Background(), ts.user.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	rec = ts.do(http.MethodDelete, userPath(ts.admin.ID), ts.admin)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Cannot delete admin user", decodeEnvelope(t, rec).Message)

	rec = ts.do(http.MethodDelete, userPath(ts.user.ID), ts.mod)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied", decodeEnvelope(t, rec).Message)

	rec = ts.do(http.MethodGet, userPath(ts.mod.ID), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decodeEnvelope(t, rec).Message)
}

func TestRouter_DeletedActorLosesAccess(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, userPath(ts.mod.ID), ts.admin).Code)

	rec := ts.do(http.MethodGet, userPath(ts.admin.ID), ts.mod)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/ready", nil).Code)

	// Generate at least one decision so the counter is exported.
	ts.do(http.MethodGet, userPath(ts.user.ID), ts.user)
	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "useraccess_access_decisions_total")
}
