package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"animehub/pkg/database/dbtest"
)

type authResp struct {
	Token string `json:"token"`
	User  struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

func newRouter(t *testing.T) (*gin.Engine, *Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := NewRepo(dbtest.Open(t))
	tokens := TokenService{Secret: []byte("test-secret"), Issuer: "animehub", Duration: time.Hour}
	h := NewHandler(repo, tokens, []string{"boss@example.com"})

	r := gin.New()
	h.RegisterRoutes(r.Group("/auth"))
	protected := r.Group("")
	protected.Use(AuthMiddleware(tokens, repo))
	h.RegisterUserRoutes(protected)
	protected.GET("/admin-only", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	admin := protected.Group("/admin")
	admin.Use(RequireAdmin())
	h.RegisterAdminRoutes(admin)
	return r, repo
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler, username, email string) authResp {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username": username, "email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out authResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegisterLoginAndMe(t *testing.T) {
	r, _ := newRouter(t)
	reg := register(t, r, "alice", "alice@example.com")
	require.Equal(t, RoleUser, reg.User.Role)

	w := doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"email": "ALICE@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var login authResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = doJSON(r, http.MethodGet, "/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"username":"alice"`)
	require.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, "alice", "alice@example.com")

	w := doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := newRouter(t)
	reg := register(t, r, "bob", "bob@example.com")

	w := doJSON(r, http.MethodPost, "/auth/logout", reg.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/users/me", reg.Token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoleFromConfiguredEmails(t *testing.T) {
	r, repo := newRouter(t)
	user := register(t, r, "carol", "carol@example.com")
	admin := register(t, r, "boss", "boss@example.com")
	require.Equal(t, RoleAdmin, admin.User.Role)

	w := doJSON(r, http.MethodGet, "/admin-only", user.Token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/admin-only", admin.Token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	ids, err := repo.ListUserIDs(t.Context())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{user.User.ID, admin.User.ID}, ids)
}

func TestTokenQueryParameterAccepted(t *testing.T) {
	r, _ := newRouter(t)
	reg := register(t, r, "dave", "dave@example.com")

	req := httptest.NewRequest(http.MethodGet, "/users/me?token="+reg.Token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSetsRole(t *testing.T) {
	r, _ := newRouter(t)
	boss := register(t, r, "boss", "boss@example.com")
	require.Equal(t, RoleAdmin, boss.User.Role)
	alice := register(t, r, "alice", "alice@example.com")

	w := doJSON(r, http.MethodGet, "/admin/users", alice.Token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/admin/users", boss.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"username":"alice"`)
	require.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPut, "/admin/users/"+alice.User.ID+"/role", boss.Token, gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodGet, "/users/me", alice.Token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code, "role change revokes old tokens")

	w = doJSON(r, http.MethodPut, "/admin/users/nobody/role", boss.Token, gin.H{"role": "admin"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPut, "/admin/users/"+alice.User.ID+"/role", boss.Token, gin.H{"role": "root"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginByUsernameAndValidation(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, "carol", "carol@example.com")

	w := doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"username": "carol", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"password": "password123"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "bad@name", "email": "bad@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "dave", "email": "dave@example.com", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
