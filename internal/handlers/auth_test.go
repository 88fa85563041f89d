package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(42, models.RoleAdmin)
	require.NoError(t, err)

	id, role, err := parseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, models.RoleAdmin, role)

	_, _, err = parseToken(token + "x")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	mock := setupDB(t)
	mock.ExpectQuery(`SELECT count(*) FROM "users" WHERE email = $1`).
		WithArgs("dana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	w := serve(newRouter(), jsonRequest("POST", "/api/auth/register",
		`{"email":"Dana@Example.com","password":"secret1","firstName":"Dana","lastName":"Levi"}`))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "dana@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, w.Body.String(), "secret1")

	id, role, err := parseToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)
	assert.Equal(t, models.RoleUser, role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	mock := setupDB(t)
	mock.ExpectQuery(`SELECT count(*) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := serve(newRouter(), jsonRequest("POST", "/api/auth/register",
		`{"email":"dana@example.com","password":"secret1","firstName":"Dana","lastName":"Levi"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterValidation(t *testing.T) {
	mock := setupDB(t)
	r := newRouter()

	w := serve(r, jsonRequest("POST", "/api/auth/register", `{"email":"dana@example.com","password":"123","firstName":"D","lastName":"L"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, jsonRequest("POST", "/api/auth/register", `{"email":"not-an-email","password":"secret1","firstName":"D","lastName":"L"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, jsonRequest("POST", "/api/auth/register", `{"email":"dana@example.com"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	mock := setupDB(t)
	mock.ExpectQuery(`SELECT * FROM "users" WHERE email = $1`).
		WithArgs("dana@example.com").
		WillReturnRows(userRows(3, "dana@example.com", string(hash), models.RoleAdmin))

	w := serve(newRouter(), jsonRequest("POST", "/api/auth/login", `{"email":"dana@example.com","password":"secret1"}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, role, err := parseToken(decodeBody(t, w)["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, uint(3), id)
	assert.Equal(t, models.RoleAdmin, role)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	mock := setupDB(t)
	mock.ExpectQuery(`FROM "users"`).
		WillReturnRows(userRows(3, "dana@example.com", string(hash), models.RoleUser))

	w := serve(newRouter(), jsonRequest("POST", "/api/auth/login", `{"email":"dana@example.com","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeBody(t, w)["error"])
}

func TestLoginUnknownUser(t *testing.T) {
	mock := setupDB(t)
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows(userColumns))

	w := serve(newRouter(), jsonRequest("POST", "/api/auth/login", `{"email":"ghost@example.com","password":"secret1"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	w := serve(r, httptest.NewRequest("GET", "/api/violations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authorized, no token", decodeBody(t, w)["error"])

	req := httptest.NewRequest("GET", "/api/violations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authorized, token failed", decodeBody(t, w)["error"])
}

func TestAdminOnly(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest("GET", "/api/violations/analytics", nil)
	req.Header.Set("Authorization", bearer(t, 7, models.RoleUser))
	w := serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authorized as an admin", decodeBody(t, w)["error"])

	req = httptest.NewRequest("DELETE", "/api/violations/1", nil)
	req.Header.Set("Authorization", bearer(t, 7, models.RoleUser))
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
}

func TestTokenFromQueryParameter(t *testing.T) {
	token, err := IssueToken(1, models.RoleAdmin)
	require.NoError(t, err)

	w := serve(newRouter(), httptest.NewRequest("GET", "/api/feeds/stats?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["enabled"])
}

func TestGetMe(t *testing.T) {
	mock := setupDB(t)
	mock.ExpectQuery(`SELECT * FROM "users" WHERE "users"."id" = $1`).
		WithArgs(9).
		WillReturnRows(userRows(9, "dana@example.com", "hash", models.RoleUser))

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", bearer(t, 9, models.RoleUser))
	w := serve(newRouter(), req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "dana@example.com", data["email"])
	assert.NotContains(t, w.Body.String(), "hash")
}

func TestSecretSetAfterStartupIsUsed(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-dotenv")
	assert.False(t, UsingDevSecret())

	token, err := IssueToken(1, models.RoleAdmin)
	require.NoError(t, err)

	_, err = jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte("from-dotenv"), nil })
	assert.NoError(t, err, "signed with the configured secret")
	_, err = jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte(devJWTSecret), nil })
	assert.Error(t, err, "not signed with the development key")

	id, role, err := parseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, models.RoleAdmin, role)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}).SignedString([]byte(devJWTSecret))
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/api/violations/analytics", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, serve(newRouter(), req).Code)
}
