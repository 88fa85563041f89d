package handlers

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/gin-gonic/gin"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	log.SetHandler(discard.New())
}

// sqlFragments matches when the query contains every " && "-separated
// fragment and none of the fragments prefixed with "NOT ".
var sqlFragments = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	for _, part := range strings.Split(expected, " && ") {
		if absent := strings.TrimPrefix(part, "NOT "); absent != part {
			if strings.Contains(actual, absent) {
				return fmt.Errorf("query %q unexpectedly contains %q", actual, absent)
			}
			continue
		}
		if !strings.Contains(actual, part) {
			return fmt.Errorf("query %q does not contain %q", actual, part)
		}
	}
	return nil
})

func setupDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlFragments))
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		sqlDB.Close()
	})
	return mock
}

func newRouter() *gin.Engine {
	r := gin.New()
	RegisterRoutes(r)
	return r
}

func bearer(t *testing.T, userID uint, role models.Role) string {
	t.Helper()
	token, err := IssueToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var (
	fixedTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	violationColumns = []string{
		"id", "user_id", "violation_type", "license_plate", "media_url",
		"longitude", "latitude", "address", "status", "timestamp", "created_at", "updated_at",
	}
	userColumns = []string{
		"id", "email", "first_name", "last_name", "phone_number", "password_hash", "role", "created_at", "updated_at",
	}
)

func violationRows() *sqlmock.Rows {
	return sqlmock.NewRows(violationColumns)
}

func addViolation(rows *sqlmock.Rows, id int64, userID uint) *sqlmock.Rows {
	return rows.AddRow(id, int64(userID), "RedLightViolation", "ABC123", "http://example.com/uploads/x.jpg",
		34.78, 32.08, "Dizengoff 50, Tel Aviv", "PendingReview", fixedTime, fixedTime, fixedTime)
}

func userRows(id uint, email string, hash string, role models.Role) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).
		AddRow(int64(id), email, "Dana", "Levi", "050-0000000", hash, string(role), fixedTime, fixedTime)
}

// timeArg matches a time.Time query argument exactly.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}
