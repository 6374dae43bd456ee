package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

func newAuthRouter(v TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/lots", JWT(v), RequireRoles(roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": Claims(c).UserID})
	})
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := newAuthRouter(&stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleFarmer}}, models.RoleFarmer)

	for _, header := range []string{"", "Token abc", "Bearer"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/lots", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, w))
	}
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	v := &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}
	r := newAuthRouter(v, models.RoleFarmer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/lots", nil)
	req.Header.Set("Authorization", "Bearer  abc.def ")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "abc.def", v.seen)
}

func TestRBACAllowsListedRoleAndAdmin(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleLabTechnician, models.RoleAdmin} {
		r := newAuthRouter(&stubValidator{claims: &models.JWTClaims{UserID: "u-" + string(role), Role: role}}, models.RoleLabTechnician)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/lots", nil)
		req.Header.Set("Authorization", "Bearer ok")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, role)
		assert.Contains(t, w.Body.String(), "u-"+string(role))
	}
}

func TestRBACRejectsOtherRoles(t *testing.T) {
	r := newAuthRouter(&stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleFarmer}}, models.RoleSupplyManager)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/lots", nil)
	req.Header.Set("Authorization", "Bearer ok")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))
}

func TestRBACWithoutClaimsIsUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/lots", RequireRoles(models.RoleFarmer), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lots", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimsIgnoresForeignValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, Claims(c))

	c.Set(ContextUserKey, errors.New("not claims"))
	assert.Nil(t, Claims(c))
}
