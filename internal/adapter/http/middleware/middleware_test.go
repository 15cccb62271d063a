package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/internal/core/ports/mocks"
	"trustbridge/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	log := zerolog.Nop()

	newRouter := func(tokenSvc ports.TokenService, userSvc ports.UserService) *gin.Engine {
		r := gin.New()
		r.GET("/protected", JWTAuth(tokenSvc, userSvc, log), func(c *gin.Context) {
			user := c.MustGet(CtxUserKey).(*domain.User)
			c.JSON(http.StatusOK, gin.H{"user_id": user.ID.String()})
		})
		return r
	}

	t.Run("missing header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		r := newRouter(mocks.NewMockTokenService(ctrl), mocks.NewMockUserService(ctrl))
		w := performRequest(r, http.MethodGet, "/protected", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		r := newRouter(mocks.NewMockTokenService(ctrl), mocks.NewMockUserService(ctrl))
		w := performRequest(r, http.MethodGet, "/protected", map[string]string{"Authorization": "Token abc"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tokenSvc := mocks.NewMockTokenService(ctrl)
		tokenSvc.EXPECT().Validate("bad-token").Return(nil, errors.New("token is expired"))

		r := newRouter(tokenSvc, mocks.NewMockUserService(ctrl))
		w := performRequest(r, http.MethodGet, "/protected", map[string]string{"Authorization": "Bearer bad-token"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_001")
	})

	t.Run("valid token projects user", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		claims := &ports.TokenClaims{Subject: "firebase-uid-1", Role: domain.RoleBuyer}
		user := &domain.User{ID: uuid.New(), Role: domain.RoleBuyer, IsActive: true}

		tokenSvc := mocks.NewMockTokenService(ctrl)
		tokenSvc.EXPECT().Validate("good-token").Return(claims, nil)
		userSvc := mocks.NewMockUserService(ctrl)
		userSvc.EXPECT().GetOrCreate(gomock.Any(), *claims).Return(user, nil)

		r := newRouter(tokenSvc, userSvc)
		w := performRequest(r, http.MethodGet, "/protected", map[string]string{"Authorization": "Bearer good-token"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), user.ID.String())
	})

	t.Run("inactive user rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		claims := &ports.TokenClaims{Subject: "firebase-uid-2", Role: domain.RoleBuyer}

		tokenSvc := mocks.NewMockTokenService(ctrl)
		tokenSvc.EXPECT().Validate("good-token").Return(claims, nil)
		userSvc := mocks.NewMockUserService(ctrl)
		userSvc.EXPECT().GetOrCreate(gomock.Any(), *claims).Return(nil, apperror.ErrUserInactive())

		r := newRouter(tokenSvc, userSvc)
		w := performRequest(r, http.MethodGet, "/protected", map[string]string{"Authorization": "Bearer good-token"})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_003")
	})
}

func TestRequireAdmin(t *testing.T) {
	newRouter := func(user *domain.User) *gin.Engine {
		r := gin.New()
		r.GET("/admin",
			func(c *gin.Context) {
				if user != nil {
					c.Set(CtxUserKey, user)
				}
				c.Next()
			},
			RequireAdmin(),
			func(c *gin.Context) { c.Status(http.StatusOK) },
		)
		return r
	}

	t.Run("admin passes", func(t *testing.T) {
		r := newRouter(&domain.User{ID: uuid.New(), Role: domain.RoleAdmin})
		w := performRequest(r, http.MethodGet, "/admin", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("buyer rejected", func(t *testing.T) {
		r := newRouter(&domain.User{ID: uuid.New(), Role: domain.RoleBuyer})
		w := performRequest(r, http.MethodGet, "/admin", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_002")
	})

	t.Run("no user rejected", func(t *testing.T) {
		r := newRouter(nil)
		w := performRequest(r, http.MethodGet, "/admin", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestMaxBodySize(t *testing.T) {
	r := gin.New()
	r.POST("/echo", MaxBodySize(32), func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("small body passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		big := `{"a":"` + strings.Repeat("x", 64) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(big))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := performRequest(r, http.MethodGet, "/panic", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SYS_000")
}
