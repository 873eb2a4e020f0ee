package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codehub_backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidationError("answers", "duplicate question %d", 3), http.StatusBadRequest},
		{fmt.Errorf("start: %w", ErrAttemptLimitExceeded), http.StatusBadRequest},
		{ErrAttemptAlreadyCompleted, http.StatusConflict},
		{NotFoundf("quiz %d", 1), http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("llm: %w", ErrExternalService), http.StatusBadGateway},
		{fmt.Errorf("mentor: %w", ErrRateLimited), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("question_id", "required")
	assert.Equal(t, "question_id: required", err.Error())
	assert.True(t, IsValidationError(fmt.Errorf("wrap: %w", err)))
	assert.False(t, IsValidationError(ErrNotFound))
}

func TestHandleErrorWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, ErrAttemptAlreadyCompleted)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "attempt already completed")
}

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Name: "alice", Email: "a@example.com", Role: model.Student}
	user.ID = 7

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, "7", claims.Subject)

	_, err = ParseJWT(token, "other")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	expired, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}
