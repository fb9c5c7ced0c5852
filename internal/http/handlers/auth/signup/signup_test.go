package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kosttiik/subscription-notifier/internal/models"
	userservice "github.com/kosttiik/subscription-notifier/internal/services/user"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) Register(ctx context.Context, email, rawPassword string) (*models.User, error) {
	args := m.Called(ctx, email, rawPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *ServiceMock) ResolvePlan(ctx context.Context, email string) (models.Plan, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.Plan), args.Error(1)
}

type IssuerMock struct{ mock.Mock }

func (m *IssuerMock) IssueSession(user *models.User, plan models.Plan) (string, error) {
	args := m.Called(user, plan)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestSignupHandler_ServeHTTP(t *testing.T) {
	usr := &models.User{UID: "uid-1", Email: "user@example.com"}

	tests := []struct {
		name           string
		requestBody    any
		mockUser       *models.User
		mockErr        error
		wantStatusCode int
		wantSuccess    bool
	}{
		{
			name:           "valid signup",
			requestBody:    Request{Email: "user@example.com", Password: "secret-password"},
			mockUser:       usr,
			wantStatusCode: http.StatusOK,
			wantSuccess:    true,
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantSuccess:    false,
		},
		{
			name:           "validation error - short password",
			requestBody:    Request{Email: "user@example.com", Password: "short"},
			wantStatusCode: http.StatusBadRequest,
			wantSuccess:    false,
		},
		{
			name:           "duplicate email",
			requestBody:    Request{Email: "user@example.com", Password: "secret-password"},
			mockErr:        userservice.ErrUserExists,
			wantStatusCode: http.StatusBadRequest,
			wantSuccess:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcMock := new(ServiceMock)
			issuerMock := new(IssuerMock)
			if tt.mockUser != nil || tt.mockErr != nil {
				svcMock.On("Register", mock.Anything, "user@example.com", "secret-password").
					Return(tt.mockUser, tt.mockErr).Once()
			}
			if tt.wantSuccess {
				svcMock.On("ResolvePlan", mock.Anything, "user@example.com").
					Return(models.DefaultPlan(), nil).Once()
				issuerMock.On("IssueSession", tt.mockUser, models.DefaultPlan()).
					Return("session-token", nil).Once()
			}
			handler := New(newNoopLogger(), svcMock, issuerMock)

			body, err := json.Marshal(tt.requestBody)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSuccess, resp["success"])
			if tt.wantSuccess {
				assert.Equal(t, "session-token", resp["token"])
				plan := resp["plan"].(map[string]any)
				assert.Equal(t, models.PlanFree, plan["plan"])
				assert.Equal(t, models.PlanStatusInactive, plan["plan_status"])
			}
		})
	}
}
