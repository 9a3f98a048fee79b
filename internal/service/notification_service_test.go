package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
)

func TestNotificationService_WebhookDelivery(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		received <- decoded
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{WebhookURL: srv.URL})
	svc.RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.NewEvent(events.EventUserCreated, "user-1",
		events.UserCreatedPayload{Email: "a@example.com"}))
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.Equal(t, "user_created", body["type"])
		assert.Equal(t, "user-1", body["user_id"])
		assert.NotContains(t, body, "payload")
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestNotificationService_WebhookFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{WebhookURL: srv.URL}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.NewEvent(events.EventPasswordChanged, "user-1",
		events.PasswordChangedPayload{Email: "a@example.com", Reason: "change"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotificationService_ResetTokenNeverLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "noreply@example.com"}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.NewEvent(events.EventPasswordResetRequested, "user-1",
		events.PasswordResetRequestedPayload{Email: "a@example.com", ResetToken: "secret-envelope", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, err)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "secret-envelope")
		for _, field := range entry.Context {
			assert.NotEqual(t, "secret-envelope", field.String)
		}
	}
	assert.Equal(t, 1, logs.FilterMessage("sendEmailNotificationStub").Len())
}

func TestNotificationService_RejectsForeignPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil, config.NotificationConfig{}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventUserCreated, Payload: "oops"})
	assert.Error(t, err)
}
