package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/push"
	"github.com/staffhub/notifications/internal/repository"
	"github.com/staffhub/notifications/internal/service"
	"github.com/staffhub/notifications/internal/testutil"
)

const publisherKey = "publisher-test-key"

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *capturePublisher) Publish(event domain.DomainEvent) domain.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.ID = uuid.New()
	p.events = append(p.events, event)
	return event
}

type denyLimiter struct{}

func (denyLimiter) CheckAndIncrement(_ context.Context, _ domain.Receiver, limit int) (*service.RateLimitResult, error) {
	return &service.RateLimitResult{Allowed: false, Used: limit + 1, Limit: limit, RetryAfterSecs: 30}, nil
}

type testServer struct {
	handler   http.Handler
	store     *repository.NotificationRepository
	registry  *push.Registry
	publisher *capturePublisher
	auth      *service.AuthService
}

func newTestServer(t *testing.T, limiter *denyLimiter) *testServer {
	t.Helper()

	db := testutil.NewDB(t)
	store := repository.NewNotificationRepository(db)
	registry := push.NewRegistry(8, time.Second)
	t.Cleanup(registry.Close)

	hash, err := service.HashAPIKey(publisherKey)
	require.NoError(t, err)

	ts := &testServer{
		store:     store,
		registry:  registry,
		publisher: &capturePublisher{},
		auth:      service.NewAuthService("test-secret", hash),
	}

	deps := Dependencies{
		NotificationService: service.NewNotificationService(store, registry),
		AuthService:         ts.auth,
		RateLimitPerMinute:  10,
		Registry:            registry,
		Publisher:           ts.publisher,
		DB:                  db,
	}
	if limiter != nil {
		deps.RateLimiter = limiter
	}
	ts.handler = NewRouter(deps)
	return ts
}

func (ts *testServer) token(t *testing.T, receiver domain.Receiver) string {
	t.Helper()
	tok, err := ts.auth.GenerateToken(receiver, time.Hour)
	require.NoError(t, err)
	return tok.AccessToken
}

func (ts *testServer) seed(t *testing.T, receiver domain.Receiver, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := range n {
		e := domain.DomainEvent{Type: domain.EventTicketAssigned, TargetType: domain.TargetTicket, TargetID: string(rune('a' + i))}
		notification := domain.NewNotification(e, receiver, service.PerTargetKey(e, receiver), "Maria Manager", testutil.BaseTime.Add(time.Duration(i)*time.Second))
		require.NoError(t, ts.store.Create(context.Background(), notification, 0))
		ids = append(ids, notification.ID)
	}
	return ids
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/notifications", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ListNotifications(t *testing.T) {
	ts := newTestServer(t, nil)
	receiver := domain.Employee("7")
	ids := ts.seed(t, receiver, 3)
	ts.seed(t, domain.User("7"), 1)

	rec := ts.do(t, http.MethodGet, "/api/v1/notifications?limit=2", ts.token(t, receiver), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.NotificationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 3, resp.UnreadCount)
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, ids[2], resp.Notifications[0].ID)
	assert.Equal(t, "Maria Manager assigned you a ticket", resp.Notifications[0].Message)
	assert.Equal(t, domain.ReceiverEmployee, resp.Notifications[0].ReceiverType)
}

func TestRouter_ListValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.token(t, domain.Employee("7"))

	for _, query := range []string{"limit=0", "limit=101", "limit=abc", "offset=-1", "unreadOnly=maybe"} {
		rec := ts.do(t, http.MethodGet, "/api/v1/notifications?"+query, token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestRouter_MarkDeliveredAndSeen(t *testing.T) {
	ts := newTestServer(t, nil)
	receiver := domain.User("9")
	token := ts.token(t, receiver)
	ids := ts.seed(t, receiver, 3)

	rec := ts.do(t, http.MethodPost, "/api/v1/notifications/mark-delivered", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/mark-delivered", token, `{"notificationIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/mark-delivered", token, `{"notificationIds":[0]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(domain.MarkNotificationsRequest{NotificationIDs: ids[:2]})
	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/mark-delivered", token, string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":2}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":1}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/mark-seen", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":3}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", token, "")
	assert.JSONEq(t, `{"unreadCount":0}`, rec.Body.String())
}

func TestRouter_RateLimited(t *testing.T) {
	ts := newTestServer(t, &denyLimiter{})

	rec := ts.do(t, http.MethodGet, "/api/v1/notifications", ts.token(t, domain.User("9")), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRouter_PublishEvent(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"type":"TICKET_ASSIGNED","actorId":"3","targetId":"5","targetType":"ticket","metadata":{"assigneeId":7}}`

	rec := ts.do(t, http.MethodPost, "/api/v1/events", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	publish := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, publish("wrong", body).Code)
	assert.Equal(t, http.StatusBadRequest, publish(publisherKey, `{"targetId":"5","targetType":"ticket"}`).Code)
	assert.Equal(t, http.StatusBadRequest, publish(publisherKey, `not json`).Code)

	rec = publish(publisherKey, body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id"`)

	ts.publisher.mu.Lock()
	defer ts.publisher.mu.Unlock()
	require.Len(t, ts.publisher.events, 1)
	assert.Equal(t, domain.EventTicketAssigned, ts.publisher.events[0].Type)
	assert.Equal(t, "7", ts.publisher.events[0].MetaString(domain.MetaAssigneeID))
}

func TestRouter_Stream(t *testing.T) {
	ts := newTestServer(t, nil)
	receiver := domain.User("9")
	ts.seed(t, receiver, 2)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/stream?token=" + ts.token(t, receiver)

	tab1, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer tab1.Close()
	tab2, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer tab2.Close()

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		var hello domain.PushMessage
		require.NoError(t, conn.ReadJSON(&hello))
		assert.Equal(t, domain.PushUnreadCount, hello.Kind)
		require.NotNil(t, hello.UnreadCount)
		assert.Equal(t, 2, *hello.UnreadCount)
	}

	require.Eventually(t, func() bool { return ts.registry.ConnectionsFor(receiver) == 2 }, time.Second, 5*time.Millisecond)

	n := ts.registry.Notify(receiver, domain.PushMessage{Kind: domain.PushNotification, Message: "ping"})
	assert.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg domain.PushMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "ping", msg.Message)
	}

	tab1.Close()
	assert.Eventually(t, func() bool { return ts.registry.ConnectionsFor(receiver) == 1 }, 2*time.Second, 10*time.Millisecond)
}
