package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/realty/internal/api"
	"greendrake/realty/internal/config"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/services"
	"greendrake/realty/internal/utils"
)

// --- Mocks ---

type MockExpiryService struct {
	mock.Mock
}

func (m *MockExpiryService) ExpireReservations(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- Helpers ---

func callServiceAPI(t *testing.T, r *gin.Engine, method string, arguments interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	body := map[string]interface{}{"method": method}
	if arguments != nil {
		body["arguments"] = arguments
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func newTestRouter(rdb *redis.Client, expiry services.IExpiryService) (*gin.Engine, chan struct{}) {
	gin.SetMode(gin.TestMode)
	shutdownChan := make(chan struct{}, 1)
	return api.SetupServiceRouter(config.Default(), rdb, expiry, shutdownChan), shutdownChan
}

// --- Tests ---

func TestServiceAPI_Ping(t *testing.T) {
	r, _ := newTestRouter(nil, new(MockExpiryService))
	w, resp := callServiceAPI(t, r, "ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", resp["result"])
}

func TestServiceAPI_Shutdown(t *testing.T) {
	r, shutdownChan := newTestRouter(nil, new(MockExpiryService))
	w, resp := callServiceAPI(t, r, "shutdown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Len(t, shutdownChan, 1)

	// A second request must not block on the full channel.
	w, _ = callServiceAPI(t, r, "shutdown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, shutdownChan, 1)
}

func TestServiceAPI_ExpireReservations(t *testing.T) {
	mockExpiry := new(MockExpiryService)
	mockExpiry.On("ExpireReservations", mock.Anything).Return(3, nil).Once()
	r, _ := newTestRouter(nil, mockExpiry)

	w, resp := callServiceAPI(t, r, "expireReservations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), result["released"])
	mockExpiry.AssertExpectations(t)
}

func TestServiceAPI_ExpireReservations_StorageUnavailable(t *testing.T) {
	mockExpiry := new(MockExpiryService)
	sweepErr := fmt.Errorf("sweep: %w", services.ErrStorageUnavailable)
	mockExpiry.On("ExpireReservations", mock.Anything).Return(1, sweepErr).Once()
	r, _ := newTestRouter(nil, mockExpiry)

	w, resp := callServiceAPI(t, r, "expireReservations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, resp["success"])
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), result["released"])
}

func TestServiceAPI_UnknownMethod(t *testing.T) {
	r, _ := newTestRouter(nil, new(MockExpiryService))
	w, resp := callServiceAPI(t, r, "dropDatabase", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, resp["error"], "Unknown service method")
}

func TestServiceAPI_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(nil, new(MockExpiryService))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api", bytes.NewBufferString("{not json"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceAPI_GetTestNotification_NoRedis(t *testing.T) {
	r, _ := newTestRouter(nil, new(MockExpiryService))
	w, _ := callServiceAPI(t, r, "getTestNotification", []string{notify.RoomAdmin, string(notify.KindInquiryAssigned)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServiceAPI_GetTestNotification_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis-backed service API test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	agentID := utils.NewSixID()
	ev := notify.NewEvent(notify.KindInquiryAssigned, map[string]string{"inquiry_id": "x"}, &agentID)
	require.NoError(t, notify.NewRedisMockSink(rdb).Publish(context.Background(), ev))

	r, _ := newTestRouter(rdb, new(MockExpiryService))
	w, resp := callServiceAPI(t, r, "getTestNotification", []string{notify.AgentRoom(agentID), string(notify.KindInquiryAssigned)})
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, ev.ID, data["id"])

	// The key is consumed on read.
	n, err := rdb.Exists(context.Background(), notify.MockKey(notify.AgentRoom(agentID), notify.KindInquiryAssigned)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceAPI_GetTestNotification_BadArguments(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis-backed service API test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	r, _ := newTestRouter(rdb, new(MockExpiryService))
	w, _ := callServiceAPI(t, r, "getTestNotification", []string{"admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
