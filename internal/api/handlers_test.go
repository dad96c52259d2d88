package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/spksound/syncroom/internal/clock"
	"github.com/spksound/syncroom/internal/config"
	"github.com/spksound/syncroom/internal/server"
	"github.com/spksound/syncroom/internal/stats"
	"github.com/spksound/syncroom/internal/store"
	"github.com/spksound/syncroom/internal/testutil"
	"github.com/spksound/syncroom/internal/transcode"
	"github.com/spksound/syncroom/internal/types"
)

func newTestApp(t *testing.T, st store.RoomStore) *SyncRoomApp {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(5)

	logger := testutil.TestLogger(t)
	clk := clock.NewClock(clock.LocalSource{}, time.Minute, logger)
	rs, err := server.NewRoomServer(logger, st, clk, transcode.PassthroughTranscoder{}, su, config.DefaultSpatial())
	if err != nil {
		t.Fatalf("failed to create test RoomServer: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		Spatial:        config.DefaultSpatial(),
	}

	return NewSyncRoomApp(http.NewServeMux(), logger, rs, st, cfg)
}

func TestNewSyncRoomApp(t *testing.T) {
	app := newTestApp(t, store.NewMemoryRoomStore())

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.NotNil(t, app.log, "expected logger to be set")
	assert.NotNil(t, app.rs, "expected room server to be set")
	assert.NotNil(t, app.st, "expected store to be set")
	assert.Equal(t, "localhost:8080", app.mux.Addr, "expected server address to match config")
}

func Test_createRoom(t *testing.T) {
	t.Run("creates a room", func(t *testing.T) {
		st := store.NewMemoryRoomStore()
		app := newTestApp(t, st)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var body map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		roomId, ok := body["room_id"].(string)
		assert.True(t, ok, "expected a room_id in the response")
		assert.NotEmpty(t, roomId)

		_, err := st.Get(req.Context(), roomId)
		assert.NoError(t, err, "expected the room persisted")
	})

	t.Run("fails when the store is unreachable", func(t *testing.T) {
		st := &store.MockRoomStore{}
		st.On("Exists", mock.Anything, mock.Anything).Return(false, assert.AnError)
		app := newTestApp(t, st)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
	})
}

func Test_getRoom(t *testing.T) {
	tcases := []struct {
		name         string
		query        string
		seed         *types.Room
		expectedCode int
	}{
		{
			name:         "returns an existing room",
			query:        "?id=r1",
			seed:         &types.Room{Id: "r1"},
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing id is a bad request",
			query:        "",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown id is not found",
			query:        "?id=missing",
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemoryRoomStore()
			if tc.seed != nil {
				assert.NoError(t, st.Set(context.Background(), tc.seed))
			}
			app := newTestApp(t, st)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/rooms"+tc.query, nil)
			app.getRoom(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to be %d", tc.expectedCode)

			if tc.expectedCode == http.StatusOK {
				var room types.Room
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
				assert.Equal(t, tc.seed.Id, room.Id, "expected the seeded room returned")
			}
		})
	}
}

func Test_timeExchange(t *testing.T) {
	t.Run("returns a bracketing triple", func(t *testing.T) {
		app := newTestApp(t, store.NewMemoryRoomStore())

		t0 := time.Now().UnixMilli()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/time?t0="+strconv.FormatInt(t0, 10), nil)
		app.timeExchange(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var body map[string]int64
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, t0, body["t0"], "expected t0 echoed back")
		assert.LessOrEqual(t, body["t1"], body["t2"], "expected t1 to precede t2")
		assert.InDelta(t, time.Now().UnixMilli(), body["t1"], float64(time.Second.Milliseconds()),
			"expected t1 near the server's current time")
	})

	t.Run("missing t0 is a bad request", func(t *testing.T) {
		app := newTestApp(t, store.NewMemoryRoomStore())

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/time", nil)
		app.timeExchange(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func Test_health(t *testing.T) {
	tcases := []struct {
		name         string
		pingErr      error
		expectedCode int
	}{
		{
			name:         "healthy",
			pingErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "store unreachable",
			pingErr:      assert.AnError,
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			st := &store.MockRoomStore{}
			defer st.AssertExpectations(t)
			st.On("Ping", mock.Anything).Return(tc.pingErr).Once()

			app := newTestApp(t, st)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			app.health(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to be %d", tc.expectedCode)

			if tc.pingErr == nil {
				var body map[string]any
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, "ok", body["status"])
			}
		})
	}
}
