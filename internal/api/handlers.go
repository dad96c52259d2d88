package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spksound/syncroom/internal/server"
	"github.com/spksound/syncroom/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *SyncRoomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *SyncRoomApp) createRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rs.CreateRoom(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]any{
		"room_id":    room.Id,
		"created_at": room.CreatedAt,
	})
}

func (s *SyncRoomApp) getRoom(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rs.GetRoom(r.Context(), id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

// timeExchange is the server half of the client latency estimation
// protocol: the client supplies its send time t0, the server brackets a
// reference-clock read with t1 and t2, and the client derives round-trip
// latency and offset from the triple. Nothing is stored per client.
func (s *SyncRoomApp) timeExchange(w http.ResponseWriter, r *http.Request) {
	t0Ms, err := strconv.ParseInt(r.URL.Query().Get("t0"), 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ex := s.rs.Clock().HandleExchange(time.UnixMilli(t0Ms))
	s.writeJson(w, http.StatusOK, map[string]int64{
		"t0": ex.T0.UnixMilli(),
		"t1": ex.T1.UnixMilli(),
		"t2": ex.T2.UnixMilli(),
	})
}

func (s *SyncRoomApp) health(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"clock_stale": s.rs.Clock().Stale(),
	})
}

func (s *SyncRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("ws upgrade:", err)
		return
	}

	client := server.NewClient(conn, s.rs, s.log)
	s.rs.RegisterChan <- client

	go client.Write()
	go client.Read()
}
