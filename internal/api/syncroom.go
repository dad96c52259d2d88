package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/spksound/syncroom/internal/config"
	"github.com/spksound/syncroom/internal/server"
	"github.com/spksound/syncroom/internal/store"
)

// SyncRoomApp is the HTTP surface: room creation and inspection over REST,
// the clock latency exchange, and the websocket upgrade into the engine.
type SyncRoomApp struct {
	log *log.Logger
	rs  *server.RoomServer
	st  store.RoomStore
	mux *http.Server
}

func NewSyncRoomApp(mux *http.ServeMux, logger *log.Logger, rs *server.RoomServer, st store.RoomStore, cfg *config.Config) *SyncRoomApp {
	s := &SyncRoomApp{
		log: logger,
		rs:  rs,
		st:  st,
	}

	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms", s.getRoom)
	mux.HandleFunc("GET /api/time", s.timeExchange)
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *SyncRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SyncRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
