package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/faenet/chambers/internal/config"
	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/server"
)

type ChambersApp struct {
	log            *log.Logger
	db             database.ChambersRepository
	mux            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
	giphyAPIKey    string
	httpClient     *http.Client
}

func NewChambersApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	db database.ChambersRepository, cfg *config.Config) *ChambersApp {
	s := &ChambersApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		giphyAPIKey:    cfg.GiphyAPIKey,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/rooms/{slug}", s.authMiddleware(s.getRoom))
	mux.Handle("DELETE /api/rooms/{slug}", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/rooms/{slug}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/rooms/{slug}/online", s.authMiddleware(s.getOnlineUsers))
	mux.Handle("GET /api/gifs", s.authMiddleware(s.searchGifs))
	// the websocket route resolves identity itself: an anonymous
	// socket is accepted, then closed without joining
	mux.HandleFunc("GET /ws/{slug}", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
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

func (s *ChambersApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChambersApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
