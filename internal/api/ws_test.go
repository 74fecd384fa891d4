package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/faenet/chambers/internal/bus"
	"github.com/faenet/chambers/internal/config"
	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/presence"
	"github.com/faenet/chambers/internal/server"
	"github.com/faenet/chambers/internal/stats"
	"github.com/faenet/chambers/internal/testutil"
	"github.com/faenet/chambers/internal/types"
)

// TestServeWs runs the websocket route against a real ChatServer with
// in-memory infrastructure, exercising the authenticated join, the
// anonymous rejection and the unknown-room handshake failure.
func TestServeWs(t *testing.T) {
	db := &database.MockChambersRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := server.NewChatServer(
		testutil.TestLogger(t),
		db,
		bus.NewMemoryBus(),
		presence.NewMemoryStore(),
		presence.NewMemoryAnnouncer(),
		su,
		120*time.Second,
	)
	require.NoError(t, err, "failed to create chat server")

	mux := http.NewServeMux()
	app := NewChambersApp(mux, testutil.TestLogger(t), cs, db, &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("test-signing-key"),
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	account := database.Account{Id: 1, Username: "ariel"}
	room := database.Room{Id: 1, Name: "Grove", Slug: "grove"}

	token, err := app.createJwtForSession(types.User{Id: account.Id}, defaultJwtExpiration)
	require.NoError(t, err, "failed to create session token")

	authHeader := http.Header{"Cookie": {tokenCookieKey + "=" + token}}

	t.Run("authenticated user joins and is announced", func(t *testing.T) {
		db.On("GetRoomBySlug", room.Slug).Return(room, nil).Once()
		db.On("GetAccountById", account.Id).Return(account, nil).Once()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/grove", authHeader)
		require.NoError(t, err, "expected the handshake to succeed")
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev), "expected the join announcement")
		assert.Equal(t, "system", ev["type"])
		assert.Equal(t, "ariel has entered the chamber", ev["message"])

		// the REST surface sees the same presence the socket produced
		db.On("GetRoomBySlug", room.Slug).Return(room, nil).Once()
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms/grove/online", nil)
		req.Header.Set("Cookie", tokenCookieKey+"="+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "expected the online users request to succeed")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var online []string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&online))
		assert.Equal(t, []string{"ariel"}, online, "expected the connected user online")
	})

	t.Run("anonymous socket is closed without joining", func(t *testing.T) {
		db.On("GetRoomBySlug", room.Slug).Return(room, nil).Once()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/grove", nil)
		require.NoError(t, err, "expected the handshake to succeed even unauthenticated")
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err, "expected the server to close an anonymous socket")
	})

	t.Run("unknown room fails the handshake", func(t *testing.T) {
		db.On("GetRoomBySlug", "nowhere").Return(database.Room{}, sql.ErrNoRows).Once()

		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/nowhere", authHeader)
		assert.Error(t, err, "expected the dial to fail for an unknown room")
		require.NotNil(t, resp, "expected an HTTP response for the failed handshake")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
