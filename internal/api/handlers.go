package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/server"
	"github.com/faenet/chambers/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *ChambersApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChambersApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	}

	newAccount, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:           newAccount.Id,
		Username:     newAccount.Username,
		EmailAddress: newAccount.EmailAddress,
		CreatedAt:    newAccount.CreatedAt,
		UpdatedAt:    newAccount.UpdatedAt,
	})
}

func (s *ChambersApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acct, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := types.User{
		Id:           acct.Id,
		Username:     acct.Username,
		EmailAddress: acct.EmailAddress,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}

	s.writeJson(w, http.StatusOK, u)
}

func (s *ChambersApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acct, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(acct.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := types.User{
		Id:           acct.Id,
		Username:     acct.Username,
		EmailAddress: acct.EmailAddress,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *ChambersApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChambersApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(createRoomReq.Name) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	slug, err := s.uniqueSlug(createRoomReq.Name)
	if err != nil {
		s.log.Println("uniqueSlug:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateRoomParams{
		Name:        createRoomReq.Name,
		Slug:        slug,
		Description: createRoomReq.Description,
		OwnerId:     userId,
	}

	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, &types.Room{
		Id:          newRoom.Id,
		Name:        newRoom.Name,
		Slug:        newRoom.Slug,
		Description: newRoom.Description,
		OwnerId:     newRoom.OwnerId,
		CreatedAt:   newRoom.CreatedAt,
	})
}

func (s *ChambersApp) listRooms(w http.ResponseWriter, _ *http.Request) {
	dbRooms, err := s.db.ListRooms()
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, types.Room{
			Id:          room.Id,
			Name:        room.Name,
			Slug:        room.Slug,
			Description: room.Description,
			OwnerId:     room.OwnerId,
			CreatedAt:   room.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *ChambersApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, apiErr := s.roomFromPath(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	s.writeJson(w, http.StatusOK, types.Room{
		Id:          room.Id,
		Name:        room.Name,
		Slug:        room.Slug,
		Description: room.Description,
		OwnerId:     room.OwnerId,
		CreatedAt:   room.CreatedAt,
	})
}

func (s *ChambersApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, apiErr := s.roomFromPath(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(room.Id); err != nil {
		s.log.Println("delete room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChambersApp) getMessages(w http.ResponseWriter, r *http.Request) {
	room, apiErr := s.roomFromPath(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.GetMessages(room.Id, limit)
	if err != nil {
		s.log.Println("get messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	// reverse so the oldest message comes first
	for i := len(dbMessages) - 1; i >= 0; i-- {
		msg := dbMessages[i]

		counts, err := s.db.GetReactionCounts(msg.Id)
		if err != nil {
			s.log.Println("get reaction counts:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var reactions []types.ReactionGroup
		for _, rc := range counts {
			reactions = append(reactions, types.ReactionGroup{Emoji: rc.Emoji, Count: rc.Count})
		}

		var reply *types.ReplyPreview
		if msg.ParentId > 0 {
			reply = &types.ReplyPreview{
				MessageId: msg.ParentId,
				Username:  msg.ParentUsername,
				Content:   server.PreviewContent(msg.ParentContent),
			}
		}

		messages = append(messages, types.Message{
			Id:        msg.Id,
			RoomId:    msg.RoomId,
			UserId:    msg.AccountId,
			Username:  msg.Username,
			Content:   msg.Content,
			ReplyTo:   reply,
			Reactions: reactions,
			CreatedAt: msg.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ChambersApp) getOnlineUsers(w http.ResponseWriter, r *http.Request) {
	room, apiErr := s.roomFromPath(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	online, err := s.cs.OnlineUsers(r.Context(), room.Slug)
	if err != nil {
		s.log.Println("online users:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, online)
}

func (s *ChambersApp) serveWs(w http.ResponseWriter, r *http.Request) {
	room, apiErr := s.roomFromPath(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	user := s.sessionUser(r)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	if user.Anonymous() {
		// nothing to tell an unauthenticated peer
		conn.Close()
		return
	}

	session := server.NewSession(user, types.Room{
		Id:          room.Id,
		Name:        room.Name,
		Slug:        room.Slug,
		Description: room.Description,
		OwnerId:     room.OwnerId,
		CreatedAt:   room.CreatedAt,
	}, conn, s.cs, s.log)

	// the request context ends with this handler; the session outlives it
	if err := s.cs.StartSession(context.Background(), session); err != nil {
		s.log.Println("start session:", err)
	}
}

func (s *ChambersApp) roomFromPath(r *http.Request) (database.Room, *ApiError) {
	slug := r.PathValue("slug")
	if slug == "" {
		return database.Room{}, NewBadRequestError()
	}

	room, err := s.db.GetRoomBySlug(slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, NewNotFoundError()
		}
		return database.Room{}, NewInternalServerError(err)
	}

	return room, nil
}

// uniqueSlug derives a URL-safe slug from the room name, appending a
// short id when the plain slug is already taken.
func (s *ChambersApp) uniqueSlug(name string) (string, error) {
	slug := slugify(name)
	if slug == "" {
		slug = "chamber"
	}

	_, err := s.db.GetRoomBySlug(slug)
	if errors.Is(err, sql.ErrNoRows) {
		return slug, nil
	}
	if err != nil {
		return "", err
	}

	sid, err := shortid.Generate()
	if err != nil {
		return "", err
	}

	return slug + "-" + sid, nil
}

func slugify(name string) string {
	var b strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		case !prevDash:
			b.WriteByte('-')
			prevDash = true
		}
	}

	return strings.TrimRight(b.String(), "-")
}
