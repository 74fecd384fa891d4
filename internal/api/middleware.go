package api

import (
	"fmt"
	"net/http"

	"github.com/faenet/chambers/internal/types"
)

func (s *ChambersApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *ChambersApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenCookie, err := r.Cookie(tokenCookieKey)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(tokenCookie.Value)
		if err != nil {
			s.log.Printf("failed to extract user id from token: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// sessionUser resolves the authenticated user for the websocket route,
// returning the zero User when the request carries no valid token. The
// caller decides what to do with an anonymous connection.
func (s *ChambersApp) sessionUser(r *http.Request) types.User {
	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return types.User{}
	}

	userId, err := s.extractUserIdFromToken(tokenCookie.Value)
	if err != nil {
		return types.User{}
	}

	acct, err := s.db.GetAccountById(userId)
	if err != nil {
		return types.User{}
	}

	return types.User{
		Id:           acct.Id,
		Username:     acct.Username,
		EmailAddress: acct.EmailAddress,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}
}
