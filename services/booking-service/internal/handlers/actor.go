package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptcore/libs/auth"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// WithTokens makes the handler require a verified bearer token instead of trusting
// the gateway identity headers.
func (h *BookingHandler) WithTokens(v TokenVerifier) *BookingHandler {
	h.tokens = v
	return h
}

func (h *BookingHandler) actor(r *http.Request) (model.Actor, bool) {
	if h.tokens == nil {
		return actorFromHeaders(r)
	}
	raw := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return model.Actor{}, false
	}
	claims, err := h.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return model.Actor{}, false
	}
	return buildActor(claims.Sub, claims.Role)
}

// actorFromHeaders reads the identity set by the gateway. The headers are trusted.
func actorFromHeaders(r *http.Request) (model.Actor, bool) {
	return buildActor(r.Header.Get(headerUserID), r.Header.Get(headerRole))
}

func buildActor(userID, rawRole string) (model.Actor, bool) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return model.Actor{}, false
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(rawRole)))
	switch role {
	case model.RoleClient, model.RoleProvider, model.RoleAdmin:
	case "":
		role = model.RoleClient
	default:
		return model.Actor{}, false
	}
	return model.Actor{UserID: id, Role: role}, true
}
