package internal

import (
	"errors"
	"net/http"

	"asset-lending-api/internal/auth"
	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/models"

	"go.uber.org/zap"
)

// loginUser handles user authentication
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	user, err := s.users.FindUserByUsername(r.Context(), req.Username)
	if errors.Is(err, lending.ErrRecordNotFound) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.log.Error("login lookup failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.JWTManager.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.log.Error("token generation failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token: token,
		User:  user.Redacted(),
	})
}
