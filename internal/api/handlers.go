package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/always-cache/portal-cache/portal"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, map[string]string{"message": "Unofficial uniclare API - v1"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, map[string]string{"status": "OK"})
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}
	body.PhoneNumber = strings.TrimSpace(body.PhoneNumber)
	if n := len(body.PhoneNumber); n < 10 || n > 13 || body.Password == "" {
		writeFailure(w, r, http.StatusBadRequest, "phone_number (10-13 characters) and password are required")
		return
	}
	res, err := s.portal.Login(r.Context(), body.PhoneNumber, body.Password)
	respond(w, r, res, err)
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.ValidateSession(r.Context())
	respond(w, r, res, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.Logout(r.Context())
	respond(w, r, res, err)
}

type otpRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.PhoneNumber) == "" {
		writeFailure(w, r, http.StatusBadRequest, "phone_number is required")
		return
	}
	res, err := s.portal.SendResetOTP(r.Context(), strings.TrimSpace(body.PhoneNumber))
	respond(w, r, res, err)
}

type resetRequest struct {
	Mobile      string `json:"mobile"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Mobile == "" || body.OTP == "" || body.NewPassword == "" {
		writeFailure(w, r, http.StatusBadRequest, "mobile, otp and new_password are required")
		return
	}
	res, err := s.portal.ResetPassword(r.Context(), body.Mobile, body.OTP, body.NewPassword)
	respond(w, r, res, err)
}

type passwordCheckRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	var body passwordCheckRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Password == "" {
		writeFailure(w, r, http.StatusBadRequest, "password is required")
		return
	}
	res, err := s.portal.CheckPassword(r.Context(), body.Password)
	respond(w, r, res, err)
}

type passwordUpdateRequest struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var body passwordUpdateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if n := len(body.NewPassword); n < 6 || n > 128 {
		writeFailure(w, r, http.StatusBadRequest, "new_password must be 6 to 128 characters")
		return
	}
	res, err := s.portal.UpdatePassword(r.Context(), body.NewPassword)
	respond(w, r, res, err)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.Profile(r.Context(), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleEditableProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.EditableProfile(r.Context(), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	var body portal.ProfileUpdate
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.portal.UpdateEditableProfile(r.Context(), body)
	respond(w, r, res, err)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.Results(r.Context(), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleExamResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.ExamResult(r.Context(), chi.URLParam(r, "exam_code"), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleDetailedResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.DetailedExamResult(r.Context(), chi.URLParam(r, "exam_code"), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.Notifications(r.Context(), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handlePracticalTimetable(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.PracticalTimetable(r.Context(), refetch(r))
	respond(w, r, res, err)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Cannot read cache stats")
		writeFailure(w, r, http.StatusInternalServerError, "Failed to get cache info")
		return
	}
	writeData(w, r, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Cannot clear cache")
		writeFailure(w, r, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	writeData(w, r, map[string]string{"message": "Cache cleared"})
}
