package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/wire"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
}

type registerResponse struct {
	InstanceID string `json:"instance_id"`
	APISecret  string `json:"api_secret"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret, err := s.instances.Register(r.Context(), req.InstanceID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, common.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "instance id already registered")
		default:
			s.logger.Error(r.Context(), "registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{InstanceID: req.InstanceID, APISecret: secret})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req wire.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.instances.IssueToken(r.Context(), req.InstanceID, req.APISecret)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error(r.Context(), "token exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}

	writeJSON(w, http.StatusOK, wire.TokenResponse{AccessToken: token, ExpiresAt: expiresAt})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req wire.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.sync.AcceptPush(r.Context(), instanceFromContext(r.Context()), &req)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			writeError(w, http.StatusForbidden, "instance mismatch")
			return
		}
		s.logger.Error(r.Context(), "push failed", "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req wire.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.sync.ServePull(r.Context(), instanceFromContext(r.Context()), &req)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			writeError(w, http.StatusForbidden, "instance mismatch")
			return
		}
		s.logger.Error(r.Context(), "pull failed", "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePresignPut(w http.ResponseWriter, r *http.Request) {
	key, url, err := s.attachments.GetPresignedPutUrl(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "presign put failed", "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}

	writeJSON(w, http.StatusOK, wire.PresignPutResponse{Key: key, URL: url})
}

func (s *Server) handlePresignGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	url, err := s.attachments.GetPresignedGetUrl(r.Context(), key)
	if err != nil {
		s.logger.Error(r.Context(), "presign get failed", "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
		return
	}

	writeJSON(w, http.StatusOK, wire.PresignGetResponse{URL: url})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}
