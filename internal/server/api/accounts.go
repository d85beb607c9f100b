package api

import (
	"encoding/base64"
	"net/http"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/go-chi/chi/v5"
)

const authBodyLimit = 4096

func (s *HTTPServer) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req wire.CreateAccountRequest
	if err := decodeBody(w, r, authBodyLimit, &req); err != nil {
		failErr(w, err)
		return
	}
	salt, err := base64.StdEncoding.DecodeString(req.Salt)
	if err != nil {
		failErr(w, &common.ValidationError{Field: "salt", Reason: "must be base64"})
		return
	}

	account, err := s.accounts.Create(ctx, salt, req.AuthToken)
	if err != nil {
		failErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wire.CreateAccountResponse{Account: account})
}

func (s *HTTPServer) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	salt, err := s.accounts.GetSalt(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.SaltResponse{Success: true, Salt: base64.StdEncoding.EncodeToString(salt)})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginRequest
	if err := decodeBody(w, r, authBodyLimit, &req); err != nil {
		failErr(w, err)
		return
	}

	token, err := s.accounts.Login(r.Context(), chi.URLParam(r, "account"), req.AuthToken)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.LoginResponse{Success: true, Session: token})
}

func (s *HTTPServer) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, version, err := s.records.GetMetadata(r.Context(), accountFromContext(r.Context()))
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.MetadataResponse{Success: true, Metadata: meta, Version: version})
}

func (s *HTTPServer) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	var req wire.MetadataRequest
	if err := decodeBody(w, r, s.maxBody, &req); err != nil {
		failErr(w, err)
		return
	}

	if err := s.records.SetMetadata(r.Context(), accountFromContext(r.Context()), req.Metadata, req.Version); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *HTTPServer) handleBackup(w http.ResponseWriter, r *http.Request) {
	key, err := s.backups.Backup(r.Context(), accountFromContext(r.Context()))
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.BackupResponse{Success: true, Key: key})
}
