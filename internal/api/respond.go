package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

const userHeader = "X-User-ID"

type ctxKey struct{}

// userMiddleware resolves the acting user from X-User-ID. Authentication happens upstream.
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := s.defaultUserID
		if v := r.Header.Get(userHeader); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				s.writeError(w, http.StatusBadRequest, "invalid "+userHeader+" header")
				return
			}
			uid = id
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

func userID(r *http.Request) int64 {
	uid, _ := r.Context().Value(ctxKey{}).(int64)
	return uid
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain errors onto status codes. Risk blocks are 422 and say
// whether a forced retry with a justification can succeed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *model.ValidationError
		rerr *model.RiskViolationError
		herr *model.HardRejectionError
	)
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &rerr):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": rerr.Error(), "reason": rerr.Reason, "forceable": true,
		})
	case errors.As(err, &herr):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": herr.Error(), "reason": herr.Reason, "forceable": false,
		})
	case errors.Is(err, model.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return n, true
}

// assetParam resolves the {code} URL parameter to an asset of the acting user.
func (s *Server) assetParam(w http.ResponseWriter, r *http.Request) (*model.Asset, bool) {
	a, err := s.svc.Pool.Get(r.Context(), userID(r), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return a, true
}

// assetQuery resolves an optional ?asset=code filter. Zero means no filter.
func (s *Server) assetQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	code := r.URL.Query().Get("asset")
	if code == "" {
		return 0, true
	}
	a, err := s.svc.Pool.Get(r.Context(), userID(r), code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return 0, false
	}
	return a.ID, true
}
