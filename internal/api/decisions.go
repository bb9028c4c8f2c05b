package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ValueSentinel/internal/action"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/risk"
)

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	ctx, uid := r.Context(), userID(r)
	q := r.URL.Query()

	var (
		signals []model.Signal
		err     error
	)
	switch {
	case q.Get("days") != "":
		days, ok := s.queryInt(w, r, "days", 30)
		if !ok {
			return
		}
		assetID, ok := s.assetQuery(w, r)
		if !ok {
			return
		}
		signals, err = s.svc.Signals.History(ctx, uid, days, assetID)
	case q.Get("today") == "true":
		signals, err = s.svc.Signals.Today(ctx, uid)
	default:
		status := model.SignalOpen
		if v := q.Get("status"); v != "" {
			if status, err = model.ParseSignalStatus(v); err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		signals, err = s.svc.Signals.ByStatus(ctx, uid, status)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	created, err := s.svc.Signals.Scan(r.Context(), userID(r))
	if err != nil && len(created) == 0 {
		s.writeServiceError(w, r, err)
		return
	}
	resp := map[string]any{"created": created}
	if err != nil {
		// partial scans still report what they created
		resp["errors"] = strings.Split(err.Error(), "\n")
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) signalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid signal id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := s.signalID(w, r)
	if !ok {
		return
	}
	sig, err := s.svc.Signals.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleIgnoreSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := s.signalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sig, err := s.svc.Actions.Ignore(r.Context(), userID(r), id, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sig)
}

// executeRequest accepts the asset either by id or by code.
type executeRequest struct {
	action.ExecuteRequest
	Code string `json:"code,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Code != "" {
		a, err := s.svc.Pool.Get(r.Context(), userID(r), req.Code)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		req.AssetID = a.ID
	}
	act, summary, err := s.svc.Actions.Execute(r.Context(), userID(r), req.ExecuteRequest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"action": act, "summary": summary})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	days, ok := s.queryInt(w, r, "days", 90)
	if !ok {
		return
	}
	assetID, ok := s.assetQuery(w, r)
	if !ok {
		return
	}
	var typ model.ActionType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := model.ParseActionType(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		typ = t
	}
	actions, err := s.svc.Actions.History(r.Context(), userID(r), days, assetID, typ)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleRecentActions(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryInt(w, r, "limit", 10)
	if !ok {
		return
	}
	actions, err := s.svc.Actions.Recent(r.Context(), userID(r), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	days, ok := s.queryInt(w, r, "days", 90)
	if !ok {
		return
	}
	stats, err := s.svc.Actions.ComplianceStats(r.Context(), userID(r), days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type riskCheckRequest struct {
	risk.Request
	Code string `json:"code,omitempty"`
}

func (s *Server) handleRiskCheck(w http.ResponseWriter, r *http.Request) {
	var req riskCheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Code != "" {
		a, err := s.svc.Pool.Get(r.Context(), userID(r), req.Code)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		req.AssetID = a.ID
	}
	typ, err := model.ParseActionType(string(req.Type))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Type = typ
	res, err := s.svc.Risk.Preview(r.Context(), userID(r), req.Request)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": res, "description": res.Describe()})
}

func (s *Server) handlePositionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Risk.PositionSummary(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	assetID, ok := s.assetQuery(w, r)
	if !ok {
		return
	}
	avail, err := s.svc.Risk.AvailablePosition(r.Context(), userID(r), assetID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{"available_pct": avail})
}

func (s *Server) handleOverridePosition(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	var req struct {
		PositionPct float64  `json:"position_pct"`
		AvgCost     *float64 `json:"avg_cost,omitempty"`
		Shares      *int64   `json:"shares,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	pos, err := s.svc.Actions.OverridePosition(r.Context(), a.UserID, a.ID, req.PositionPct, req.AvgCost, req.Shares)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := s.svc.Actions.Portfolio(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pf)
}

func (s *Server) handleSetPortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalAsset float64 `json:"total_asset"`
		Cash       float64 `json:"cash"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	pf, err := s.svc.Actions.SetPortfolio(r.Context(), userID(r), req.TotalAsset, req.Cash)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pf)
}
