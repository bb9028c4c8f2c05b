package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/store"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AssetFilter{
		Keyword:       strings.TrimSpace(q.Get("q")),
		Industry:      q.Get("industry"),
		MonitoredOnly: q.Get("monitored") == "true",
	}
	if m := q.Get("market"); m != "" {
		market, err := model.ParseMarket(m)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Market = market
	}
	minComp, ok := s.queryInt(w, r, "min_competence", 0)
	if !ok {
		return
	}
	f.MinCompetence = minComp

	assets, err := s.svc.Pool.List(r.Context(), userID(r), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req pool.AddRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.svc.Pool.Add(r.Context(), userID(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req pool.UpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.svc.Pool.Update(r.Context(), userID(r), chi.URLParam(r, "code"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Pool.Remove(r.Context(), userID(r), chi.URLParam(r, "code")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	t, err := s.svc.Pool.Threshold(r.Context(), a.UserID, a.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var t model.Threshold
	if !s.decode(w, r, &t) {
		return
	}
	saved, err := s.svc.Pool.SetThreshold(r.Context(), userID(r), chi.URLParam(r, "code"), t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListValuations(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	years, ok := s.queryInt(w, r, "years", 5)
	if !ok {
		return
	}
	vals, err := s.svc.Valuations.History(r.Context(), a.UserID, a.ID, years)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"code": a.Code, "years": years, "valuations": vals})
}

type valuationRequest struct {
	Date              string   `json:"date"`
	PB                *float64 `json:"pb"`
	Price             *float64 `json:"price,omitempty"`
	BookValuePerShare *float64 `json:"book_value_per_share,omitempty"`
	Source            string   `json:"source,omitempty"`
}

func (s *Server) handleAddValuation(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	var req valuationRequest
	if !s.decode(w, r, &req) {
		return
	}
	date, err := time.ParseInLocation(model.DateLayout, req.Date, time.Local)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}
	v := &model.Valuation{
		UserID: a.UserID, AssetID: a.ID, Date: date, PB: req.PB,
		Price: req.Price, BookValuePerShare: req.BookValuePerShare, Source: req.Source,
	}
	if err := s.svc.Valuations.Upsert(r.Context(), v); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	years, ok := s.queryInt(w, r, "years", 5)
	if !ok {
		return
	}
	ctx := r.Context()
	stats, err := s.svc.Valuations.Stats(ctx, a.UserID, a.ID, years)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	latest, err := s.svc.Valuations.Latest(ctx, a.UserID, a.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := map[string]any{"code": a.Code, "stats": stats, "latest": latest}
	if latest != nil && latest.PB != nil {
		pct, err := s.svc.Valuations.Percentile(ctx, a.UserID, a.ID, *latest.PB, years)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp["percentile"] = pct
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	years, ok := s.queryInt(w, r, "years", 5)
	if !ok {
		return
	}
	rec, err := s.svc.Valuations.Recommend(r.Context(), a.UserID, a.ID, years)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	sig, err := s.svc.Signals.Evaluate(r.Context(), a.UserID, a.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"signal": sig})
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	if s.svc.Annotator == nil {
		s.writeError(w, http.StatusServiceUnavailable, "AI annotation is not configured")
		return
	}
	ann, err := s.svc.Annotator.Annotate(r.Context(), userID(r), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ann)
}

func (s *Server) handleListIndustries(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Pool.Industries(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"industries": list})
}

func (s *Server) handleSaveIndustry(w http.ResponseWriter, r *http.Request) {
	var c model.IndustryConfig
	if !s.decode(w, r, &c) {
		return
	}
	c.UserID = userID(r)
	c.Industry = chi.URLParam(r, "industry")
	saved, err := s.svc.Pool.SaveIndustry(r.Context(), c)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteIndustry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Pool.DeleteIndustry(r.Context(), userID(r), chi.URLParam(r, "industry")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIndustryThreshold(w http.ResponseWriter, r *http.Request) {
	pref := pool.RiskPreference(strings.ToLower(r.URL.Query().Get("preference")))
	switch pref {
	case "", pool.Conservative, pool.Moderate, pool.Aggressive:
	default:
		s.writeError(w, http.StatusBadRequest, "preference must be conservative, moderate or aggressive")
		return
	}
	t, err := s.svc.Pool.IndustryThreshold(r.Context(), userID(r), chi.URLParam(r, "industry"), pref)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleApplyIndustry(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Pool.ApplyIndustryDefaults(r.Context(), userID(r), chi.URLParam(r, "industry"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
