package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/zen2281488/gayOfDay/contest"
	"github.com/zen2281488/gayOfDay/telemetry"
)

type outcomeResponse struct {
	Chat       string `json:"chat"`
	Kind       string `json:"kind"`
	Day        string `json:"day,omitempty"`
	WinnerID   int64  `json:"winner_id,omitempty"`
	WinnerName string `json:"winner_name,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Evidence   int    `json:"evidence"`
}

// HandleAdminRun runs today's contest for ?chat=. force=1 discards an
// existing verdict first.
func (h *Handlers) HandleAdminRun(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	chat := chatParam(r)
	if chat == "" {
		writeError(w, http.StatusBadRequest, "chat is required")
		return
	}
	force := r.URL.Query().Get("force")
	out, err := h.deps.Game.Run(r.Context(), chat, force == "1" || force == "true")
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("admin contest run failed", slog.String("chat", chat), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := outcomeResponse{Chat: chat, Kind: string(out.Kind), Evidence: out.Evidence, WinnerName: out.WinnerName}
	if out.Verdict != nil {
		resp.Day = out.Verdict.Day
		resp.WinnerID = out.Verdict.WinnerID
		resp.Reason = out.Verdict.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAdminReset deletes today's verdict for ?chat=.
func (h *Handlers) HandleAdminReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	chat := chatParam(r)
	if chat == "" {
		writeError(w, http.StatusBadRequest, "chat is required")
		return
	}
	removed, err := h.deps.Game.Reset(r.Context(), chat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat, "removed": removed})
}

// HandleAdminTriggers lists every schedule.
func (h *Handlers) HandleAdminTriggers(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	daily, monthly, err := h.deps.Triggers.Triggers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if daily == nil {
		daily = []contest.DailyTrigger{}
	}
	if monthly == nil {
		monthly = []contest.LeaderboardTrigger{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily": daily, "leaderboard": monthly})
}

type dailyTriggerRequest struct {
	ChatID    string `json:"chat_id"`
	TimeOfDay string `json:"time_of_day"`
}

// HandleAdminDailyTrigger upserts a daily trigger; time_of_day "off" clears it.
func (h *Handlers) HandleAdminDailyTrigger(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPut) {
		return
	}
	var req dailyTriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	chat := normalizeChat(req.ChatID)
	if chat == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if isOff(req.TimeOfDay) {
		removed, err := h.deps.Triggers.ClearDailyTrigger(r.Context(), chat)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chat_id": chat, "removed": removed})
		return
	}
	hhmm, err := contest.ParseTimeOfDay(req.TimeOfDay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Triggers.SetDailyTrigger(r.Context(), chat, hhmm); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contest.DailyTrigger{ChatID: chat, TimeOfDay: hhmm})
}

type leaderboardTriggerRequest struct {
	ChatID     string `json:"chat_id"`
	DayOfMonth int    `json:"day_of_month"`
	TimeOfDay  string `json:"time_of_day"`
}

// HandleAdminLeaderboardTrigger upserts the monthly leaderboard trigger;
// time_of_day "off" clears it. Saving re-arms the current month.
func (h *Handlers) HandleAdminLeaderboardTrigger(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPut) {
		return
	}
	var req leaderboardTriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	chat := normalizeChat(req.ChatID)
	if chat == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if isOff(req.TimeOfDay) {
		removed, err := h.deps.Triggers.ClearLeaderboardTrigger(r.Context(), chat)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chat_id": chat, "removed": removed})
		return
	}
	if req.DayOfMonth < 1 || req.DayOfMonth > 31 {
		writeError(w, http.StatusBadRequest, "day_of_month must be within 1..31")
		return
	}
	hhmm, err := contest.ParseTimeOfDay(req.TimeOfDay)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Triggers.SetLeaderboardTrigger(r.Context(), chat, req.DayOfMonth, hhmm); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contest.LeaderboardTrigger{ChatID: chat, DayOfMonth: req.DayOfMonth, TimeOfDay: hhmm})
}

func isOff(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "off")
}
