package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/store"
)

// maxConfigBody bounds PUT /api/config payloads
const maxConfigBody = 1 << 20

// ConfigUpdateResponse reports the outcome of a configuration change
type ConfigUpdateResponse struct {
	Config        policy.View `json:"config"`
	IgnoredKeys   []string    `json:"ignored_keys,omitempty"`
	RejectedRules []string    `json:"rejected_rules,omitempty"`
	Version       uint64      `json:"version"`
}

// StatsResponse is served by /api/stats
type StatsResponse struct {
	SessionID int64            `json:"session_id"`
	Source    string           `json:"source"`
	Counts    map[string]int64 `json:"counts"`
	Frames    uint64           `json:"frames_processed"`
	FPS       float64          `json:"fps"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":         "frame-sentinel",
		"version":      Version,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"capabilities": s.deps.Capabilities,
		"source":       s.config.Source.Type,
		"websocket":    s.wsHub != nil,
	}
	if s.wsHub != nil {
		info["websocket_stats"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleFrame serves the latest processed frame
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Preview == nil {
		writeError(w, http.StatusServiceUnavailable, "preview disabled")
		return
	}
	data, frame, ok, err := s.deps.Preview.JPEG()
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to encode preview", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode frame")
		return
	}
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame processed yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Frame-Number", strconv.FormatUint(frame, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policy.Current().View())
}

// handleUpdateConfig applies a partial configuration. Only the keys present
// in the body change; other keys are reported back and ignored.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	var (
		confidence *float64
		rules      map[string]string
		keywords   []string
		setWords   bool
		ignored    []string
	)
	for key, raw := range body {
		var err error
		switch key {
		case "detection_confidence":
			var v float64
			if err = json.Unmarshal(raw, &v); err == nil {
				confidence = &v
			}
		case "blur_rules":
			err = json.Unmarshal(raw, &rules)
		case "sensitive_keywords":
			err = json.Unmarshal(raw, &keywords)
			setWords = true
		default:
			ignored = append(ignored, key)
			continue
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid value for %s: %v", key, err))
			return
		}
	}

	sort.Strings(ignored)

	var rejected []string
	next := s.policy.Modify(func(snap policy.Snapshot) policy.Snapshot {
		if confidence != nil {
			snap.Confidence = *confidence
		}
		if rules != nil {
			snap.Rules, rejected = snap.Rules.Merge(rules)
		}
		if setWords {
			snap.Keywords = policy.NewKeywordSet(keywords)
		}
		return snap
	})

	s.logger.WithRequestID(getRequestID(r.Context())).Info("Configuration updated",
		zap.Float64("confidence", next.Confidence),
		zap.Int("keywords", next.Keywords.Len()),
		zap.Strings("ignored_keys", ignored),
		zap.Strings("rejected_rules", rejected),
	)
	s.broadcastConfig("api", next)

	writeJSON(w, http.StatusOK, ConfigUpdateResponse{
		Config:        next.View(),
		IgnoredKeys:   ignored,
		RejectedRules: rejected,
		Version:       s.policy.Version(),
	})
}

func (s *Server) handleListRulePresets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "preset storage disabled")
		return
	}
	presets, err := s.deps.Presets.BlurRulePresets(r.Context())
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleListKeywordLists(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "preset storage disabled")
		return
	}
	lists, err := s.deps.Presets.KeywordLists(r.Context())
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// handleApplyRulePreset replaces the blur rules with a stored preset
func (s *Server) handleApplyRulePreset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "preset storage disabled")
		return
	}
	name := mux.Vars(r)["name"]
	preset, err := s.deps.Presets.BlurRulePreset(r.Context(), name)
	if err != nil {
		s.storageError(w, r, err)
		return
	}

	rules, rejected := policy.ParseRules(preset.Rules)
	next := s.policy.Modify(func(snap policy.Snapshot) policy.Snapshot {
		snap.Rules = rules
		return snap
	})
	s.logger.WithRequestID(getRequestID(r.Context())).Info("Blur rule preset applied",
		zap.String("preset", preset.Name),
		zap.Strings("rejected_rules", rejected),
	)
	s.broadcastConfig("preset:"+preset.Name, next)

	writeJSON(w, http.StatusOK, ConfigUpdateResponse{
		Config:        next.View(),
		RejectedRules: rejected,
		Version:       s.policy.Version(),
	})
}

// handleApplyKeywordList replaces the sensitive keywords with a stored list
func (s *Server) handleApplyKeywordList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "preset storage disabled")
		return
	}
	name := mux.Vars(r)["name"]
	list, err := s.deps.Presets.KeywordList(r.Context(), name)
	if err != nil {
		s.storageError(w, r, err)
		return
	}

	next := s.policy.Modify(func(snap policy.Snapshot) policy.Snapshot {
		snap.Keywords = policy.NewKeywordSet(list.Keywords)
		return snap
	})
	s.logger.WithRequestID(getRequestID(r.Context())).Info("Keyword list applied",
		zap.String("list", list.Name),
		zap.Int("keywords", next.Keywords.Len()),
	)
	s.broadcastConfig("keywords:"+list.Name, next)

	writeJSON(w, http.StatusOK, ConfigUpdateResponse{
		Config:  next.View(),
		Version: s.policy.Version(),
	})
}

// handleStats reports detection counts for a session. The persisted counts
// are preferred, then the live counters, then the in-process totals.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}
	if s.deps.Runner != nil {
		stats := s.deps.Runner.Stats()
		resp.SessionID = s.deps.Runner.SessionID()
		resp.Frames = stats.FrameNumber
		resp.FPS = stats.FPS
	}
	if raw := r.URL.Query().Get("session"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		resp.SessionID = id
	}

	log := s.logger.WithRequestID(getRequestID(r.Context()))
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s.deps.Sessions != nil {
		counts, err := s.deps.Sessions.DetectionStats(ctx, resp.SessionID)
		if err == nil {
			resp.Source, resp.Counts = "database", counts
			writeJSON(w, http.StatusOK, resp)
			return
		}
		log.Warn("Database stats unavailable", zap.Error(err))
	}
	if s.deps.Counters != nil {
		counts, err := s.deps.Counters.Counts(ctx, resp.SessionID)
		if err == nil {
			resp.Source, resp.Counts = "redis", counts
			writeJSON(w, http.StatusOK, resp)
			return
		}
		log.Warn("Live counters unavailable", zap.Error(err))
	}

	resp.Source, resp.Counts = "memory", map[string]int64{}
	if s.deps.Runner != nil {
		resp.Counts = s.deps.Runner.Stats().Totals
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) broadcastConfig(source string, snap policy.Snapshot) {
	if s.wsHub != nil {
		s.wsHub.BroadcastConfigChanged(source, snap.View())
	}
}

func (s *Server) storageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrPresetNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.WithRequestID(getRequestID(r.Context())).Error("Preset storage failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "preset storage failed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
