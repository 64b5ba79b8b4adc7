package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tapcoin/internal/auth"
	"tapcoin/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const playerContextKey contextKey = "player"

type PlayerContext struct {
	PlayerID string
	Name     string
}

type Server struct {
	log     *slog.Logger
	tokens  *auth.Issuer
	game    *game.Service
	timeout time.Duration
	mux     *chi.Mux
}

func New(logger *slog.Logger, tokens *auth.Issuer, gameSvc *game.Service, timeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Server{
		log:     logger,
		tokens:  tokens,
		game:    gameSvc,
		timeout: timeout,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/tasks/catalog", s.handleTaskCatalog)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/me", s.handleSummary)
			r.Post("/tap", s.handleTap)
			r.Post("/upgrades", s.handleUpgrade)
			r.Post("/daily-bonus", s.handleDailyBonus)
			r.Get("/tasks", s.handleTasks)
			r.Post("/tasks/{id}/complete", s.handleCompleteTask)
			r.Get("/referrals", s.handleReferralStats)
			r.Post("/referrals/redeem", s.handleRedeem)
			r.Post("/sync/replay", s.handleSyncReplay)
		})
	})
}

// authMiddleware resolves the bearer token to a player and makes sure the
// player exists, so a freshly issued token works on first use.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if _, err := s.game.GetOrCreate(r.Context(), claims.PlayerID, game.Profile{DisplayName: claims.Name}); err != nil {
			s.writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, PlayerContext{
			PlayerID: claims.PlayerID,
			Name:     claims.Name,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFromContext(ctx context.Context) (PlayerContext, error) {
	v := ctx.Value(playerContextKey)
	p, ok := v.(PlayerContext)
	if !ok || p.PlayerID == "" {
		return PlayerContext{}, errors.New("missing auth context")
	}
	return p, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.Summary(r.Context(), p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.Tap(r.Context(), p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	out, err := s.game.PurchaseUpgrade(r.Context(), p.PlayerID, in.Kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDailyBonus(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.ClaimDailyBonus(r.Context(), p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTaskCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": game.Tasks()})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.ListTasks(r.Context(), p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.CompleteTask(r.Context(), p.PlayerID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	out, err := s.game.ReferralStats(r.Context(), p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	var in struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	out, err := s.game.Redeem(r.Context(), in.Code, p.PlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "offset must be an integer")
		return
	}
	out, err := s.game.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

// handleSyncReplay applies commands queued by an offline client. Only
// operations that are safe to repeat are accepted; a replayed command that
// already took effect reports its domain code instead of applying twice.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	var in struct {
		Commands []SyncCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	results := make([]SyncResult, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		res := SyncResult{ID: cmd.ID, Type: cmd.Type, OK: true}
		var err error
		switch cmd.Type {
		case "daily_bonus":
			_, err = s.game.ClaimDailyBonus(r.Context(), p.PlayerID)
		case "complete_task":
			_, err = s.game.CompleteTask(r.Context(), p.PlayerID, cmd.Arg)
		case "redeem":
			_, err = s.game.Redeem(r.Context(), cmd.Arg, p.PlayerID)
		default:
			res.OK = false
			res.Code = "invalid_input"
			res.Error = "unsupported command type"
		}
		if err != nil {
			res.OK = false
			res.Code = game.Code(err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type SyncCommand struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Arg  string `json:"arg,omitempty"`
}

type SyncResult struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := game.Code(err)
	switch {
	case errors.Is(err, game.ErrUnknownUpgrade), errors.Is(err, game.ErrUnknownTask),
		errors.Is(err, game.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, game.ErrUnknownCode), errors.Is(err, game.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, game.ErrAlreadyReferred), errors.Is(err, game.ErrTaskAlreadyCompleted),
		errors.Is(err, game.ErrBonusNotReady), errors.Is(err, game.ErrStorageConflict):
		writeError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, game.ErrInsufficientEnergy), errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrUpgradeMaxed), errors.Is(err, game.ErrTaskNotEligible),
		errors.Is(err, game.ErrSelfReferral):
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, code, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "code": code})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
