package dashboard

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"loanwatch/internal/codec"
	"loanwatch/internal/engine"
	"loanwatch/internal/favorites"
	"loanwatch/internal/refresher"
	"loanwatch/models"
)

var outcomeStatus = map[refresher.Outcome]int{
	refresher.OutcomeSuccess:      http.StatusOK,
	refresher.OutcomeInputMissing: http.StatusBadRequest,
	refresher.OutcomeNotFound:     http.StatusNotFound,
	refresher.OutcomeFailed:       http.StatusBadGateway,
	refresher.OutcomeSuperseded:   http.StatusConflict,
}

type evaluationView struct {
	models.Evaluation
	DisplayTier models.RiskTier `json:"display_tier"`
	SliderMax   float64         `json:"slider_max"`
}

func newEvaluationView(ev models.Evaluation) evaluationView {
	return evaluationView{
		Evaluation:  ev,
		DisplayTier: ev.Metrics.DisplayTier(),
		SliderMax:   math.Floor(math.Max(0, ev.Metrics.MaxAdditionalBorrow)),
	}
}

type resultPayload struct {
	ID         string            `json:"id"`
	Address    string            `json:"address,omitempty"`
	Trigger    refresher.Trigger `json:"trigger"`
	Outcome    refresher.Outcome `json:"outcome"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Evaluation *evaluationView   `json:"evaluation,omitempty"`
}

func resultView(res refresher.Result) resultPayload {
	out := resultPayload{
		ID:         res.ID,
		Address:    res.Address,
		Trigger:    res.Trigger,
		Outcome:    res.Outcome,
		Message:    res.Outcome.Message(),
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.Evaluation != nil {
		v := newEvaluationView(*res.Evaluation)
		out.Evaluation = &v
	}
	return out
}

func statusFor(o refresher.Outcome) int {
	if code, ok := outcomeStatus[o]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (s *Server) handlePosition(c *gin.Context) {
	session := s.refresher.Session()
	ev := s.refresher.Current()
	var lastFetch *time.Time
	if t := session.LastFetch(); !t.IsZero() {
		lastFetch = &t
	}
	c.JSON(http.StatusOK, gin.H{
		"address":    session.Address(),
		"last_fetch": lastFetch,
		"evaluation": newEvaluationView(ev),
	})
}

type refreshRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res := s.refresher.Refresh(c.Request.Context(), req.Address)
	c.JSON(statusFor(res.Outcome), resultView(res))
}

type borrowRequest struct {
	Amount *float64 `json:"amount"`
}

func (s *Server) handleBorrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	res := s.refresher.SetAdditionalBorrow(c.Request.Context(), *req.Amount)
	c.JSON(http.StatusOK, resultView(res))
}

func (s *Server) handlePriceRefresh(c *gin.Context) {
	res := s.refresher.RefreshPrice(c.Request.Context())
	if !res.OK() {
		c.JSON(http.StatusBadGateway, resultView(res))
		return
	}
	c.JSON(http.StatusOK, resultView(res))
}

// handleCalc evaluates query parameters without touching the session.
func (s *Server) handleCalc(c *gin.Context) {
	var parseErr error
	num := func(key string) float64 {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" || parseErr != nil {
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			parseErr = errors.New(key + " must be a number")
		}
		return v
	}

	snap := models.PositionSnapshot{
		CollateralAmount:       num("collateral"),
		ExistingBorrowed:       num("borrowed"),
		AdditionalBorrow:       num("additional"),
		InterestRateAPRPercent: num("rate"),
	}
	if c.Query("price") != "" {
		p := num("price")
		snap.CollateralPriceUSD = &p
	}
	minRatio := num("min_ratio")
	if parseErr == nil {
		parseErr = snap.Validate()
	}
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": parseErr.Error()})
		return
	}

	e := s.engine
	if minRatio > 0 {
		e = engine.New(minRatio)
	}
	c.JSON(http.StatusOK, newEvaluationView(e.Evaluate(snap)))
}

func (s *Server) handleDerive(c *gin.Context) {
	id := c.Param("id")
	address, err := codec.DeriveAddress(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "address": address})
}

type favoriteView struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (s *Server) favoritesPayload() []favoriteView {
	list := s.favorites.List()
	out := make([]favoriteView, 0, len(list))
	for _, a := range list {
		out = append(out, favoriteView{Address: a, Label: favorites.Label(a)})
	}
	return out
}

func (s *Server) handleFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"favorites": s.favoritesPayload()})
}

func (s *Server) handleAddFavorite(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	switch err := s.favorites.Add(req.Address); {
	case errors.Is(err, favorites.ErrEmptyAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter an address first"})
	case errors.Is(err, favorites.ErrAlreadySaved):
		c.JSON(http.StatusConflict, gin.H{"error": "Address already saved"})
	case err != nil:
		s.log.WithComponent("dashboard").WithError(err).Error("failed to save favorite")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save address"})
	default:
		c.JSON(http.StatusCreated, gin.H{"favorites": s.favoritesPayload()})
	}
}

func (s *Server) handleRemoveFavorite(c *gin.Context) {
	switch err := s.favorites.Remove(c.Param("address")); {
	case errors.Is(err, favorites.ErrNotSaved), errors.Is(err, favorites.ErrEmptyAddress):
		c.JSON(http.StatusNotFound, gin.H{"error": "address not saved"})
	case err != nil:
		s.log.WithComponent("dashboard").WithError(err).Error("failed to remove favorite")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove address"})
	default:
		c.JSON(http.StatusOK, gin.H{"favorites": s.favoritesPayload()})
	}
}

func (s *Server) handleTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"theme": s.favorites.Theme()})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

// handleSetTheme sets the requested theme, or toggles it when none is given.
func (s *Server) handleSetTheme(c *gin.Context) {
	var req themeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var (
		theme string
		err   error
	)
	if strings.TrimSpace(req.Theme) == "" {
		theme, err = s.favorites.ToggleTheme()
	} else {
		err = s.favorites.SetTheme(req.Theme)
		theme = s.favorites.Theme()
	}
	switch {
	case errors.Is(err, favorites.ErrInvalidTheme):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		s.log.WithComponent("dashboard").WithError(err).Error("failed to store theme")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store theme"})
	default:
		c.JSON(http.StatusOK, gin.H{"theme": theme})
	}
}
