package http

import (
	"net/http"
	"strconv"

	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// UsageData is the payload of GET /usage.
type UsageData struct {
	UsageStats    usage.Stats    `json:"usageStats"`
	RateLimitInfo ratelimit.Info `json:"rateLimitInfo"`
	APIKey        string         `json:"apiKey" example:"fg_0123456..."`
}

// UsageHandler answers usage queries for the authenticated key.
type UsageHandler struct {
	tracker     ports.UsageTracker
	clock       ports.Clock
	logger      zerolog.Logger
	defaultDays int
	maxDays     int
}

// NewUsageHandler creates a usage handler. Days default to 30 and are
// capped at maxDays (default 90).
func NewUsageHandler(tracker ports.UsageTracker, clk ports.Clock, defaultDays, maxDays int, logger zerolog.Logger) *UsageHandler {
	if maxDays <= 0 {
		maxDays = 90
	}
	if defaultDays <= 0 || defaultDays > maxDays {
		defaultDays = 30
	}
	return &UsageHandler{
		tracker:     tracker,
		clock:       clk,
		logger:      logger,
		defaultDays: defaultDays,
		maxDays:     maxDays,
	}
}

// ServeHTTP returns usage statistics and the current quota state.
//
//	@Summary		Usage statistics
//	@Description	Summarizes the calling key's requests over the last N days
//	@Tags			Usage
//	@Produce		json
//	@Param			days	query		int	false	"Days to cover (default 30, max 90)"
//	@Success		200		{object}	SuccessBody{data=UsageData}
//	@Failure		400		{object}	ErrorBody	"Invalid days parameter"
//	@Failure		401		{object}	ErrorBody	"Missing or invalid credentials"
//	@Failure		429		{object}	ErrorBody	"Rate limit exceeded"
//	@Failure		500		{object}	ErrorBody	"Rate limiter unavailable"
//	@Security		ApiKeyAuth
//	@Router			/usage [get]
func (h *UsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := IdentityFrom(ctx)
	if !ok {
		writeError(w, gate.ErrMissingCredentials, nil)
		return
	}

	days, ok := h.days(r)
	if !ok {
		writeError(w, gate.ErrorResponse{
			Status:  http.StatusBadRequest,
			Code:    gate.ErrBadRequest.Code,
			Message: "days must be an integer",
		}, nil)
		return
	}

	stats, err := h.tracker.Stats(ctx, usage.Query{APIKey: id.KeyID, UserID: id.UserID, Days: days})
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(ctx)).Msg("usage query failed")
		writeError(w, gate.ErrInternal, nil)
		return
	}

	info, _ := RateLimitFrom(ctx)
	writeData(w, r, h.clock.Now(), UsageData{
		UsageStats:    stats,
		RateLimitInfo: info,
		APIKey:        key.Mask(id.APIKey),
	}, Metadata{Days: &days})
}

// days parses the days parameter and clamps it to [0, maxDays].
func (h *UsageHandler) days(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.defaultDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if days < 0 {
		days = 0
	}
	if days > h.maxDays {
		days = h.maxDays
	}
	return days, true
}
