package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// FilingsHandler serves SEC filings from the parser service.
type FilingsHandler struct {
	source  ports.FilingSource
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector // optional
}

// NewFilingsHandler creates a filings handler. m may be nil.
func NewFilingsHandler(source ports.FilingSource, clk ports.Clock, logger zerolog.Logger, m *metrics.Collector) *FilingsHandler {
	return &FilingsHandler{source: source, clock: clk, logger: logger, metrics: m}
}

// ServeHTTP forwards the request to the parser service.
//
//	@Summary		Get filings
//	@Description	Lists a company's filings, or returns one filing when an accession number is given
//	@Tags			Filings
//	@Produce		json
//	@Param			cik			path		string	true	"Central Index Key (1-10 digits)"
//	@Param			accession	path		string	false	"Accession number (0000000000-00-000000)"
//	@Success		200			{object}	SuccessBody
//	@Failure		400			{object}	ErrorBody	"Invalid CIK or accession number"
//	@Failure		401			{object}	ErrorBody	"Missing or invalid credentials"
//	@Failure		404			{object}	ErrorBody	"Filing not found"
//	@Failure		429			{object}	ErrorBody	"Rate limit exceeded"
//	@Failure		502			{object}	ErrorBody	"Filing service unavailable"
//	@Security		ApiKeyAuth
//	@Router			/filings/{cik} [get]
//	@Router			/filings/{cik}/{accession} [get]
func (h *FilingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	cik := chi.URLParam(r, "cik")
	accession := chi.URLParam(r, "accession")
	if !ValidCIK(cik) || (accession != "" && !ValidAccession(accession)) {
		writeError(w, gate.ErrorResponse{
			Status:  http.StatusBadRequest,
			Code:    gate.ErrBadRequest.Code,
			Message: "Invalid CIK or accession number",
		}, nil)
		return
	}

	resp, err := h.source.Fetch(ctx, ports.FilingRequest{
		Path:      r.URL.Path,
		Query:     forwardQuery(r.URL.Query()),
		RequestID: reqID,
		Header:    r.Header,
	})
	if err != nil {
		h.upstreamError("transport")
		h.logger.Error().Err(err).Str("request_id", reqID).Msg("filing service request failed")
		writeError(w, gate.ErrUpstream, nil)
		return
	}
	if h.metrics != nil {
		h.metrics.UpstreamDuration.WithLabelValues(metrics.StatusClass(resp.Status)).Observe(float64(resp.LatencyMs) / 1000)
	}

	switch {
	case resp.Status == http.StatusNotFound:
		writeError(w, gate.ErrNotFound, nil)
		return
	case resp.Status >= 500:
		h.upstreamError("status")
		h.logger.Error().Int("status", resp.Status).Str("request_id", reqID).Msg("filing service error")
		writeError(w, gate.ErrUpstream, nil)
		return
	case resp.Status >= 400:
		writeError(w, gate.ErrBadRequest, nil)
		return
	}

	writeData(w, r, h.clock.Now(), filingData(resp), Metadata{})
}

func (h *FilingsHandler) upstreamError(kind string) {
	if h.metrics != nil {
		h.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
	}
}

// filingData embeds a JSON body as is and any other body as a string.
func filingData(resp ports.FilingResponse) any {
	if strings.Contains(resp.ContentType, "json") && json.Valid(resp.Body) {
		return json.RawMessage(resp.Body)
	}
	return string(resp.Body)
}

// forwardQuery drops credentials from the query string.
func forwardQuery(q url.Values) string {
	q.Del("api_key")
	return q.Encode()
}

// ValidCIK reports whether s is a Central Index Key: 1 to 10 digits.
// This is a PURE function.
func ValidCIK(s string) bool {
	if len(s) == 0 || len(s) > 10 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ValidAccession reports whether s is an accession number, with or
// without dashes (0000320193-24-000123 or 000032019324000123).
// This is a PURE function.
func ValidAccession(s string) bool {
	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != 18 {
		return false
	}
	if strings.Contains(s, "-") && (len(s) != 20 || s[10] != '-' || s[13] != '-') {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
