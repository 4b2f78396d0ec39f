package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/service"
	"github.com/ledger-scanner/internal/types"
)

// LedgerResponse is the wire shape of one ledger page after filtering.
type LedgerResponse struct {
	Legs          []*types.Leg             `json:"legs"`
	GasUSD        map[string]float64       `json:"gasUsd"`
	NextCursor    string                   `json:"nextCursor,omitempty"`
	HasNext       bool                     `json:"hasNext"`
	NetworkErrors map[types.ChainID]string `json:"networkErrors,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// SummaryResponse wraps the summary plus the partial-result flags of the
// underlying fetch.
type SummaryResponse struct {
	Summary       *service.Summary         `json:"summary"`
	NetworkErrors map[types.ChainID]string `json:"networkErrors,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// handleListLedger handles GET /api/v1/ledger.
//
// Query parameters: wallet (required), networks (comma separated, defaults
// to all configured), from/to (unix seconds), limit, cursor, minUsd,
// spamMode (off|soft|hard).
func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	params, filter, err := parseLedgerQuery(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	page, err := s.ledgerService.ListLegs(r.Context(), params)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, LedgerResponse{
		Legs:          service.FilterLegs(page.Legs, filter),
		GasUSD:        page.GasUSD,
		NextCursor:    page.NextCursor,
		HasNext:       page.HasNext,
		NetworkErrors: page.NetworkErrors,
		Warnings:      page.Warnings,
	})
}

// handleLedgerSummary handles GET /api/v1/ledger/summary. It accepts the
// same parameters as the ledger route and rolls the filtered page up.
func (s *Server) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	params, filter, err := parseLedgerQuery(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	page, err := s.ledgerService.ListLegs(r.Context(), params)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	legs := service.FilterLegs(page.Legs, filter)
	respondJSON(w, http.StatusOK, SummaryResponse{
		Summary:       service.BuildSummary(legs, page.GasUSD),
		NetworkErrors: page.NetworkErrors,
		Warnings:      page.Warnings,
	})
}

// parseLedgerQuery extracts pipeline and filter parameters from the query
// string. Validation beyond syntax is left to the service.
func parseLedgerQuery(r *http.Request) (service.ListParams, service.FilterOptions, error) {
	q := r.URL.Query()
	params := service.ListParams{
		Wallet: strings.ToLower(strings.TrimSpace(q.Get("wallet"))),
		Cursor: q.Get("cursor"),
	}
	filter := service.FilterOptions{Mode: service.SpamModeOff}

	if raw := q.Get("networks"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			params.Networks = append(params.Networks, types.ChainID(strings.ToLower(part)))
		}
	}

	if raw := q.Get("from"); raw != "" {
		ts, err := parseUnixParam("from", raw)
		if err != nil {
			return params, filter, err
		}
		params.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := parseUnixParam("to", raw)
		if err != nil {
			return params, filter, err
		}
		params.To = &ts
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return params, filter, errors.NewInvalidParameterError("limit", "must be a non-negative integer")
		}
		params.Limit = limit
	}

	if raw := q.Get("minUsd"); raw != "" {
		minUSD, err := strconv.ParseFloat(raw, 64)
		if err != nil || minUSD < 0 {
			return params, filter, errors.NewInvalidParameterError("minUsd", "must be a non-negative number")
		}
		filter.MinUSD = minUSD
	}

	if raw := q.Get("spamMode"); raw != "" {
		switch service.SpamMode(raw) {
		case service.SpamModeOff, service.SpamModeSoft, service.SpamModeHard:
			filter.Mode = service.SpamMode(raw)
		default:
			return params, filter, errors.NewInvalidParameterError("spamMode", fmt.Sprintf("unknown mode %q", raw))
		}
	}

	return params, filter, nil
}

func parseUnixParam(name, raw string) (time.Time, error) {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, errors.NewInvalidParameterError(name, "must be a unix timestamp in seconds")
	}
	return time.Unix(secs, 0).UTC(), nil
}
