package connector

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// normalizeSide maps the side spellings seen across platforms onto the
// canonical enum. Anything unrecognized is "unknown", never an error.
func normalizeSide(side string) string {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy", "b", "long":
		return SideBuy
	case "sell", "s", "short":
		return SideSell
	default:
		return SideUnknown
	}
}

// normalizeSymbol substitutes the UNKNOWN marker for omitted instruments.
func normalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return SymbolUnknown
	}
	return symbol
}

// normalizeQuantity defaults omitted or nonsense sizes to 1.
func normalizeQuantity(qty int) int {
	if qty <= 0 {
		return 1
	}
	return qty
}

// parseUpstreamTime parses RFC3339 timestamps, returning nil for absent
// or unparseable values rather than failing the record.
func parseUpstreamTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

// applyListOptions attaches the optional date-range/limit filters to a
// trade listing request.
func applyListOptions(req *resty.Request, opts ListOptions) {
	if opts.Since != nil {
		req.SetQueryParam("startTimestamp", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(opts.Limit))
	}
}
