package connector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// execute runs one upstream call after waiting on the limiter and
// classifies the outcome into the connector error taxonomy. There is no
// in-call retry: a failed attempt fails the sync step, and retry happens
// by rescheduling a fresh attempt.
func execute(ctx context.Context, limiter *rate.Limiter, platform string, req *resty.Request, method, path string) (*resty.Response, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, &UpstreamError{Platform: platform, Err: err}
	}

	if resp.IsError() {
		status := resp.StatusCode()
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, &AuthenticationError{Platform: platform, Status: status, Message: resp.String()}
		case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
			return nil, &UpstreamError{Platform: platform, Status: status}
		default:
			return nil, fmt.Errorf("%s request %s %s failed with status %s", platform, method, path, resp.Status())
		}
	}

	return resp, nil
}
