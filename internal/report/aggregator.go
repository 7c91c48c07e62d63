package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrDistrictNotFound is returned when the data service has no report for
// the requested district. Callers must not retry it.
var ErrDistrictNotFound = errors.New("district not found")

// Aggregator produces the full business-data report for a district.
type Aggregator interface {
	DistrictReport(ctx context.Context, districtID int) (*DistrictReport, error)
}

// HTTPAggregator implements Aggregator against the internal data service.
type HTTPAggregator struct {
	baseURL    string
	httpClient *http.Client
}

var _ Aggregator = (*HTTPAggregator)(nil)

// NewHTTPAggregator builds an aggregator client for the given base URL.
func NewHTTPAggregator(baseURL string) *HTTPAggregator {
	return &HTTPAggregator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *HTTPAggregator) DistrictReport(ctx context.Context, districtID int) (*DistrictReport, error) {
	url := fmt.Sprintf("%s/districts/%d/report", a.baseURL, districtID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating report request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("district %d: %w", districtID, ErrDistrictNotFound)
	default:
		return nil, fmt.Errorf("report request: unexpected status %d", resp.StatusCode)
	}

	var r DistrictReport
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}
