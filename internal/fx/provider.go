package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider fetches raw rates quoted against base from an upstream source.
type Provider interface {
	FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// HTTPProvider queries an exchangerate-api compatible endpoint: GET {baseURL}/{BASE}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

type ratesResponse struct {
	Base            string                     `json:"base"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// NewHTTPProvider builds a provider with the given request timeout and redirect limit.
func NewHTTPProvider(baseURL string, timeout time.Duration, maxRedirects int) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (p *HTTPProvider) FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, Normalize(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch rates: upstream status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	rates := body.Rates
	if len(rates) == 0 {
		rates = body.ConversionRates
	}
	if len(rates) == 0 {
		return nil, errors.New("decode rates: response has no rates")
	}
	return rates, nil
}
