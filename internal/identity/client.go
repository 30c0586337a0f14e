// Package identity resolves event owners to mailbox addresses against an
// OpenStack-Keystone-style identity API. All outbound HTTP calls route
// through a shared base client that enforces a circuit breaker, so a dead
// identity endpoint fails fast instead of stalling the pipeline on every
// event.
package identity

import (
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// baseClient wraps an *http.Client with a circuit breaker. The breaker
// counts transport errors and 5xx responses as failures and opens after a
// run of consecutive failures.
type baseClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newBaseClient(httpClient *http.Client) *baseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &baseClient{
		client:  httpClient,
		breaker: cb,
	}
}

// Do executes the request through the breaker. 5xx responses are treated as
// failures for breaker accounting and surfaced as errors; other statuses are
// returned as-is for the caller to interpret. The caller closes the body.
func (c *baseClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return nil, fmt.Errorf("identity endpoint returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
