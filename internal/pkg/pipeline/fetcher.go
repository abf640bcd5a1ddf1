package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Fetcher downloads recordings over plain HTTP
type Fetcher struct {
	httpclient *http.Client
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewFetcher creates a recording fetcher
func NewFetcher() *Fetcher {
	res := &Fetcher{}
	res.timeout = time.Minute * 10
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return res
}

// Fetch downloads url content
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, f.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, false, err
		}
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", goapp.Sanitize(url)).Str("method", req.Method).Msg("call")
		resp, err := f.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", goapp.Sanitize(url), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		res, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return res, false, nil
	}, f.backoff())
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
