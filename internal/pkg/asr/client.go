package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"

	tapi "github.com/voxanalyze/voxy/internal/pkg/asr/api"
)

// Client communicates with the speech-to-text provider
type Client struct {
	httpclient    *http.Client
	uploadURL     string
	transcriptURL string
	key           string
	uploadTimeout time.Duration
	timeout       time.Duration
	pollInterval  time.Duration
	backoff       func() backoff.BackOff
	// timeAfter is replaceable in tests
	timeAfter func(time.Duration) <-chan time.Time
}

// NewClient creates a speech-to-text client
func NewClient(apiURL, key string) (*Client, error) {
	res := Client{}
	if apiURL == "" {
		return nil, fmt.Errorf("no apiURL")
	}
	if key == "" {
		return nil, fmt.Errorf("no key")
	}
	apiURL = strings.TrimSuffix(apiURL, "/")
	res.uploadURL = apiURL + "/upload"
	res.transcriptURL = apiURL + "/transcript"
	res.key = key
	res.uploadTimeout = time.Minute * 10
	res.timeout = time.Second * 50
	res.pollInterval = time.Second * 3
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	res.timeAfter = time.After
	return &res, nil
}

// Upload sends audio bytes, returns the provider's audio URL
func (cl *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("can't read audio: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, cl.uploadTimeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, cl.uploadURL, bytes.NewReader(data))
		if err != nil {
			return "", false, err
		}
		req = req.WithContext(ctx)
		req.Header.Set("authorization", cl.key)
		req.Header.Set("Content-Type", "application/octet-stream")
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := cl.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData struct {
			UploadURL string `json:"upload_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		if respData.UploadURL == "" {
			return "", false, fmt.Errorf("can't get upload_url from response")
		}
		return respData.UploadURL, false, nil
	}, cl.backoff())
}

// Submit starts a transcription job with diarization enabled, returns job ID
func (cl *Client) Submit(ctx context.Context, audioURL, language string, speakers int) (string, error) {
	prms := map[string]interface{}{"audio_url": audioURL, "speaker_labels": true}
	if language != "" && language != "auto" {
		prms["language_code"] = language
	} else {
		prms["language_detection"] = true
	}
	if speakers > 0 {
		prms["speakers_expected"] = speakers
	}
	body, err := json.Marshal(prms)
	if err != nil {
		return "", fmt.Errorf("can't marshal params: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, cl.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, cl.transcriptURL, bytes.NewReader(body))
		if err != nil {
			return "", false, err
		}
		req = req.WithContext(ctx)
		req.Header.Set("authorization", cl.key)
		req.Header.Set("Content-Type", "application/json")
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := cl.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		if respData.ID == "" {
			return "", false, fmt.Errorf("can't get ID from response")
		}
		return respData.ID, false, nil
	}, cl.backoff())
}

// JobStatus is raw provider job state
type JobStatus struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	Text          string           `json:"text"`
	AudioDuration float64          `json:"audio_duration"`
	LanguageCode  string           `json:"language_code"`
	Utterances    []tapi.Utterance `json:"utterances"`
	Error         string           `json:"error"`
}

// GetStatus fetches job state by ID
func (cl *Client) GetStatus(ctx context.Context, ID string) (*JobStatus, error) {
	return goapp.InvokeWithBackoff(ctx, func() (*JobStatus, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, cl.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", cl.transcriptURL, ID), nil)
		if err != nil {
			return nil, false, err
		}
		req = req.WithContext(ctx)
		req.Header.Set("authorization", cl.key)
		resp, err := cl.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		res := &JobStatus{}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, cl.backoff())
}

// Transcribe runs the full upload-submit-poll cycle.
// Polls at a fixed interval until the provider reports a terminal state,
// there is no attempt cap on this side.
func (cl *Client) Transcribe(ctx context.Context, audio io.Reader, language string, speakers int) (*tapi.Result, error) {
	audioURL, err := cl.Upload(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("can't upload: %w", err)
	}
	ID, err := cl.Submit(ctx, audioURL, language, speakers)
	if err != nil {
		return nil, fmt.Errorf("can't submit: %w", err)
	}
	goapp.Log.Info().Str("ID", ID).Msg("polling for transcript")
	for {
		st, err := cl.GetStatus(ctx, ID)
		if err != nil {
			return nil, fmt.Errorf("can't get status: %w", err)
		}
		switch st.Status {
		case tapi.StatusCompleted:
			goapp.Log.Info().Str("ID", ID).Float64("duration", st.AudioDuration).
				Int("utterances", len(st.Utterances)).Str("language", st.LanguageCode).Msg("transcribed")
			return &tapi.Result{Text: st.Text, Duration: st.AudioDuration,
				Language: st.LanguageCode, Utterances: st.Utterances}, nil
		case tapi.StatusError:
			return nil, fmt.Errorf("transcription failed: %s", st.Error)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-cl.timeAfter(cl.pollInterval):
		}
	}
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
