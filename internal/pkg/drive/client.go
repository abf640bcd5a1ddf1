package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"

	dapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
)

// Client communicates with the storage provider REST API
type Client struct {
	httpclient *http.Client
	apiURL     string
	token      string
	timeout    time.Duration
	dlTimeout  time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a storage provider client
func NewClient(apiURL, token string) (*Client, error) {
	res := Client{}
	if apiURL == "" {
		return nil, fmt.Errorf("no apiURL")
	}
	if token == "" {
		return nil, fmt.Errorf("no token")
	}
	res.apiURL = strings.TrimSuffix(apiURL, "/")
	res.token = token
	res.timeout = time.Second * 30
	res.dlTimeout = time.Minute * 10
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

// List returns audio files of the folder, newest first
func (cl *Client) List(ctx context.Context, folderID string) ([]dapi.File, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType contains 'audio' and trashed = false", folderID)
	prms := url.Values{}
	prms.Set("q", q)
	prms.Set("fields", "files(id, name, createdTime)")
	prms.Set("orderBy", "createdTime desc")
	var res struct {
		Files []dapi.File `json:"files"`
	}
	if err := cl.getJSON(ctx, fmt.Sprintf("%s/files?%s", cl.apiURL, prms.Encode()), cl.timeout, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// FindByName returns the ID of a file with the given name in the folder, empty if none
func (cl *Client) FindByName(ctx context.Context, name, folderID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", name, folderID)
	prms := url.Values{}
	prms.Set("q", q)
	prms.Set("fields", "files(id)")
	var res struct {
		Files []dapi.File `json:"files"`
	}
	if err := cl.getJSON(ctx, fmt.Sprintf("%s/files?%s", cl.apiURL, prms.Encode()), cl.timeout, &res); err != nil {
		return "", err
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].ID, nil
}

// Download returns the file content by ID
func (cl *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	urlStr := fmt.Sprintf("%s/files/%s?alt=media", cl.apiURL, fileID)
	return goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, cl.dlTimeout)
		defer cancelF()
		req, err := cl.newRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, false, err
		}
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
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return br, false, nil
	}, cl.backoff())
}

// Upload creates a new file in the folder, returns its ID
func (cl *Client) Upload(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	meta, err := json.Marshal(map[string]interface{}{"name": name, "parents": []string{folderID}})
	if err != nil {
		return "", fmt.Errorf("can't marshal metadata: %w", err)
	}
	mh := make(map[string][]string)
	mh["Content-Type"] = []string{"application/json; charset=UTF-8"}
	part, err := writer.CreatePart(mh)
	if err != nil {
		return "", fmt.Errorf("can't add metadata part: %w", err)
	}
	if _, err := part.Write(meta); err != nil {
		return "", fmt.Errorf("can't write metadata: %w", err)
	}
	fh := make(map[string][]string)
	fh["Content-Type"] = []string{mimeType}
	fPart, err := writer.CreatePart(fh)
	if err != nil {
		return "", fmt.Errorf("can't add file part: %w", err)
	}
	if _, err := io.Copy(fPart, r); err != nil {
		return "", fmt.Errorf("can't add file content: %w", err)
	}
	writer.Close()

	uploadURL := strings.Replace(cl.apiURL, "/drive/v3", "/upload/drive/v3", 1) +
		"/files?uploadType=multipart&fields=id"
	ctxT, cancelF := context.WithTimeout(ctx, cl.dlTimeout)
	defer cancelF()
	req, err := cl.newRequest(ctxT, http.MethodPost, uploadURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := cl.httpclient.Do(req)
	if err != nil {
		return "", fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return "", fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	var res dapi.File
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("can't unmarshal: %w", err)
	}
	if res.ID == "" {
		return "", fmt.Errorf("can't get ID from response")
	}
	return res.ID, nil
}

// StartPageToken fetches a fresh change feed cursor.
// Changes before the fetch are not visible through the new cursor.
func (cl *Client) StartPageToken(ctx context.Context) (string, error) {
	var res struct {
		StartPageToken string `json:"startPageToken"`
	}
	if err := cl.getJSON(ctx, fmt.Sprintf("%s/changes/startPageToken", cl.apiURL), cl.timeout, &res); err != nil {
		return "", err
	}
	if res.StartPageToken == "" {
		return "", fmt.Errorf("no startPageToken in response")
	}
	return res.StartPageToken, nil
}

// Changes fetches one page of the change feed
func (cl *Client) Changes(ctx context.Context, cursor string) (*dapi.ChangeList, error) {
	prms := url.Values{}
	prms.Set("pageToken", cursor)
	prms.Set("fields", "nextPageToken, newStartPageToken, changes(fileId, removed, file(id, name, mimeType, parents, trashed))")
	res := &dapi.ChangeList{}
	if err := cl.getJSON(ctx, fmt.Sprintf("%s/changes?%s", cl.apiURL, prms.Encode()), cl.timeout, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Watch registers a push notification channel for the change feed
func (cl *Client) Watch(ctx context.Context, channelID, callbackURL, cursor string) (*dapi.Channel, error) {
	body, err := json.Marshal(map[string]string{"id": channelID, "type": "web_hook", "address": callbackURL})
	if err != nil {
		return nil, fmt.Errorf("can't marshal body: %w", err)
	}
	prms := url.Values{}
	prms.Set("pageToken", cursor)
	urlStr := fmt.Sprintf("%s/changes/watch?%s", cl.apiURL, prms.Encode())
	ctxT, cancelF := context.WithTimeout(ctx, cl.timeout)
	defer cancelF()
	req, err := cl.newRequest(ctxT, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := cl.httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return nil, fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	res := &dapi.Channel{}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return nil, fmt.Errorf("can't unmarshal: %w", err)
	}
	return res, nil
}

// Stop unregisters a push notification channel
func (cl *Client) Stop(ctx context.Context, channelID, resourceID string) error {
	body, err := json.Marshal(map[string]string{"id": channelID, "resourceId": resourceID})
	if err != nil {
		return fmt.Errorf("can't marshal body: %w", err)
	}
	ctxT, cancelF := context.WithTimeout(ctx, cl.timeout)
	defer cancelF()
	req, err := cl.newRequest(ctxT, http.MethodPost, fmt.Sprintf("%s/channels/stop", cl.apiURL), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := cl.httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	return nil
}

// DownloadURL returns a direct download link usable as an audio reference
func (cl *Client) DownloadURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", fileID)
}

func (cl *Client) getJSON(ctx context.Context, urlStr string, timeout time.Duration, out interface{}) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, timeout)
		defer cancelF()
		req, err := cl.newRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, false, err
		}
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
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return nil, false, nil
	}, cl.backoff())
	return err
}

func (cl *Client) newRequest(ctx context.Context, method, urlStr string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, urlStr, body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+cl.token)
	return req, nil
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
