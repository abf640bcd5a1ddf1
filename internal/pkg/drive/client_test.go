package drive

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxanalyze/voxy/internal/pkg/test"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	method, URL, body, auth, contentType string
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, testReq{method: req.Method, URL: req.URL.String(),
			body: test.RStr(t, req.Body), auth: req.Header.Get("Authorization"),
			contentType: req.Header.Get("Content-Type")})
		resp, f := rData[req.Method+" "+req.URL.Path]
		if f {
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	cl := Client{}
	cl.httpclient = server.Client()
	cl.apiURL = server.URL
	cl.token = "test-token"
	cl.timeout = time.Second
	cl.dlTimeout = time.Second * 5
	cl.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &cl, &resRequest
}

func TestNewClient_Fail(t *testing.T) {
	_, err := NewClient("", "token")
	assert.NotNil(t, err)
	_, err = NewClient("http://server", "")
	assert.NotNil(t, err)
}

func TestList(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"GET /files": {code: 200, resp: `{"files":[{"id":"f1","name":"a.wav"},{"id":"f2","name":"b.mp3"}]}`}})

	res, err := cl.List(test.Ctx(t), "folder")
	require.Nil(t, err)
	require.Equal(t, 2, len(res))
	assert.Equal(t, "f1", res[0].ID)
	assert.Equal(t, "b.mp3", res[1].Name)
	require.Equal(t, 1, len(*tReq))
	assert.Contains(t, (*tReq)[0].URL, "folder")
	assert.Equal(t, "Bearer test-token", (*tReq)[0].auth)
}

func TestFindByName(t *testing.T) {
	cl, _ := initTestServer(t, map[string]testResp{
		"GET /files": {code: 200, resp: `{"files":[{"id":"f1"}]}`}})

	res, err := cl.FindByName(test.Ctx(t), "a.wav", "folder")
	require.Nil(t, err)
	assert.Equal(t, "f1", res)
}

func TestFindByName_None(t *testing.T) {
	cl, _ := initTestServer(t, map[string]testResp{
		"GET /files": {code: 200, resp: `{"files":[]}`}})

	res, err := cl.FindByName(test.Ctx(t), "a.wav", "folder")
	require.Nil(t, err)
	assert.Equal(t, "", res)
}

func TestDownload(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"GET /files/f1": {code: 200, resp: "audio data"}})

	res, err := cl.Download(test.Ctx(t), "f1")
	require.Nil(t, err)
	assert.Equal(t, []byte("audio data"), res)
	assert.Contains(t, (*tReq)[0].URL, "alt=media")
}

func TestDownload_Fail(t *testing.T) {
	cl, _ := initTestServer(t, map[string]testResp{
		"GET /files/f1": {code: 500, resp: ""}})

	_, err := cl.Download(test.Ctx(t), "f1")
	assert.NotNil(t, err)
}

func TestUpload(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"POST /files": {code: 200, resp: `{"id":"new1"}`}})

	res, err := cl.Upload(test.Ctx(t), "a.wav", "folder", "audio/wav", strings.NewReader("audio"))
	require.Nil(t, err)
	assert.Equal(t, "new1", res)
	require.Equal(t, 1, len(*tReq))
	assert.Contains(t, (*tReq)[0].contentType, "multipart/related")
	assert.Contains(t, (*tReq)[0].body, `"parents":["folder"]`)
	assert.Contains(t, (*tReq)[0].body, "audio")
}

func TestUpload_NoID(t *testing.T) {
	cl, _ := initTestServer(t, map[string]testResp{
		"POST /files": {code: 200, resp: `{}`}})

	_, err := cl.Upload(test.Ctx(t), "a.wav", "folder", "audio/wav", strings.NewReader("audio"))
	assert.NotNil(t, err)
}

func TestStartPageToken(t *testing.T) {
	cl, _ := initTestServer(t, map[string]testResp{
		"GET /changes/startPageToken": {code: 200, resp: `{"startPageToken":"c100"}`}})

	res, err := cl.StartPageToken(test.Ctx(t))
	require.Nil(t, err)
	assert.Equal(t, "c100", res)
}

func TestChanges(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"GET /changes": {code: 200, resp: `{"newStartPageToken":"c101",
		"changes":[{"fileId":"f1","file":{"id":"f1","name":"a.wav","mimeType":"audio/wav","parents":["folder"]}}]}`}})

	res, err := cl.Changes(test.Ctx(t), "c100")
	require.Nil(t, err)
	assert.Equal(t, "c101", res.NewStartPageToken)
	require.Equal(t, 1, len(res.Changes))
	assert.Equal(t, "a.wav", res.Changes[0].File.Name)
	assert.Contains(t, (*tReq)[0].URL, "pageToken=c100")
}

func TestWatch(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"POST /changes/watch": {code: 200, resp: `{"id":"ch1","resourceId":"r1","expiration":"1700000000000"}`}})

	res, err := cl.Watch(test.Ctx(t), "ch1", "https://cb/webhook/drive", "c100")
	require.Nil(t, err)
	assert.Equal(t, "ch1", res.ID)
	assert.Equal(t, "r1", res.ResourceID)
	assert.Equal(t, int64(1700000000000), res.Expiration)
	assert.Contains(t, (*tReq)[0].body, `"type":"web_hook"`)
	assert.Contains(t, (*tReq)[0].URL, "pageToken=c100")
}

func TestStop(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"POST /channels/stop": {code: 200, resp: ""}})

	err := cl.Stop(test.Ctx(t), "ch1", "r1")
	require.Nil(t, err)
	assert.Contains(t, (*tReq)[0].body, `"resourceId":"r1"`)
}

func TestDownloadURL(t *testing.T) {
	cl, _ := initTestServer(t, nil)
	assert.Equal(t, "https://drive.google.com/uc?export=download&id=f1", cl.DownloadURL("f1"))
}
