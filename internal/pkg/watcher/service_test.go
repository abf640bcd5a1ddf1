package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	dapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
	"github.com/voxanalyze/voxy/internal/pkg/messages"
	"github.com/voxanalyze/voxy/internal/pkg/test"
	"github.com/voxanalyze/voxy/internal/pkg/test/mocks"
)

var (
	driveMock *mocks.Drive
	wDBMock   *mocks.DB
	filerMock *mocks.Filer
	wSendMock *mocks.Sender
)

func initTest(t *testing.T) *Service {
	t.Helper()
	driveMock = &mocks.Drive{}
	wDBMock = &mocks.DB{}
	filerMock = &mocks.Filer{}
	wSendMock = &mocks.Sender{}
	srv, err := NewService(&Data{Drive: driveMock, DB: wDBMock, Filer: filerMock,
		MsgSender: wSendMock, FolderID: "folder", CheckInterval: time.Minute})
	require.Nil(t, err)
	return srv
}

func TestNewService_Fail(t *testing.T) {
	_, err := NewService(&Data{})
	assert.NotNil(t, err)
	_, err = NewService(&Data{Drive: &mocks.Drive{}, DB: &mocks.DB{}, Filer: &mocks.Filer{},
		MsgSender: &mocks.Sender{}})
	assert.NotNil(t, err)
}

func TestInit(t *testing.T) {
	srv := initTest(t)
	wDBMock.On("LoadRecentAudioURLs", mock.Anything, 1000).Return(
		[]string{"https://drive.google.com/uc?export=download&id=db1", "no-ref", ""}, nil)
	driveMock.On("List", mock.Anything, "folder").Return([]dapi.File{{ID: "live1", Name: "a.wav"}}, nil)
	driveMock.On("StartPageToken", mock.Anything).Return("pt10", nil)

	require.Nil(t, srv.Init(test.Ctx(t)))
	assert.Equal(t, "pt10", srv.Cursor())
	assert.False(t, srv.markSeen("db1"))
	assert.False(t, srv.markSeen("live1"))
	assert.True(t, srv.markSeen("other"))
}

func TestScan_NewFile(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	driveMock.On("Changes", mock.Anything, "pt1").Return(&dapi.ChangeList{
		Changes: []dapi.Change{
			{FileID: "f1", File: &dapi.File{ID: "f1", Name: "call one.mp3", Parents: []string{"folder"}}},
		}, NewStartPageToken: "pt2"}, nil)
	driveMock.On("Download", mock.Anything, "f1").Return([]byte("audio"), nil)
	filerMock.On("SaveFile", mock.Anything, "call_one.mp3", mock.Anything, int64(5)).Return(nil)
	wSendMock.On("SendMessage", mock.Anything, mock.Anything, messages.Process).Return(nil)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	assert.Equal(t, "pt2", srv.Cursor())

	msg := wSendMock.Calls[0].Arguments[1].(*messages.ProcessMessage)
	assert.Equal(t, "call one.mp3", msg.Filename)
	assert.Equal(t, "call_one.mp3", msg.StoredName)
	assert.Equal(t, "f1", msg.FileID)
	filerMock.AssertExpectations(t)
}

func TestScan_Pages(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	driveMock.On("Changes", mock.Anything, "pt1").Return(&dapi.ChangeList{NextPageToken: "pt2"}, nil)
	driveMock.On("Changes", mock.Anything, "pt2").Return(&dapi.ChangeList{NewStartPageToken: "pt3"}, nil)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	assert.Equal(t, "pt3", srv.Cursor())
}

func TestScan_Skips(t *testing.T) {
	tests := []struct {
		name   string
		change dapi.Change
	}{
		{name: "removed", change: dapi.Change{FileID: "f1", Removed: true}},
		{name: "no file", change: dapi.Change{FileID: "f1"}},
		{name: "trashed", change: dapi.Change{FileID: "f1", File: &dapi.File{ID: "f1", Name: "a.wav", Trashed: true}}},
		{name: "other folder", change: dapi.Change{FileID: "f1", File: &dapi.File{ID: "f1", Name: "a.wav", Parents: []string{"other"}}}},
		{name: "not audio", change: dapi.Change{FileID: "f1", File: &dapi.File{ID: "f1", Name: "a.txt", MimeType: "text/plain"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := initTest(t)
			srv.setCursor("pt1")
			driveMock.On("Changes", mock.Anything, "pt1").Return(&dapi.ChangeList{
				Changes: []dapi.Change{tc.change}, NewStartPageToken: "pt2"}, nil)

			require.Nil(t, srv.TriggerScan(test.Ctx(t)))
			driveMock.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
		})
	}
}

func TestScan_SkipsSeen(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	srv.markSeen("f1")
	driveMock.On("Changes", mock.Anything, "pt1").Return(&dapi.ChangeList{
		Changes: []dapi.Change{
			{FileID: "f1", File: &dapi.File{ID: "f1", Name: "a.wav", Parents: []string{"folder"}}},
		}, NewStartPageToken: "pt2"}, nil)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	driveMock.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestScan_MimeTypeOnly(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	driveMock.On("Changes", mock.Anything, "pt1").Return(&dapi.ChangeList{
		Changes: []dapi.Change{
			{FileID: "f1", File: &dapi.File{ID: "f1", Name: "recording", MimeType: "audio/mpeg"}},
		}, NewStartPageToken: "pt2"}, nil)
	driveMock.On("Download", mock.Anything, "f1").Return([]byte("a"), nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	wSendMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	driveMock.AssertCalled(t, "Download", mock.Anything, "f1")
}

func TestScan_DownloadFailureNotRetried(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	changes := &dapi.ChangeList{Changes: []dapi.Change{
		{FileID: "f1", File: &dapi.File{ID: "f1", Name: "a.wav", Parents: []string{"folder"}}},
	}, NewStartPageToken: "pt1"}
	driveMock.On("Changes", mock.Anything, "pt1").Return(changes, nil)
	driveMock.On("Download", mock.Anything, "f1").Return(nil, assert.AnError)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	driveMock.AssertNumberOfCalls(t, "Download", 1)
}

func TestScan_FallbackListing(t *testing.T) {
	srv := initTest(t)
	driveMock.On("List", mock.Anything, "folder").Return([]dapi.File{
		{ID: "f1", Name: "a.wav"}}, nil)
	driveMock.On("StartPageToken", mock.Anything).Return("pt9", nil)
	driveMock.On("Download", mock.Anything, "f1").Return([]byte("a"), nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	wSendMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	driveMock.AssertCalled(t, "List", mock.Anything, "folder")
	assert.Equal(t, "pt9", srv.Cursor())
	driveMock.AssertNotCalled(t, "Changes", mock.Anything, mock.Anything)
}

func TestTriggerScan_SingleFlight(t *testing.T) {
	srv := initTest(t)
	srv.setCursor("pt1")
	started, release := make(chan struct{}), make(chan struct{})
	var startedOnce sync.Once
	driveMock.On("Changes", mock.Anything, "pt1").Run(func(args mock.Arguments) {
		startedOnce.Do(func() { close(started) })
		<-release
	}).Return(&dapi.ChangeList{NewStartPageToken: "pt1"}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = srv.TriggerScan(test.Ctx(t))
	}()
	<-started
	// coalesced into the running scan
	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	close(release)
	wg.Wait()
	driveMock.AssertNumberOfCalls(t, "Changes", 1)

	// released after completion
	require.Nil(t, srv.TriggerScan(test.Ctx(t)))
	driveMock.AssertNumberOfCalls(t, "Changes", 2)
}

func TestMarkSeen_Concurrent(t *testing.T) {
	srv := initTest(t)
	var wg sync.WaitGroup
	won := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won <- srv.markSeen("f1")
		}()
	}
	wg.Wait()
	close(won)
	count := 0
	for ok := range won {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractFileID(t *testing.T) {
	assert.Equal(t, "abc", extractFileID("https://x/uc?export=download&id=abc"))
	assert.Equal(t, "abc", extractFileID("https://x/uc?id=abc&export=download"))
	assert.Equal(t, "", extractFileID("https://x/uc"))
}
