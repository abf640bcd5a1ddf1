package mocks

import (
	"context"
	"io"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"

	"github.com/voxanalyze/voxy/internal/pkg/analyze"
	dapi "github.com/voxanalyze/voxy/internal/pkg/asr/api"
	"github.com/voxanalyze/voxy/internal/pkg/callevent"
	sapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertCall(ctx context.Context, call *persistence.Call) (int64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(int64), args.Error(1)
}
func (m *DB) LoadCall(ctx context.Context, id int64) (*persistence.Call, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Call](args.Get(0)), args.Error(1)
}
func (m *DB) LoadCallByFilename(ctx context.Context, filename string) (*persistence.Call, error) {
	args := m.Called(ctx, filename)
	return to[*persistence.Call](args.Get(0)), args.Error(1)
}
func (m *DB) ListCalls(ctx context.Context, limit, offset int) ([]*persistence.Call, error) {
	args := m.Called(ctx, limit, offset)
	return to[[]*persistence.Call](args.Get(0)), args.Error(1)
}
func (m *DB) UpdateCallAnalysis(ctx context.Context, call *persistence.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}
func (m *DB) UpdateCallDiarization(ctx context.Context, id int64, segments []persistence.Segment, speakerCount int) error {
	args := m.Called(ctx, id, segments, speakerCount)
	return args.Error(0)
}
func (m *DB) MarkEmailSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DB) DeleteCall(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DB) LoadRecentAudioURLs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	return to[[]string](args.Get(0)), args.Error(1)
}
func (m *DB) LoadLastTurn(ctx context.Context, callID string) (*persistence.Turn, error) {
	args := m.Called(ctx, callID)
	return to[*persistence.Turn](args.Get(0)), args.Error(1)
}
func (m *DB) InsertTurn(ctx context.Context, turn *persistence.Turn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}
func (m *DB) UpdateTurnText(ctx context.Context, id int64, text string) error {
	args := m.Called(ctx, id, text)
	return args.Error(0)
}
func (m *DB) LoadTurns(ctx context.Context, callID string) ([]*persistence.Turn, error) {
	args := m.Called(ctx, callID)
	return to[[]*persistence.Turn](args.Get(0)), args.Error(1)
}
func (m *DB) UpsertCallStatus(ctx context.Context, item *persistence.CallStatus) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}
func (m *DB) LoadCallStatus(ctx context.Context, callID string) (*persistence.CallStatus, error) {
	args := m.Called(ctx, callID)
	return to[*persistence.CallStatus](args.Get(0)), args.Error(1)
}
func (m *DB) LoadActiveCalls(ctx context.Context) ([]*persistence.CallStatus, error) {
	args := m.Called(ctx)
	return to[[]*persistence.CallStatus](args.Get(0)), args.Error(1)
}
func (m *DB) InsertReport(ctx context.Context, report *persistence.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}
func (m *DB) LoadStats(ctx context.Context) (*persistence.Stats, error) {
	args := m.Called(ctx)
	return to[*persistence.Stats](args.Get(0)), args.Error(1)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Drive is storage provider mock
type Drive struct{ mock.Mock }

func (m *Drive) List(ctx context.Context, folderID string) ([]sapi.File, error) {
	args := m.Called(ctx, folderID)
	return to[[]sapi.File](args.Get(0)), args.Error(1)
}
func (m *Drive) FindByName(ctx context.Context, name, folderID string) (string, error) {
	args := m.Called(ctx, name, folderID)
	return args.String(0), args.Error(1)
}
func (m *Drive) Download(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	return to[[]byte](args.Get(0)), args.Error(1)
}
func (m *Drive) Upload(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error) {
	args := m.Called(ctx, name, folderID, mimeType, r)
	return args.String(0), args.Error(1)
}
func (m *Drive) StartPageToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *Drive) Changes(ctx context.Context, cursor string) (*sapi.ChangeList, error) {
	args := m.Called(ctx, cursor)
	return to[*sapi.ChangeList](args.Get(0)), args.Error(1)
}
func (m *Drive) Watch(ctx context.Context, channelID, callbackURL, cursor string) (*sapi.Channel, error) {
	args := m.Called(ctx, channelID, callbackURL, cursor)
	return to[*sapi.Channel](args.Get(0)), args.Error(1)
}
func (m *Drive) Stop(ctx context.Context, channelID, resourceID string) error {
	args := m.Called(ctx, channelID, resourceID)
	return args.Error(0)
}
func (m *Drive) DownloadURL(fileID string) string {
	args := m.Called(fileID)
	return args.String(0)
}

// Transcriber is speech-to-text client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, audio io.Reader, language string, speakers int) (*dapi.Result, error) {
	args := m.Called(ctx, audio, language, speakers)
	return to[*dapi.Result](args.Get(0)), args.Error(1)
}

// Analyzer is call analysis mock
type Analyzer struct{ mock.Mock }

func (m *Analyzer) Analyze(ctx context.Context, text string, segments []persistence.Segment) (*analyze.Result, error) {
	args := m.Called(ctx, text, segments)
	return to[*analyze.Result](args.Get(0)), args.Error(1)
}
func (m *Analyzer) Translate(ctx context.Context, text, language string) (string, error) {
	args := m.Called(ctx, text, language)
	return args.String(0), args.Error(1)
}
func (m *Analyzer) TranslateSegments(ctx context.Context, segments []persistence.Segment, language string) ([]persistence.Segment, error) {
	args := m.Called(ctx, segments, language)
	return to[[]persistence.Segment](args.Get(0)), args.Error(1)
}

// Downloader is recording fetch mock
type Downloader struct{ mock.Mock }

func (m *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	return to[[]byte](args.Get(0)), args.Error(1)
}

// Scanner is folder watcher mock
type Scanner struct{ mock.Mock }

func (m *Scanner) TriggerScan(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *Scanner) MarkSeen(id string) {
	m.Called(id)
}

// EventHandler is webhook reconcile mock
type EventHandler struct{ mock.Mock }

func (m *EventHandler) Handle(ctx context.Context, ev *callevent.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Notifier is broadcast hub mock
type Notifier struct{ mock.Mock }

func (m *Notifier) BroadcastJSON(v interface{}) {
	m.Called(v)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
