package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"

	dapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
	"github.com/voxanalyze/voxy/internal/pkg/messages"
	"github.com/voxanalyze/voxy/internal/pkg/utils"
)

// Drive provides access to the storage provider
type Drive interface {
	List(ctx context.Context, folderID string) ([]dapi.File, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	Changes(ctx context.Context, cursor string) (*dapi.ChangeList, error)
	StartPageToken(ctx context.Context) (string, error)
	DownloadURL(fileID string) string
}

// DB loads processed audio references
type DB interface {
	LoadRecentAudioURLs(ctx context.Context, limit int) ([]string, error)
}

// Filer saves audio files
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// MsgSender sends messages to queue
type MsgSender interface {
	SendMessage(ctx context.Context, msg amessages.Message, queue string) error
}

// Data keeps the service dependencies
type Data struct {
	Drive         Drive
	DB            DB
	Filer         Filer
	MsgSender     MsgSender
	FolderID      string
	CheckInterval time.Duration
}

// Service watches the storage folder for new audio files.
// Scans are single flight: a scan request arriving while one is
// running is coalesced into it.
type Service struct {
	drive         Drive
	db            DB
	filer         Filer
	msgSender     MsgSender
	folderID      string
	checkInterval time.Duration

	lock   sync.Mutex
	seen   map[string]struct{}
	cursor string

	scanFlag chan struct{}
	// timeAfter is replaceable in tests
	timeAfter func(time.Duration) <-chan time.Time
}

const seedLimit = 1000

// NewService creates a watcher service
func NewService(data *Data) (*Service, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	res := &Service{drive: data.Drive, db: data.DB, filer: data.Filer,
		msgSender: data.MsgSender, folderID: data.FolderID,
		checkInterval: data.CheckInterval,
		seen:          map[string]struct{}{}, scanFlag: make(chan struct{}, 1),
		timeAfter: time.After}
	if res.checkInterval <= 0 {
		res.checkInterval = time.Minute * 5
	}
	return res, nil
}

func validate(data *Data) error {
	if data.Drive == nil {
		return fmt.Errorf("no drive")
	}
	if data.DB == nil {
		return fmt.Errorf("no db")
	}
	if data.Filer == nil {
		return fmt.Errorf("no filer")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.FolderID == "" {
		return fmt.Errorf("no folderID")
	}
	return nil
}

// Init seeds the seen set from processed calls and the live folder
// listing, then positions the change cursor at now
func (s *Service) Init(ctx context.Context) error {
	urls, err := s.db.LoadRecentAudioURLs(ctx, seedLimit)
	if err != nil {
		return fmt.Errorf("can't load recent audio urls: %w", err)
	}
	s.lock.Lock()
	for _, url := range urls {
		if id := extractFileID(url); id != "" {
			s.seen[id] = struct{}{}
		}
	}
	s.lock.Unlock()
	files, err := s.drive.List(ctx, s.folderID)
	if err != nil {
		return fmt.Errorf("can't list folder: %w", err)
	}
	s.lock.Lock()
	for _, f := range files {
		s.seen[f.ID] = struct{}{}
	}
	count := len(s.seen)
	s.lock.Unlock()
	cursor, err := s.drive.StartPageToken(ctx)
	if err != nil {
		return fmt.Errorf("can't get start page token: %w", err)
	}
	s.setCursor(cursor)
	goapp.Log.Info().Int("seen", count).Msg("watcher initialized")
	return nil
}

// Cursor returns the current change feed position
func (s *Service) Cursor() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cursor
}

func (s *Service) setCursor(cursor string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cursor = cursor
}

// Start runs the periodic scan loop until ctx is done
func (s *Service) Start(ctx context.Context) {
	go func() {
		goapp.Log.Info().Dur("interval", s.checkInterval).Msg("starting periodic scan")
		for {
			select {
			case <-ctx.Done():
				goapp.Log.Info().Msg("stopping periodic scan")
				return
			case <-s.timeAfter(s.checkInterval):
				if err := s.TriggerScan(ctx); err != nil {
					goapp.Log.Error().Err(err).Msg("scan failed")
				}
			}
		}
	}()
}

// TriggerScan runs one scan of the change feed.
// Returns immediately if a scan is already running.
func (s *Service) TriggerScan(ctx context.Context) error {
	select {
	case s.scanFlag <- struct{}{}:
	default:
		goapp.Log.Debug().Msg("scan already running")
		return nil
	}
	defer func() { <-s.scanFlag }()
	return s.scan(ctx)
}

func (s *Service) scan(ctx context.Context) error {
	cursor := s.Cursor()
	if cursor == "" {
		if err := s.scanListing(ctx); err != nil {
			return err
		}
		// take a cursor so the next scans use the change feed
		cursor, err := s.drive.StartPageToken(ctx)
		if err != nil {
			return fmt.Errorf("can't get start cursor: %w", err)
		}
		s.setCursor(cursor)
		return nil
	}
	for {
		list, err := s.drive.Changes(ctx, cursor)
		if err != nil {
			return fmt.Errorf("can't get changes: %w", err)
		}
		for _, change := range list.Changes {
			s.handleChange(ctx, &change)
		}
		if list.NextPageToken != "" {
			cursor = list.NextPageToken
			s.setCursor(cursor)
			continue
		}
		if list.NewStartPageToken != "" {
			s.setCursor(list.NewStartPageToken)
		}
		return nil
	}
}

// scanListing is the fallback full folder scan used before the
// change cursor is available
func (s *Service) scanListing(ctx context.Context) error {
	files, err := s.drive.List(ctx, s.folderID)
	if err != nil {
		return fmt.Errorf("can't list folder: %w", err)
	}
	for _, f := range files {
		f := f
		s.handleChange(ctx, &dapi.Change{FileID: f.ID, File: &f})
	}
	return nil
}

func (s *Service) handleChange(ctx context.Context, change *dapi.Change) {
	if change.Removed || change.File == nil || change.File.Trashed {
		return
	}
	f := change.File
	if !inFolder(f, s.folderID) {
		return
	}
	if !utils.SupportAudioExt(strings.ToLower(filepath.Ext(f.Name))) && !strings.Contains(f.MimeType, "audio") {
		return
	}
	if !s.markSeen(f.ID) {
		return
	}
	goapp.Log.Info().Str("name", f.Name).Str("ID", f.ID).Msg("new file detected")
	if err := s.process(ctx, f); err != nil {
		goapp.Log.Error().Err(err).Str("name", f.Name).Msg("can't process file")
	}
}

// MarkSeen marks a file ID as processed, used when recordings are
// mirrored into the watched folder by other components
func (s *Service) MarkSeen(id string) {
	s.markSeen(id)
}

// markSeen returns true if the file was not seen before.
// Files are marked before download, a failed download is not retried.
func (s *Service) markSeen(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Service) process(ctx context.Context, f *dapi.File) error {
	safeName, err := utils.SafeFileName(f.Name)
	if err != nil {
		return fmt.Errorf("can't make safe name: %w", err)
	}
	data, err := s.drive.Download(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("can't download: %w", err)
	}
	if err := s.filer.SaveFile(ctx, safeName, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("can't save file: %w", err)
	}
	msg := &messages.ProcessMessage{QueueMessage: amessages.QueueMessage{ID: f.ID},
		Filename: f.Name, StoredName: safeName, FileID: f.ID}
	if err := s.msgSender.SendMessage(ctx, msg, messages.Process); err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

func inFolder(f *dapi.File, folderID string) bool {
	if len(f.Parents) == 0 {
		return true
	}
	for _, p := range f.Parents {
		if p == folderID {
			return true
		}
	}
	return false
}

// extractFileID pulls the provider file ID out of a download URL
func extractFileID(url string) string {
	at := strings.Index(url, "id=")
	if at < 0 {
		return ""
	}
	res := url[at+3:]
	if amp := strings.Index(res, "&"); amp >= 0 {
		res = res[:amp]
	}
	return res
}
