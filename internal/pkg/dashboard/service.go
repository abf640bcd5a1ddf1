package dashboard

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voxanalyze/voxy/internal/pkg/analyze"
	"github.com/voxanalyze/voxy/internal/pkg/api"
	"github.com/voxanalyze/voxy/internal/pkg/callevent"
	"github.com/voxanalyze/voxy/internal/pkg/messages"
	"github.com/voxanalyze/voxy/internal/pkg/persistence"
	"github.com/voxanalyze/voxy/internal/pkg/utils"
)

// DB provides call persistence
type DB interface {
	ListCalls(ctx context.Context, limit, offset int) ([]*persistence.Call, error)
	LoadStats(ctx context.Context) (*persistence.Stats, error)
	LoadCall(ctx context.Context, id int64) (*persistence.Call, error)
	LoadCallByFilename(ctx context.Context, filename string) (*persistence.Call, error)
	UpdateCallAnalysis(ctx context.Context, call *persistence.Call) error
	UpdateCallDiarization(ctx context.Context, id int64, segments []persistence.Segment, speakerCount int) error
	DeleteCall(ctx context.Context, id int64) error
	LoadTurns(ctx context.Context, callID string) ([]*persistence.Turn, error)
	LoadActiveCalls(ctx context.Context) ([]*persistence.CallStatus, error)
}

// Filer provides saved audio access
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Drive provides the storage folder
type Drive interface {
	FindByName(ctx context.Context, name, folderID string) (string, error)
	Upload(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error)
	DownloadURL(fileID string) string
}

// EventHandler reconciles telephony webhook events
type EventHandler interface {
	Handle(ctx context.Context, ev *callevent.Event) error
}

// Scanner triggers storage folder scans
type Scanner interface {
	TriggerScan(ctx context.Context) error
	MarkSeen(id string)
}

// Hub provides live event streams
type Hub interface {
	Subscribe() (<-chan []byte, func())
	BroadcastJSON(v interface{})
}

// Analyzer provides analysis and translation
type Analyzer interface {
	Analyze(ctx context.Context, text string, segments []persistence.Segment) (*analyze.Result, error)
	Translate(ctx context.Context, text, language string) (string, error)
	TranslateSegments(ctx context.Context, segments []persistence.Segment, language string) ([]persistence.Segment, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	Filer     Filer
	MsgSender MsgSender
	Drive     Drive
	Events    EventHandler
	Scanner   Scanner
	Hub       Hub
	Analyzer  Analyzer
	FolderID  string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VOXY dashboard service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 0 // streaming endpoints stay open

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Drive == nil {
		return fmt.Errorf("no drive")
	}
	if data.Events == nil {
		return fmt.Errorf("no event handler")
	}
	if data.Scanner == nil {
		return fmt.Errorf("no scanner")
	}
	if data.Hub == nil {
		return fmt.Errorf("no hub")
	}
	if data.Analyzer == nil {
		return fmt.Errorf("no analyzer")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxy_dashboard", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/api/vapi-webhook", vapiWebhook(data))
	e.POST("/webhook/drive", driveWebhook(data))
	e.GET("/api/notifications/stream", notificationStream(data))
	e.GET("/subscribe", subscribe(data))
	e.POST("/api/upload", upload(data))
	e.GET("/api/calls", listCalls(data))
	e.GET("/api/stats", stats(data))
	e.GET("/api/calls/:id", getCall(data))
	e.GET("/api/calls/active", activeCalls(data))
	e.GET("/api/transcripts/:id", getTranscripts(data))
	e.PUT("/api/calls/:id/diarization", updateDiarization(data))
	e.POST("/api/translate", translate(data))
	e.POST("/api/admin/reanalyze-call", reanalyzeCall(data))
	e.POST("/api/admin/delete-call", deleteCall(data))
	e.GET("/api/audio/:name", audio(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func vapiWebhook(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("vapiWebhook method")()
		ctx := c.Request().Context()
		// the provider retries on non 200, any failure is logged and acked
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't read body")
			return c.JSON(http.StatusOK, map[string]bool{"success": false})
		}
		ev, err := callevent.Parse(body)
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't parse event")
			return c.JSON(http.StatusOK, map[string]bool{"success": false})
		}
		if err := data.Events.Handle(ctx, ev); err != nil {
			goapp.Log.Error().Err(err).Send()
			return c.JSON(http.StatusOK, map[string]bool{"success": false})
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

const (
	resourceStateHeader = "X-Goog-Resource-State"
	channelIDHeader     = "X-Goog-Channel-ID"
)

// driveWebhook acknowledges storage push notifications.
// The payload carries no file info, any non sync state just triggers a scan.
func driveWebhook(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		state := c.Request().Header.Get(resourceStateHeader)
		goapp.Log.Info().Str("state", state).
			Str("channelID", c.Request().Header.Get(channelIDHeader)).Msg("storage notification")
		if state != "" && state != "sync" {
			go func() {
				if err := data.Scanner.TriggerScan(context.Background()); err != nil {
					goapp.Log.Error().Err(err).Msg("scan failed")
				}
			}()
		}
		return c.NoContent(http.StatusOK)
	}
}

func notificationStream(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ch, cancel := data.Hub.Subscribe()
		defer cancel()

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		c.Response().WriteHeader(http.StatusOK)
		c.Response().Flush()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", msg); err != nil {
					return nil
				}
				c.Response().Flush()
			}
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func subscribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return fmt.Errorf("can't upgrade connection: %w", err)
		}
		goapp.Log.Info().Str("remote", conn.RemoteAddr().String()).Msg("ws connection")
		ch, cancel := data.Hub.Subscribe()
		closeCh := make(chan struct{})
		go func() {
			defer close(closeCh)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		defer cancel()
		defer conn.Close()
		for {
			select {
			case <-closeCh:
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return nil
				}
			}
		}
	}
}

type uploadResult struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id,omitempty"`
	Queued   bool   `json:"queued"`
}

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()

		fh, err := c.FormFile(api.PrmFile)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no form file parameter 'file'")
		}
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !utils.SupportAudioExt(ext) {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong file extension: "+ext)
		}
		safeName, err := utils.SafeFileName(fh.Filename)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		existing, err := data.DB.LoadCallByFilename(ctx, fh.Filename)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if existing != nil {
			return echo.NewHTTPError(http.StatusConflict, "file already processed")
		}

		file, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't open file")
		}
		defer file.Close()
		if err := data.Filer.SaveFile(ctx, safeName, file, fh.Size); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		fileID, err := data.Drive.FindByName(ctx, fh.Filename, data.FolderID)
		if err != nil {
			goapp.Log.Warn().Err(err).Msg("can't check storage folder")
		}
		if fileID == "" {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError)
			}
			fileID, err = data.Drive.Upload(ctx, fh.Filename, data.FolderID, utils.AudioContentType(fh.Filename), file)
			if err != nil {
				goapp.Log.Warn().Err(err).Msg("can't mirror file to storage folder")
			}
		}
		if fileID != "" {
			data.Scanner.MarkSeen(fileID)
		}

		speakers, _ := strconv.Atoi(c.FormValue(api.PrmSpeakers))
		msg := &messages.ProcessMessage{QueueMessage: amessages.QueueMessage{ID: safeName},
			Filename: fh.Filename, StoredName: safeName, FileID: fileID,
			Language: c.FormValue(api.PrmLanguage), Speakers: speakers}
		if err := data.MsgSender.SendMessage(ctx, msg, messages.Process); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, uploadResult{Filename: fh.Filename, FileID: fileID, Queued: true})
	}
}

func listCalls(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("listCalls method")()
		ctx := c.Request().Context()
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		if offset < 0 {
			offset = 0
		}
		calls, err := data.DB.ListCalls(ctx, limit, offset)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if calls == nil {
			calls = []*persistence.Call{}
		}
		return c.JSON(http.StatusOK, calls)
	}
}

func stats(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		res, err := data.DB.LoadStats(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func getCall(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong ID")
		}
		call, err := data.DB.LoadCall(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return c.JSON(http.StatusOK, call)
	}
}

func activeCalls(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		res, err := data.DB.LoadActiveCalls(ctx)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if res == nil {
			res = []*persistence.CallStatus{}
		}
		return c.JSON(http.StatusOK, res)
	}
}

func getTranscripts(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		callID := c.Param("id")
		if callID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no ID")
		}
		turns, err := data.DB.LoadTurns(ctx, callID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if turns == nil {
			turns = []*persistence.Turn{}
		}
		return c.JSON(http.StatusOK, turns)
	}
}

type diarizationUpdate struct {
	Diarization []persistence.Segment `json:"diarization"`
}

func updateDiarization(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong ID")
		}
		var input diarizationUpdate
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if len(input.Diarization) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no diarization data")
		}
		speakers := map[string]struct{}{}
		for _, s := range input.Diarization {
			speakers[s.Speaker] = struct{}{}
		}
		if err := data.DB.UpdateCallDiarization(ctx, id, input.Diarization, len(speakers)); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

type translateInput struct {
	Transcript  string                `json:"transcript"`
	Language    string                `json:"language"`
	Diarization []persistence.Segment `json:"diarization_data"`
}

func translate(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("translate method")()
		ctx := c.Request().Context()
		var input translateInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		name := analyze.LanguageName(input.Language)
		if len(input.Diarization) > 0 {
			segments, err := data.Analyzer.TranslateSegments(ctx, input.Diarization, input.Language)
			if err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"success": true,
				"translated_diarization": segments, "language": name, "has_diarization": true})
		}
		if input.Transcript == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no transcript")
		}
		text, err := data.Analyzer.Translate(ctx, input.Transcript, input.Language)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true,
			"translated_text": text, "language": name, "has_diarization": false})
	}
}

type callIDInput struct {
	CallID int64 `json:"call_id"`
}

func reanalyzeCall(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("reanalyzeCall method")()
		ctx := c.Request().Context()
		var input callIDInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if input.CallID == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no call ID")
		}
		call, err := data.DB.LoadCall(ctx, input.CallID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound)
		}
		res, err := data.Analyzer.Analyze(ctx, call.Transcript, call.Diarization)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		call.Sentiment = res.Sentiment
		call.Tags = res.Tags
		call.Summary = res.Summary
		if err := data.DB.UpdateCallAnalysis(ctx, call); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, call)
	}
}

func deleteCall(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var input callIDInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if input.CallID == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no call ID")
		}
		if err := data.DB.DeleteCall(ctx, input.CallID); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

func audio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		name, err := utils.SafeFileName(c.Param("name"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		file, err := data.Filer.LoadFile(ctx, name)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound)
		}
		defer file.Close()
		return c.Stream(http.StatusOK, utils.AudioContentType(name), file)
	}
}
