package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
	"github.com/voxanalyze/voxy/internal/pkg/utils"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertCall inserts a processed call, returns the new ID
func (db *DB) InsertCall(ctx context.Context, call *persistence.Call) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `INSERT INTO calls(filename, transcript, sentiment, tags, summary,
	duration, audio_url, diarization, speaker_count, email_sent, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`,
		call.Filename, call.Transcript, utils.ToSQLStr(call.Sentiment), call.Tags, call.Summary,
		call.Duration, utils.ToSQLStr(call.AudioURL), call.Diarization, call.SpeakerCount, call.EmailSent,
		time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("can't insert call: %w", err)
	}
	return id, nil
}

const callFields = `id, filename, transcript, sentiment, tags, summary, duration,
	audio_url, diarization, speaker_count, email_sent, created, updated`

func scanCall(row pgx.Row) (*persistence.Call, error) {
	var res persistence.Call
	var sentiment, audioURL sql.NullString
	err := row.Scan(&res.ID, &res.Filename, &res.Transcript, &sentiment, &res.Tags,
		&res.Summary, &res.Duration, &audioURL, &res.Diarization, &res.SpeakerCount,
		&res.EmailSent, &res.Created, &res.Updated)
	if err != nil {
		return nil, err
	}
	res.Sentiment = utils.FromSQLStr(sentiment)
	res.AudioURL = utils.FromSQLStr(audioURL)
	return &res, nil
}

// LoadCall loads a call by ID
func (db *DB) LoadCall(ctx context.Context, id int64) (*persistence.Call, error) {
	res, err := scanCall(db.pool.QueryRow(ctx, `SELECT `+callFields+` FROM calls WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("can't load call: %w", err)
	}
	return res, nil
}

// LoadCallByFilename loads a call by filename, nil if none exists
func (db *DB) LoadCallByFilename(ctx context.Context, filename string) (*persistence.Call, error) {
	res, err := scanCall(db.pool.QueryRow(ctx, `SELECT `+callFields+` FROM calls WHERE filename = $1`, filename))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load call: %w", err)
	}
	return res, nil
}

// ListCalls loads calls ordered newest first
func (db *DB) ListCalls(ctx context.Context, limit, offset int) ([]*persistence.Call, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+callFields+` FROM calls
	ORDER BY created DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("can't load calls: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("can't scan call: %w", err)
		}
		res = append(res, call)
	}
	return res, rows.Err()
}

// UpdateCallAnalysis rewrites analysis fields of a call
func (db *DB) UpdateCallAnalysis(ctx context.Context, call *persistence.Call) error {
	rows, err := db.pool.Exec(ctx, `UPDATE calls SET
	sentiment = $2,
	tags = $3,
	summary = $4,
	updated = $5
	WHERE id = $1`, call.ID, utils.ToSQLStr(call.Sentiment), call.Tags, call.Summary, time.Now())
	if err != nil {
		return fmt.Errorf("can't update call: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update call, no records found")
	}
	return nil
}

// UpdateCallDiarization rewrites the diarized segments of a call
func (db *DB) UpdateCallDiarization(ctx context.Context, id int64, segments []persistence.Segment, speakerCount int) error {
	rows, err := db.pool.Exec(ctx, `UPDATE calls SET
	diarization = $2,
	speaker_count = $3,
	updated = $4
	WHERE id = $1`, id, segments, speakerCount, time.Now())
	if err != nil {
		return fmt.Errorf("can't update diarization: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update diarization, no records found")
	}
	return nil
}

// MarkEmailSent marks the call notification as delivered
func (db *DB) MarkEmailSent(ctx context.Context, id int64) error {
	_, err := db.pool.Exec(ctx, `UPDATE calls SET email_sent = TRUE, updated = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("can't update call: %w", err)
	}
	return nil
}

// DeleteCall removes a call record
func (db *DB) DeleteCall(ctx context.Context, id int64) error {
	rows, err := db.pool.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("can't delete call: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't delete call, no records found")
	}
	return nil
}

// LoadRecentAudioURLs loads audio references of the newest calls, used to
// seed the watcher's seen set on startup
func (db *DB) LoadRecentAudioURLs(ctx context.Context, limit int) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT audio_url FROM calls ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("can't load audio urls: %w", err)
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("can't scan audio url: %w", err)
		}
		res = append(res, url)
	}
	return res, rows.Err()
}

// LoadLastTurn loads the newest transcript turn of a call, nil if none exists
func (db *DB) LoadLastTurn(ctx context.Context, callID string) (*persistence.Turn, error) {
	var res persistence.Turn
	err := db.pool.QueryRow(ctx, `SELECT id, call_id, role, text, updated FROM turns
	WHERE call_id = $1 ORDER BY id DESC LIMIT 1`, callID).Scan(&res.ID, &res.CallID,
		&res.Role, &res.Text, &res.Updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load turn: %w", err)
	}
	return &res, nil
}

// InsertTurn inserts a new transcript turn
func (db *DB) InsertTurn(ctx context.Context, turn *persistence.Turn) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO turns(call_id, role, text, updated)
	VALUES($1, $2, $3, $4)`, turn.CallID, turn.Role, turn.Text, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert turn: %w", err)
	}
	defer rows.Close()
	return nil
}

// UpdateTurnText rewrites the text of an existing turn
func (db *DB) UpdateTurnText(ctx context.Context, id int64, text string) error {
	rows, err := db.pool.Exec(ctx, `UPDATE turns SET text = $2, updated = $3 WHERE id = $1`,
		id, text, time.Now())
	if err != nil {
		return fmt.Errorf("can't update turn: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update turn, no records found")
	}
	return nil
}

// LoadTurns loads all transcript turns of a call in insert order
func (db *DB) LoadTurns(ctx context.Context, callID string) ([]*persistence.Turn, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, call_id, role, text, updated FROM turns
	WHERE call_id = $1 ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("can't load turns: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Turn
	for rows.Next() {
		var turn persistence.Turn
		if err := rows.Scan(&turn.ID, &turn.CallID, &turn.Role, &turn.Text, &turn.Updated); err != nil {
			return nil, fmt.Errorf("can't scan turn: %w", err)
		}
		res = append(res, &turn)
	}
	return res, rows.Err()
}

// UpsertCallStatus writes live call state keyed by call ID
func (db *DB) UpsertCallStatus(ctx context.Context, item *persistence.CallStatus) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO call_status(call_id, status, updated)
	VALUES($1, $2, $3)
	ON CONFLICT (call_id) DO UPDATE SET status = EXCLUDED.status, updated = EXCLUDED.updated`,
		item.CallID, item.Status, time.Now())
	if err != nil {
		return fmt.Errorf("can't upsert call status: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadCallStatus loads live call state, nil if none exists
func (db *DB) LoadCallStatus(ctx context.Context, callID string) (*persistence.CallStatus, error) {
	var res persistence.CallStatus
	err := db.pool.QueryRow(ctx, `SELECT call_id, status, updated FROM call_status
	WHERE call_id = $1`, callID).Scan(&res.CallID, &res.Status, &res.Updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load call status: %w", err)
	}
	return &res, nil
}

// LoadActiveCalls loads calls still marked in progress
func (db *DB) LoadActiveCalls(ctx context.Context) ([]*persistence.CallStatus, error) {
	rows, err := db.pool.Query(ctx, `SELECT call_id, status, updated FROM call_status
	WHERE status = 'in-progress' ORDER BY updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("can't load call status: %w", err)
	}
	defer rows.Close()
	var res []*persistence.CallStatus
	for rows.Next() {
		var item persistence.CallStatus
		if err := rows.Scan(&item.CallID, &item.Status, &item.Updated); err != nil {
			return nil, fmt.Errorf("can't scan call status: %w", err)
		}
		res = append(res, &item)
	}
	return res, rows.Err()
}

// InsertReport saves an end of call report
func (db *DB) InsertReport(ctx context.Context, report *persistence.Report) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO call_reports(call_id, ended_reason, summary,
	recording_url, duration, cost, created)
	VALUES($1, $2, $3, $4, $5, $6, $7)`, report.CallID, report.EndedReason, report.Summary,
		report.RecordingURL, report.Duration, report.Cost, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert report: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadStats returns aggregate call counts by sentiment
func (db *DB) LoadStats(ctx context.Context) (*persistence.Stats, error) {
	res := &persistence.Stats{}
	err := db.pool.QueryRow(ctx, `SELECT count(*),
	count(*) FILTER (WHERE sentiment = 'Positive'),
	count(*) FILTER (WHERE sentiment = 'Negative'),
	count(*) FILTER (WHERE sentiment = 'Neutral') FROM calls`).
		Scan(&res.Total, &res.Positive, &res.Negative, &res.Neutral)
	if err != nil {
		return nil, fmt.Errorf("can't load stats: %w", err)
	}
	return res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
