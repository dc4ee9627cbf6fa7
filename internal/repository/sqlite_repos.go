package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// batchSize bounds the rows per multi-row INSERT so the statement stays
// under SQLite's bound-parameter limit.
const batchSize = 500

// SQLiteSourceRepository is a LogSourceRepository backed by a Store.
type SQLiteSourceRepository struct {
	store *Store
}

type sourceRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Type        string `db:"type"`
	Status      string `db:"status"`
	Endpoint    string `db:"endpoint"`
	Credentials string `db:"credentials"`
	Metadata    string `db:"metadata"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

const sourceColumns = `id, name, type, status, endpoint, credentials, metadata, created_at, updated_at`

func newSourceRow(source *domain.LogSource) (sourceRow, error) {
	creds, err := encodeJSON(source.Credentials())
	if err != nil {
		return sourceRow{}, err
	}
	meta, err := encodeJSON(source.Metadata())
	if err != nil {
		return sourceRow{}, err
	}
	return sourceRow{
		ID:          source.ID(),
		Name:        source.Name(),
		Type:        string(source.Type()),
		Status:      string(source.Status()),
		Endpoint:    source.Endpoint(),
		Credentials: creds,
		Metadata:    meta,
		CreatedAt:   toNanos(source.CreatedAt()),
		UpdatedAt:   toNanos(source.UpdatedAt()),
	}, nil
}

func (row sourceRow) toDomain() (*domain.LogSource, error) {
	props := domain.LogSourceProps{
		ID:        row.ID,
		Name:      row.Name,
		Type:      domain.SourceType(row.Type),
		Status:    domain.SourceStatus(row.Status),
		Endpoint:  row.Endpoint,
		CreatedAt: fromNanos(row.CreatedAt),
		UpdatedAt: fromNanos(row.UpdatedAt),
	}
	if err := decodeJSON(row.Credentials, &props.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials of source %s: %w", row.ID, err)
	}
	if err := decodeJSON(row.Metadata, &props.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of source %s: %w", row.ID, err)
	}
	return domain.RestoreLogSource(props)
}

func (r *SQLiteSourceRepository) Save(ctx context.Context, source *domain.LogSource) error {
	row, err := newSourceRow(source)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO log_sources (` + sourceColumns + `)
		VALUES (:id, :name, :type, :status, :endpoint, :credentials, :metadata, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, type = excluded.type, status = excluded.status,
			endpoint = excluded.endpoint, credentials = excluded.credentials,
			metadata = excluded.metadata, updated_at = excluded.updated_at
	`
	_, err = r.store.db.NamedExecContext(ctx, query, row)
	return err
}

func (r *SQLiteSourceRepository) Update(ctx context.Context, source *domain.LogSource) error {
	row, err := newSourceRow(source)
	if err != nil {
		return err
	}
	query := `
		UPDATE log_sources
		SET name = :name, type = :type, status = :status, endpoint = :endpoint,
		    credentials = :credentials, metadata = :metadata, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.store.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError("Log source", source.ID())
	}
	return nil
}

func (r *SQLiteSourceRepository) FindByID(ctx context.Context, id string) (*domain.LogSource, error) {
	var row sourceRow
	err := r.store.db.GetContext(ctx, &row, `SELECT `+sourceColumns+` FROM log_sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("Log source", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *SQLiteSourceRepository) FindAll(ctx context.Context) ([]*domain.LogSource, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM log_sources ORDER BY created_at, rowid`)
}

func (r *SQLiteSourceRepository) FindByType(ctx context.Context, sourceType domain.SourceType) ([]*domain.LogSource, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM log_sources WHERE type = ? ORDER BY created_at, rowid`, string(sourceType))
}

func (r *SQLiteSourceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.LogSource, error) {
	var rows []sourceRow
	if err := r.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*domain.LogSource, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SQLiteSourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM log_sources WHERE id = ?`, id)
	return err
}

type entryRow struct {
	ID          string         `db:"id"`
	SessionID   sql.NullString `db:"session_id"`
	Seq         int            `db:"seq"`
	SourceID    string         `db:"source_id"`
	Timestamp   int64          `db:"timestamp"`
	Level       string         `db:"level"`
	Message     string         `db:"message"`
	RawContent  []byte         `db:"raw_content"`
	Metadata    string         `db:"metadata"`
	Tags        string         `db:"tags"`
	CollectedAt int64          `db:"collected_at"`
}

const entryColumns = `id, session_id, seq, source_id, timestamp, level, message, raw_content, metadata, tags, collected_at`

const entryValues = `(:id, :session_id, :seq, :source_id, :timestamp, :level, :message, :raw_content, :metadata, :tags, :collected_at)`

func (s *Store) newEntryRow(e *domain.LogEntry, sessionID string, seq int) (entryRow, error) {
	meta, err := encodeJSON(e.Metadata())
	if err != nil {
		return entryRow{}, fmt.Errorf("encode metadata of entry %s: %w", e.ID(), err)
	}
	tags, err := encodeJSON(e.Tags())
	if err != nil {
		return entryRow{}, err
	}
	return entryRow{
		ID:          e.ID(),
		SessionID:   sql.NullString{String: sessionID, Valid: sessionID != ""},
		Seq:         seq,
		SourceID:    e.SourceID(),
		Timestamp:   toNanos(e.Timestamp()),
		Level:       string(e.Level()),
		Message:     e.Message(),
		RawContent:  s.compress(e.RawContent()),
		Metadata:    meta,
		Tags:        tags,
		CollectedAt: toNanos(e.CollectedAt()),
	}, nil
}

func (s *Store) entryFromRow(row entryRow) (*domain.LogEntry, error) {
	raw, err := s.decompress(row.RawContent)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	props := domain.LogEntryProps{
		ID:          row.ID,
		SourceID:    row.SourceID,
		Timestamp:   fromNanos(row.Timestamp),
		Level:       domain.LogLevel(row.Level),
		Message:     row.Message,
		RawContent:  raw,
		CollectedAt: fromNanos(row.CollectedAt),
	}
	if err := decodeJSON(row.Metadata, &props.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of entry %s: %w", row.ID, err)
	}
	if err := decodeJSON(row.Tags, &props.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of entry %s: %w", row.ID, err)
	}
	return domain.RestoreLogEntry(props)
}

// insertEntries writes entries in chunks. verb is the INSERT form, such as
// "INSERT OR IGNORE".
func (s *Store) insertEntries(ctx context.Context, ext sqlx.ExtContext, verb, sessionID string, firstSeq int, entries []*domain.LogEntry) error {
	rows := make([]entryRow, 0, len(entries))
	for i, e := range entries {
		row, err := s.newEntryRow(e, sessionID, firstSeq+i)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	query := verb + ` INTO log_entries (` + entryColumns + `) VALUES ` + entryValues
	return chunk(len(rows), batchSize, func(lo, hi int) error {
		_, err := sqlx.NamedExecContext(ctx, ext, query, rows[lo:hi])
		return err
	})
}

// SQLiteEntryRepository is a LogEntryRepository backed by a Store. It sees
// only entries saved outside of a session.
type SQLiteEntryRepository struct {
	store *Store
}

func (r *SQLiteEntryRepository) SaveBatch(ctx context.Context, entries []*domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.store.insertEntries(ctx, tx, "INSERT OR REPLACE", "", 0, entries)
	})
}

func (r *SQLiteEntryRepository) FindByID(ctx context.Context, id string) (*domain.LogEntry, error) {
	var row entryRow
	err := r.store.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM log_entries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("Log entry", id)
	}
	if err != nil {
		return nil, err
	}
	return r.store.entryFromRow(row)
}

func (r *SQLiteEntryRepository) FindBySourceID(ctx context.Context, sourceID string, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []entryRow
	query := `
		SELECT ` + entryColumns + ` FROM log_entries
		WHERE source_id = ? AND session_id IS NULL
		ORDER BY timestamp DESC, rowid
		LIMIT ?
	`
	if err := r.store.db.SelectContext(ctx, &rows, query, sourceID, limit); err != nil {
		return nil, err
	}
	return r.store.entriesFromRows(rows)
}

func (r *SQLiteEntryRepository) DeleteBySourceID(ctx context.Context, sourceID string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM log_entries WHERE source_id = ? AND session_id IS NULL`, sourceID)
	return err
}

func (s *Store) entriesFromRows(rows []entryRow) ([]*domain.LogEntry, error) {
	out := make([]*domain.LogEntry, 0, len(rows))
	for _, row := range rows {
		e, err := s.entryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type resultRow struct {
	ID               string `db:"id"`
	SessionID        string `db:"session_id"`
	SourceID         string `db:"source_id"`
	ModelType        string `db:"model_type"`
	AnalyzedLogCount int    `db:"analyzed_log_count"`
	AnomalyCount     int    `db:"anomaly_count"`
	Anomalies        string `db:"anomalies"`
	Summary          string `db:"summary"`
	StartTime        int64  `db:"start_time"`
	EndTime          int64  `db:"end_time"`
	CreatedAt        int64  `db:"created_at"`
}

const resultColumns = `id, session_id, source_id, model_type, analyzed_log_count, anomaly_count, anomalies, summary, start_time, end_time, created_at`

func newResultRow(res *domain.AnalysisResult) (resultRow, error) {
	anomalies := res.Anomalies()
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	encoded, err := encodeJSON(anomalies)
	if err != nil {
		return resultRow{}, fmt.Errorf("encode anomalies of result %s: %w", res.ID(), err)
	}
	return resultRow{
		ID:               res.ID(),
		SessionID:        res.SessionID(),
		SourceID:         res.SourceID(),
		ModelType:        res.ModelType(),
		AnalyzedLogCount: res.AnalyzedLogCount(),
		AnomalyCount:     len(anomalies),
		Anomalies:        encoded,
		Summary:          res.Summary(),
		StartTime:        toNanos(res.StartTime()),
		EndTime:          toNanos(res.EndTime()),
		CreatedAt:        toNanos(res.CreatedAt()),
	}, nil
}

func (row resultRow) toDomain() (*domain.AnalysisResult, error) {
	props := domain.AnalysisResultProps{
		ID:               row.ID,
		SessionID:        row.SessionID,
		SourceID:         row.SourceID,
		ModelType:        row.ModelType,
		AnalyzedLogCount: row.AnalyzedLogCount,
		Summary:          row.Summary,
		StartTime:        fromNanos(row.StartTime),
		EndTime:          fromNanos(row.EndTime),
		CreatedAt:        fromNanos(row.CreatedAt),
	}
	if err := decodeJSON(row.Anomalies, &props.Anomalies); err != nil {
		return nil, fmt.Errorf("decode anomalies of result %s: %w", row.ID, err)
	}
	return domain.RestoreAnalysisResult(props)
}

func insertResult(ctx context.Context, ext sqlx.ExtContext, verb string, res *domain.AnalysisResult) error {
	row, err := newResultRow(res)
	if err != nil {
		return err
	}
	query := verb + ` INTO analysis_results (` + resultColumns + `)
		VALUES (:id, :session_id, :source_id, :model_type, :analyzed_log_count, :anomaly_count,
		        :anomalies, :summary, :start_time, :end_time, :created_at)`
	_, err = sqlx.NamedExecContext(ctx, ext, query, row)
	return err
}

// SQLiteResultRepository is an AnalysisResultRepository backed by a Store.
type SQLiteResultRepository struct {
	store *Store
}

func (r *SQLiteResultRepository) Save(ctx context.Context, result *domain.AnalysisResult) error {
	return insertResult(ctx, r.store.db, "INSERT OR REPLACE", result)
}

func (r *SQLiteResultRepository) FindByID(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	var row resultRow
	err := r.store.db.GetContext(ctx, &row, `SELECT `+resultColumns+` FROM analysis_results WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("Analysis result", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *SQLiteResultRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.AnalysisResult, error) {
	found, err := r.list(ctx, `WHERE session_id = ?`, 1, sessionID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NotFoundError("Analysis result for session", sessionID)
	}
	return found[0], nil
}

func (r *SQLiteResultRepository) FindBySourceID(ctx context.Context, sourceID string, limit int) ([]*domain.AnalysisResult, error) {
	return r.list(ctx, `WHERE source_id = ?`, limit, sourceID)
}

func (r *SQLiteResultRepository) FindWithAnomalies(ctx context.Context) ([]*domain.AnalysisResult, error) {
	return r.list(ctx, `WHERE anomaly_count > 0`, 0)
}

// list returns results matching where, newest first.
func (r *SQLiteResultRepository) list(ctx context.Context, where string, limit int, args ...any) ([]*domain.AnalysisResult, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + resultColumns + ` FROM analysis_results ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	var rows []resultRow
	if err := r.store.db.SelectContext(ctx, &rows, query, append(args, limit)...); err != nil {
		return nil, err
	}
	out := make([]*domain.AnalysisResult, 0, len(rows))
	for _, row := range rows {
		res, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *SQLiteResultRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE id = ?`, id)
	return err
}

type sessionRow struct {
	ID               string         `db:"id"`
	SourceID         string         `db:"source_id"`
	Source           string         `db:"source"`
	StartTime        int64          `db:"start_time"`
	EndTime          int64          `db:"end_time"`
	ModelConfig      string         `db:"model_config"`
	Status           string         `db:"status"`
	AnalysisResultID sql.NullString `db:"analysis_result_id"`
	Error            string         `db:"error"`
	Version          int            `db:"version"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
}

const sessionColumns = `id, source_id, source, start_time, end_time, model_config, status, analysis_result_id, error, version, created_at, updated_at`

func newSessionRow(s *domain.LogAnalysisSession, version int) (sessionRow, error) {
	source, err := encodeJSON(s.Source().Snapshot())
	if err != nil {
		return sessionRow{}, err
	}
	cfg, err := encodeJSON(s.ModelConfig().Props())
	if err != nil {
		return sessionRow{}, fmt.Errorf("encode model config of session %s: %w", s.ID(), err)
	}
	row := sessionRow{
		ID:          s.ID(),
		SourceID:    s.Source().ID(),
		Source:      source,
		StartTime:   toNanos(s.TimeRange().Start()),
		EndTime:     toNanos(s.TimeRange().End()),
		ModelConfig: cfg,
		Status:      string(s.Status()),
		Error:       s.Error(),
		Version:     version,
		CreatedAt:   toNanos(s.CreatedAt()),
		UpdatedAt:   toNanos(s.UpdatedAt()),
	}
	if res := s.AnalysisResult(); res != nil {
		row.AnalysisResultID = sql.NullString{String: res.ID(), Valid: true}
	}
	return row, nil
}

// SQLiteSessionRepository is a SessionRepository backed by a Store.
//
// Entries of a session are append-only: Update inserts the entries beyond
// the stored count. The attached analysis result and the session's pending
// domain events are written in the same transaction, the events into the
// outbox.
type SQLiteSessionRepository struct {
	store *Store
}

func (r *SQLiteSessionRepository) Save(ctx context.Context, session *domain.LogAnalysisSession) error {
	row, err := newSessionRow(session, 1)
	if err != nil {
		return err
	}
	err = r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM sessions WHERE id = ?`, session.ID()); err != nil {
			return err
		}
		if exists > 0 {
			return domain.ConflictError("Session with ID %q already exists", session.ID())
		}
		query := `INSERT INTO sessions (` + sessionColumns + `)
			VALUES (:id, :source_id, :source, :start_time, :end_time, :model_config, :status,
			        :analysis_result_id, :error, :version, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return err
		}
		return r.writeChildren(ctx, tx, session, 0)
	})
	if err != nil {
		return err
	}
	session.SetVersion(1)
	return nil
}

func (r *SQLiteSessionRepository) Update(ctx context.Context, session *domain.LogAnalysisSession) error {
	expected := session.Version()
	row, err := newSessionRow(session, expected+1)
	if err != nil {
		return err
	}
	err = r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		var stored int
		err := tx.GetContext(ctx, &stored, `SELECT version FROM sessions WHERE id = ?`, session.ID())
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundError("Session", session.ID())
		}
		if err != nil {
			return err
		}
		if stored != expected {
			return domain.StaleVersionError("Session", session.ID(), expected, stored)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET source = ?, status = ?, analysis_result_id = ?, error = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			row.Source, row.Status, row.AnalysisResultID, row.Error, row.Version, row.UpdatedAt,
			row.ID, expected,
		)
		if err != nil {
			return err
		}

		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM log_entries WHERE session_id = ?`, session.ID()); err != nil {
			return err
		}
		return r.writeChildren(ctx, tx, session, count)
	})
	if err != nil {
		return err
	}
	session.SetVersion(expected + 1)
	return nil
}

// writeChildren stores the entries from index from onward, the analysis
// result and the pending events.
func (r *SQLiteSessionRepository) writeChildren(ctx context.Context, tx *sqlx.Tx, session *domain.LogAnalysisSession, from int) error {
	entries := session.LogEntries()
	if from < len(entries) {
		if err := r.store.insertEntries(ctx, tx, "INSERT OR IGNORE", session.ID(), from, entries[from:]); err != nil {
			return fmt.Errorf("insert entries of session %s: %w", session.ID(), err)
		}
	}
	if res := session.AnalysisResult(); res != nil {
		if err := insertResult(ctx, tx, "INSERT OR IGNORE", res); err != nil {
			return err
		}
	}
	return appendEvents(ctx, tx, session.PendingEvents())
}

func (r *SQLiteSessionRepository) FindByID(ctx context.Context, id string) (*domain.LogAnalysisSession, error) {
	found, err := r.list(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NotFoundError("Session", id)
	}
	return found[0], nil
}

func (r *SQLiteSessionRepository) FindBySourceID(ctx context.Context, sourceID string) ([]*domain.LogAnalysisSession, error) {
	return r.list(ctx, `WHERE source_id = ?`, sourceID)
}

func (r *SQLiteSessionRepository) FindActive(ctx context.Context) ([]*domain.LogAnalysisSession, error) {
	query, args, err := sqlx.In(`WHERE status IN (?)`, []string{
		string(domain.SessionPending),
		string(domain.SessionCollecting),
		string(domain.SessionAnalyzing),
	})
	if err != nil {
		return nil, err
	}
	return r.list(ctx, query, args...)
}

func (r *SQLiteSessionRepository) FindAll(ctx context.Context) ([]*domain.LogAnalysisSession, error) {
	return r.list(ctx, ``)
}

func (r *SQLiteSessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// list loads the sessions matching where, newest first, with their
// entries and results.
func (r *SQLiteSessionRepository) list(ctx context.Context, where string, args ...any) ([]*domain.LogAnalysisSession, error) {
	db := r.store.db
	var rows []sessionRow
	query := db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions ` + where + ` ORDER BY created_at DESC, id`)
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	var resultIDs []string
	for _, row := range rows {
		ids = append(ids, row.ID)
		if row.AnalysisResultID.Valid {
			resultIDs = append(resultIDs, row.AnalysisResultID.String)
		}
	}

	entries, err := r.loadEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	results, err := r.loadResults(ctx, resultIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.LogAnalysisSession, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain(entries[row.ID], results)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SQLiteSessionRepository) loadEntries(ctx context.Context, sessionIDs []string) (map[string][]*domain.LogEntry, error) {
	query, args, err := sqlx.In(`SELECT `+entryColumns+` FROM log_entries WHERE session_id IN (?) ORDER BY session_id, seq`, sessionIDs)
	if err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := r.store.db.SelectContext(ctx, &rows, r.store.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make(map[string][]*domain.LogEntry, len(sessionIDs))
	for _, row := range rows {
		e, err := r.store.entryFromRow(row)
		if err != nil {
			return nil, err
		}
		out[row.SessionID.String] = append(out[row.SessionID.String], e)
	}
	return out, nil
}

func (r *SQLiteSessionRepository) loadResults(ctx context.Context, ids []string) (map[string]*domain.AnalysisResult, error) {
	out := make(map[string]*domain.AnalysisResult, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+resultColumns+` FROM analysis_results WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []resultRow
	if err := r.store.db.SelectContext(ctx, &rows, r.store.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		res, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[row.ID] = res
	}
	return out, nil
}

func (row sessionRow) toDomain(entries []*domain.LogEntry, results map[string]*domain.AnalysisResult) (*domain.LogAnalysisSession, error) {
	var sourceProps domain.LogSourceProps
	if err := decodeJSON(row.Source, &sourceProps); err != nil {
		return nil, fmt.Errorf("decode source of session %s: %w", row.ID, err)
	}
	source, err := domain.RestoreLogSource(sourceProps)
	if err != nil {
		return nil, err
	}

	var cfgProps domain.DetectionModelConfigProps
	if err := decodeJSON(row.ModelConfig, &cfgProps); err != nil {
		return nil, fmt.Errorf("decode model config of session %s: %w", row.ID, err)
	}
	cfg, err := domain.NewDetectionModelConfig(cfgProps)
	if err != nil {
		return nil, err
	}

	tr, err := domain.NewTimeRange(fromNanos(row.StartTime), fromNanos(row.EndTime))
	if err != nil {
		return nil, err
	}

	props := domain.SessionProps{
		ID:          row.ID,
		Source:      source,
		TimeRange:   tr,
		ModelConfig: cfg,
		Status:      domain.SessionStatus(row.Status),
		LogEntries:  entries,
		Error:       row.Error,
		Version:     row.Version,
		CreatedAt:   fromNanos(row.CreatedAt),
		UpdatedAt:   fromNanos(row.UpdatedAt),
	}
	if row.AnalysisResultID.Valid {
		props.AnalysisResult = results[row.AnalysisResultID.String]
	}
	return domain.RestoreSession(props)
}

type outboxRow struct {
	Seq        int64  `db:"seq"`
	EventID    string `db:"event_id"`
	EventType  string `db:"event_type"`
	Payload    string `db:"payload"`
	OccurredAt int64  `db:"occurred_at"`
}

func appendEvents(ctx context.Context, ext sqlx.ExtContext, events []domain.DomainEvent) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", event.EventType(), err)
		}
		_, err = ext.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_outbox (event_id, event_type, payload, occurred_at) VALUES (?, ?, ?, ?)`,
			event.EventID(), event.EventType(), string(payload), toNanos(event.OccurredAt()),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SQLiteOutbox is an Outbox backed by a Store.
type SQLiteOutbox struct {
	store *Store
}

func (o *SQLiteOutbox) Append(ctx context.Context, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	return o.store.withTx(ctx, func(tx *sqlx.Tx) error {
		return appendEvents(ctx, tx, events)
	})
}

func (o *SQLiteOutbox) Pending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []outboxRow
	query := `
		SELECT seq, event_id, event_type, payload, occurred_at FROM event_outbox
		WHERE dispatched_at IS NULL
		ORDER BY seq
		LIMIT ?
	`
	if err := o.store.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	out := make([]OutboxRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, OutboxRecord{
			Seq:       row.Seq,
			EventID:   row.EventID,
			EventType: row.EventType,
			Payload:   []byte(row.Payload),
		})
	}
	return out, nil
}

func (o *SQLiteOutbox) MarkDispatched(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE event_outbox SET dispatched_at = ? WHERE seq IN (?)`, time.Now().UnixNano(), seqs)
	if err != nil {
		return err
	}
	if _, err := o.store.db.ExecContext(ctx, o.store.db.Rebind(query), args...); err != nil {
		return err
	}
	o.store.logger.Debug("outbox records dispatched", zap.Int("count", len(seqs)))
	return nil
}

var (
	_ LogSourceRepository      = (*SQLiteSourceRepository)(nil)
	_ LogEntryRepository       = (*SQLiteEntryRepository)(nil)
	_ SessionRepository        = (*SQLiteSessionRepository)(nil)
	_ AnalysisResultRepository = (*SQLiteResultRepository)(nil)
	_ Outbox                   = (*SQLiteOutbox)(nil)
)
