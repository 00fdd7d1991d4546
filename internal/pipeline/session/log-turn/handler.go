// internal/pipeline/session/log-turn/handler.go
package logturn

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/metrics"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
)

const (
	TaskType = "log-turn"

	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05.000000"
	filePrefix     = "turns_"
	fileSuffix     = ".jsonl"
	gitignoreBody  = "# Ignore all log files\n*.jsonl\n*.log\n"
)

var (
	ErrInvalidDate  = errors.New("INVALID_DATE")
	ErrNoLogs       = errors.New("NO_LOGS_IN_RANGE")
	ErrInvalidTable = errors.New("INVALID_TABLE_NAME")
	ErrLogRead      = errors.New("LOG_READ_FAILED")
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Handler appends completed turns to a daily JSONL file and, when a database
// is attached, to the turn log table.
type Handler struct {
	config *Config
	db     *sql.DB
	now    func() time.Time
	logger logger.Logger

	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewHandler returns a turn logger. db may be nil.
func NewHandler(config *Config, db *sql.DB, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = LoadConfig()
	}
	if config.Dir == "" {
		config.Dir = DefaultDir
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, config.Table)
	}

	return &Handler{
		config: config,
		db:     db,
		now:    time.Now,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}, nil
}

// Dir is the directory holding the daily files.
func (h *Handler) Dir() string {
	return h.config.Dir
}

// Append records one completed turn. The file write is synchronous; the
// table insert runs in the background under its own timeout. Failures are
// logged and never returned.
func (h *Handler) Append(ctx context.Context, meta models.TurnMetadata) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = h.now()
	}
	rec := h.record(meta, ts)
	if err := h.writeFile(rec); err != nil {
		metrics.StageFallbacks.WithLabelValues(TaskType, "file_error").Inc()
		h.logger.Error("failed to append turn log", map[string]interface{}{
			"dir":   h.config.Dir,
			"error": err.Error(),
		})
	}

	if h.db == nil {
		return
	}
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.Timeout)
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer cancel()
		if err := h.insert(insertCtx, ts, rec); err != nil {
			metrics.StageFallbacks.WithLabelValues(TaskType, "db_error").Inc()
			h.logger.Error("failed to insert turn log row", map[string]interface{}{
				"table": h.config.Table,
				"error": err.Error(),
			})
		}
	}()
}

// Flush waits for background inserts to finish or time out.
func (h *Handler) Flush() {
	h.pending.Wait()
}

func (h *Handler) record(meta models.TurnMetadata, ts time.Time) Record {
	model := meta.Model
	if model == "" {
		model = "unknown"
	}
	return Record{
		Timestamp:        float64(ts.UnixNano()) / 1e9,
		Datetime:         ts.Format(datetimeLayout),
		TokensIn:         meta.TokensIn,
		TokensOut:        meta.TokensOut,
		TotalTokens:      meta.TotalTokens(),
		Latency:          meta.Latency,
		Model:            model,
		Temperature:      meta.Temperature,
		RAGUsed:          meta.RAGUsed,
		RAGDocsRetrieved: meta.RAGDocsRetrieved,
		SearchUsed:       meta.SearchUsed,
		SearchResults:    meta.SearchResults,
		Cost:             meta.Cost,
		Redacted:         meta.Redacted,
		Refused:          meta.Refused,
		RefusalCategory:  meta.RefusalCategory,
		BudgetBlocked:    meta.BudgetBlocked,
		Cancelled:        meta.Cancelled,
		Error:            meta.Error,
		CitationsCount:   len(meta.Citations),
	}
}

func (h *Handler) writeFile(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureDir(); err != nil {
		return err
	}

	name := filepath.Join(h.config.Dir, filePrefix+h.now().Format(dateLayout)+fileSuffix)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// ensureDir creates the log directory with a .gitignore for its files.
func (h *Handler) ensureDir() error {
	if err := os.MkdirAll(h.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ignore := filepath.Join(h.config.Dir, ".gitignore")
	if _, err := os.Stat(ignore); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignore, []byte(gitignoreBody), 0o644); err != nil {
			return fmt.Errorf("write .gitignore: %w", err)
		}
	}
	return nil
}

func (h *Handler) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (
		logged_at, model, temperature, tokens_in, tokens_out, total_tokens, cost, latency,
		rag_used, rag_docs_retrieved, search_used, search_results, redacted, refused,
		refusal_category, budget_blocked, cancelled, error, citations_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		h.config.Table)
}

func (h *Handler) insert(ctx context.Context, ts time.Time, rec Record) error {
	_, err := h.db.ExecContext(ctx, h.insertQuery(),
		ts.UTC(), rec.Model, rec.Temperature, rec.TokensIn, rec.TokensOut, rec.TotalTokens,
		rec.Cost, rec.Latency, rec.RAGUsed, rec.RAGDocsRetrieved, rec.SearchUsed,
		rec.SearchResults, rec.Redacted, rec.Refused, rec.RefusalCategory, rec.BudgetBlocked,
		rec.Cancelled, rec.Error, rec.CitationsCount,
	)
	return err
}

// EnsureSchema creates the turn log table when it does not exist.
func (h *Handler) EnsureSchema(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	_, err := h.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id                 BIGSERIAL PRIMARY KEY,
		logged_at          TIMESTAMPTZ NOT NULL,
		model              TEXT NOT NULL,
		temperature        DOUBLE PRECISION NOT NULL,
		tokens_in          INTEGER NOT NULL,
		tokens_out         INTEGER NOT NULL,
		total_tokens       INTEGER NOT NULL,
		cost               DOUBLE PRECISION NOT NULL,
		latency            DOUBLE PRECISION NOT NULL,
		rag_used           BOOLEAN NOT NULL,
		rag_docs_retrieved INTEGER NOT NULL,
		search_used        BOOLEAN NOT NULL,
		search_results     INTEGER NOT NULL,
		redacted           BOOLEAN NOT NULL,
		refused            BOOLEAN NOT NULL,
		refusal_category   TEXT NOT NULL DEFAULT '',
		budget_blocked     BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled          BOOLEAN NOT NULL DEFAULT FALSE,
		error              BOOLEAN NOT NULL DEFAULT FALSE,
		citations_count    INTEGER NOT NULL
	)`, h.config.Table))
	if err != nil {
		return fmt.Errorf("create %s: %w", h.config.Table, err)
	}
	return nil
}

// Summary aggregates every daily file. A missing directory is an empty summary.
func (h *Handler) Summary() (*Summary, error) {
	files, err := h.files()
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, f := range files {
		recs, err := h.read(f.path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	s := &Summary{UniqueDays: len(files)}
	if len(records) == 0 {
		return &Summary{}, nil
	}
	s.TotalTurns = len(records)
	var latency float64
	for _, r := range records {
		s.TotalTokens += r.TotalTokens
		s.TotalCost += r.Cost
		latency += r.Latency
	}
	s.AvgLatency = latency / float64(len(records))
	return s, nil
}

// Export writes export_{start}_to_{end}.json into the log directory and returns
// its path. Empty dates default to today; an empty end defaults to start.
func (h *Handler) Export(start, end string) (string, error) {
	if start == "" {
		start = h.now().Format(dateLayout)
	}
	if end == "" {
		end = start
	}
	for _, d := range []string{start, end} {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidDate, d)
		}
	}

	files, err := h.files()
	if err != nil {
		return "", err
	}

	exp := Export{DateRange: DateRange{Start: start, End: end}}
	seen := map[string]struct{}{}
	var latency float64
	for _, f := range files {
		if f.date < start || f.date > end {
			continue
		}
		recs, err := h.read(f.path)
		if err != nil {
			return "", err
		}
		for _, r := range recs {
			exp.Turns = append(exp.Turns, r)
			exp.TotalTokens += r.TotalTokens
			exp.TotalCost += r.Cost
			latency += r.Latency
			seen[r.Model] = struct{}{}
			if r.RAGUsed {
				exp.RAGUsage++
			}
			if r.SearchUsed {
				exp.SearchUsage++
			}
			if r.Refused {
				exp.Refusals++
			}
		}
	}
	if len(exp.Turns) == 0 {
		return "", fmt.Errorf("%w: %s to %s", ErrNoLogs, start, end)
	}

	exp.TotalTurns = len(exp.Turns)
	exp.AvgLatency = latency / float64(exp.TotalTurns)
	for m := range seen {
		exp.ModelsUsed = append(exp.ModelsUsed, m)
	}
	sort.Strings(exp.ModelsUsed)

	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	path := filepath.Join(h.config.Dir, fmt.Sprintf("export_%s_to_%s.json", start, end))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	h.logger.Info("turn log exported", map[string]interface{}{
		"path":  path,
		"turns": exp.TotalTurns,
	})
	return path, nil
}

type logFile struct {
	path string
	date string
}

func (h *Handler) files() ([]logFile, error) {
	matches, err := filepath.Glob(filepath.Join(h.config.Dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogRead, err)
	}
	sort.Strings(matches)

	out := make([]logFile, 0, len(matches))
	for _, m := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), filePrefix), fileSuffix)
		out = append(out, logFile{path: m, date: date})
	}
	return out, nil
}

// read parses one daily file, skipping lines that are not valid records.
func (h *Handler) read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogRead, err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			h.logger.Warn("skipping malformed turn log line", map[string]interface{}{
				"file": filepath.Base(path),
			})
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogRead, err)
	}
	return out, nil
}
