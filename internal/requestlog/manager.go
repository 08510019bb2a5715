package requestlog

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry 单条代理请求记录
type Entry struct {
	ID            int64  `json:"id"`
	CreatedAt     int64  `json:"created_at"` // unix 秒
	ClaudeModel   string `json:"claude_model"`
	UpstreamModel string `json:"upstream_model"`
	WireAPI       string `json:"wire_api"`
	Streaming     bool   `json:"streaming"`
	StatusCode    int    `json:"status_code"`
	DurationMS    int64  `json:"duration_ms"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
	SessionID     string `json:"session_id"`
	Error         string `json:"error,omitempty"`
	RequestBody   string `json:"request_body,omitempty"`
}

// Manager 请求日志管理器，SQLite 持久化
type Manager struct {
	mu sync.Mutex
	db *sql.DB
}

// NewManager 打开（必要时创建）日志数据库
func NewManager(dbPath string) (*Manager, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create request log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS request_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	claude_model TEXT NOT NULL,
	upstream_model TEXT NOT NULL,
	wire_api TEXT NOT NULL,
	streaming INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	session_id TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	request_body TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_request_logs_created ON request_logs(created_at);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create request log schema: %w", err)
	}

	return &Manager{db: db}, nil
}

// Record 写入一条记录
func (m *Manager) Record(entry Entry) error {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.Exec(`
INSERT INTO request_logs
	(created_at, claude_model, upstream_model, wire_api, streaming, status_code,
	 duration_ms, input_tokens, output_tokens, session_id, error, request_body)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CreatedAt, entry.ClaudeModel, entry.UpstreamModel, entry.WireAPI,
		boolToInt(entry.Streaming), entry.StatusCode, entry.DurationMS,
		entry.InputTokens, entry.OutputTokens, entry.SessionID, entry.Error, entry.RequestBody)
	return err
}

// RecordAsync 异步写入，失败只打日志
func (m *Manager) RecordAsync(entry Entry) {
	go func() {
		if err := m.Record(entry); err != nil {
			log.Printf("⚠️ 请求日志写入失败: %v", err)
		}
	}()
}

// Recent 按时间倒序返回最近 limit 条记录
func (m *Manager) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.Query(`
SELECT id, created_at, claude_model, upstream_model, wire_api, streaming, status_code,
	   duration_ms, input_tokens, output_tokens, session_id, error, request_body
FROM request_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var streaming int
		if err := rows.Scan(&entry.ID, &entry.CreatedAt, &entry.ClaudeModel, &entry.UpstreamModel,
			&entry.WireAPI, &streaming, &entry.StatusCode, &entry.DurationMS,
			&entry.InputTokens, &entry.OutputTokens, &entry.SessionID, &entry.Error, &entry.RequestBody); err != nil {
			return nil, err
		}
		entry.Streaming = streaming != 0
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CleanupOlderThan 删除早于保留窗口的记录，返回删除行数
func (m *Manager) CleanupOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.db.Exec("DELETE FROM request_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// StartCleanupLoop 启动后台保留期清理（每小时一次，启动时先清一轮）
func (m *Manager) StartCleanupLoop(retention time.Duration) {
	go func() {
		if deleted, err := m.CleanupOlderThan(retention); err != nil {
			log.Printf("⚠️ 请求日志清理失败: %v", err)
		} else if deleted > 0 {
			log.Printf("🗑️ 启动时清理了 %d 条过期请求日志", deleted)
		}

		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if deleted, err := m.CleanupOlderThan(retention); err != nil {
				log.Printf("⚠️ 请求日志清理失败: %v", err)
			} else if deleted > 0 {
				log.Printf("🗑️ 已清理 %d 条过期请求日志", deleted)
			}
		}
	}()
}

// Close 关闭数据库
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Close()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
