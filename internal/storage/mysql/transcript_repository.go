package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// memoryWindow 是 JSONL 仓库在内存中保留的最近记录数。
const memoryWindow = 512

// TranscriptRecord 记录一轮对话的审计信息。
type TranscriptRecord struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"session_id"`
	Message       string `json:"message"`
	ChainID       string `json:"chain_id,omitempty"`
	Success       bool   `json:"success"`
	Category      string `json:"category,omitempty"`
	Response      string `json:"response,omitempty"`
	Error         string `json:"error,omitempty"`
	ToolCalls     string `json:"tool_calls,omitempty"`
	Iterations    int    `json:"iterations"`
	HistoryLength int    `json:"history_length"`
	CreatedAt     int64  `json:"created_at"`
}

// TranscriptRepository 抽象审计记录的持久化接口。
type TranscriptRepository interface {
	Save(ctx context.Context, record *TranscriptRecord) error
	ListLatest(ctx context.Context, limit int) ([]TranscriptRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error)
}

// MemoryTranscriptRepository 以 JSONL 文件追加写入审计记录，便于本地调试。
type MemoryTranscriptRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []TranscriptRecord
	nextID   int64
}

// NewMemoryTranscriptRepository 在 dataDir 下创建 transcripts.log 并恢复最近的记录。
func NewMemoryTranscriptRepository(dataDir string) (*MemoryTranscriptRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryTranscriptRepository{dataFile: filepath.Join(dataDir, "transcripts.log"), nextID: 1}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 追加一条记录并分配自增 ID。
func (m *MemoryTranscriptRepository) Save(_ context.Context, record *TranscriptRecord) error {
	if record == nil {
		return fmt.Errorf("审计记录不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化审计记录失败: %w", err)
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开审计日志失败: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}

	m.nextID++
	m.records = append([]TranscriptRecord{*record}, m.records...)
	if len(m.records) > memoryWindow {
		m.records = m.records[:memoryWindow]
	}
	return nil
}

// ListLatest 返回最近的记录，按写入时间倒序。
func (m *MemoryTranscriptRepository) ListLatest(_ context.Context, limit int) ([]TranscriptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]TranscriptRecord, limit)
	copy(out, m.records[:limit])
	return out, nil
}

// ListBySession 返回某个会话最近的记录。
func (m *MemoryTranscriptRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TranscriptRecord
	for _, record := range m.records {
		if record.SessionID != sessionID {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryTranscriptRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取审计日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []TranscriptRecord
	for scanner.Scan() {
		var record TranscriptRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID >= m.nextID {
			m.nextID = record.ID + 1
		}
		restored = append([]TranscriptRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析审计日志失败: %w", err)
	}

	if len(restored) > memoryWindow {
		restored = restored[:memoryWindow]
	}
	m.records = restored
	return nil
}

// SQLTranscriptRepository 把审计记录写入 MySQL 的 transcripts 表。
type SQLTranscriptRepository struct {
	db *sql.DB
}

// NewSQLTranscriptRepository 建立连接池并执行迁移。
func NewSQLTranscriptRepository(ctx context.Context, cfg Config) (*SQLTranscriptRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLTranscriptRepository{db: db}, nil
}

const insertTranscriptSQL = `INSERT INTO transcripts
    (session_id, message, chain_id, success, category, response, error_message, tool_calls, iterations, history_length, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectTranscriptColumns = `SELECT id, session_id, message, chain_id, success, category, response, error_message, tool_calls, iterations, history_length, created_at
    FROM transcripts`

// Save 写入一条记录并回填自增 ID。
func (s *SQLTranscriptRepository) Save(ctx context.Context, record *TranscriptRecord) error {
	if record == nil {
		return fmt.Errorf("审计记录不能为空")
	}
	result, err := s.db.ExecContext(ctx, insertTranscriptSQL,
		record.SessionID,
		record.Message,
		record.ChainID,
		record.Success,
		record.Category,
		record.Response,
		record.Error,
		record.ToolCalls,
		record.Iterations,
		record.HistoryLength,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 查询最近的若干条记录。
func (s *SQLTranscriptRepository) ListLatest(ctx context.Context, limit int) ([]TranscriptRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectTranscriptColumns+`
    ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	return scanTranscripts(rows)
}

// ListBySession 查询某个会话最近的记录。
func (s *SQLTranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectTranscriptColumns+`
    WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话审计记录失败: %w", err)
	}
	return scanTranscripts(rows)
}

func scanTranscripts(rows *sql.Rows) ([]TranscriptRecord, error) {
	defer rows.Close()

	var records []TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Message,
			&record.ChainID,
			&record.Success,
			&record.Category,
			&record.Response,
			&record.Error,
			&record.ToolCalls,
			&record.Iterations,
			&record.HistoryLength,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析审计记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历审计记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层连接池。
func (s *SQLTranscriptRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
