package settings

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// MaxSessions is how many distinct sources the store remembers.
const MaxSessions = 20

// ErrNoSession is returned by Last when nothing has been recorded yet.
var ErrNoSession = errors.New("没有历史记录")

// Session is the set of inputs of one successful run
type Session struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	Location      string    `json:"location"`
	Model         string    `json:"model"`
	Scope         string    `json:"scope"`
	ExcludeMerges bool      `json:"exclude_merges"`
	Identity      string    `json:"identity"`
	Limit         int       `json:"limit"`
	Runs          int       `json:"runs"`
	LastUsed      time.Time `json:"last_used"`
}

// Store remembers recent sessions in a sqlite database
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *logrus.Logger
}

// Open opens (and creates if needed) the store at dbPath
func Open(dbPath string) (*Store, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// 确保数据库目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		now:    time.Now,
		logger: logger,
	}

	if err := s.initDatabase(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	return s, nil
}

// DefaultPath returns ~/.gitreport/history.db
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gitreport", "history.db")
	}
	return filepath.Join(home, ".gitreport", "history.db")
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetLogLevel sets the logging level
func (s *Store) SetLogLevel(level logrus.Level) {
	s.logger.SetLevel(level)
}

func (s *Store) initDatabase() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("读取schema文件失败: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("执行schema失败: %w", err)
	}

	s.logger.Debug("数据库初始化完成")
	return nil
}

// Record stores a session as the most recent one. A session for the same
// source replaces the earlier one and keeps its run count.
func (s *Store) Record(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	runs := 0
	err = tx.QueryRowContext(ctx,
		"SELECT runs FROM sessions WHERE kind = ? AND location = ?",
		sess.Kind, sess.Location,
	).Scan(&runs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("查询历史记录失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE kind = ? AND location = ?",
		sess.Kind, sess.Location,
	); err != nil {
		return fmt.Errorf("更新历史记录失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions
		(kind, location, model, scope, exclude_merges, identity, commit_limit, runs, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Kind, sess.Location, sess.Model, sess.Scope, sess.ExcludeMerges,
		sess.Identity, sess.Limit, runs+1, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("保存历史记录失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY id DESC LIMIT ?)",
		MaxSessions,
	); err != nil {
		return fmt.Errorf("清理历史记录失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	s.logger.Debugf("保存历史记录: %s %s", sess.Kind, sess.Location)
	return nil
}

// Recent returns up to n sessions, most recent first. n <= 0 means all.
func (s *Store) Recent(ctx context.Context, n int) ([]Session, error) {
	if n <= 0 {
		n = MaxSessions
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, location, model, scope, exclude_merges, identity, commit_limit, runs, last_used
		FROM sessions
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var lastUsed int64
		if err := rows.Scan(
			&sess.ID, &sess.Kind, &sess.Location, &sess.Model, &sess.Scope,
			&sess.ExcludeMerges, &sess.Identity, &sess.Limit, &sess.Runs, &lastUsed,
		); err != nil {
			return nil, fmt.Errorf("读取历史记录失败: %w", err)
		}
		sess.LastUsed = time.UnixMilli(lastUsed)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Last returns the most recent session.
func (s *Store) Last(ctx context.Context) (*Session, error) {
	sessions, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNoSession
	}
	return &sessions[0], nil
}

// Clear forgets every session and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("清空历史记录失败: %w", err)
	}

	n, _ := result.RowsAffected()
	s.logger.Infof("已清空 %d 条历史记录", n)
	return n, nil
}
