// Package file 提供限定在根目录内的文件存储
//
// 所有写入都落盘后才返回：覆盖写使用临时文件 + fsync + rename，
// 独占写使用 O_EXCL + fsync。
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

var (
	// ErrClosed 文件存储已关闭
	ErrClosed = errors.New("文件存储已关闭")
	// ErrNotExist 文件不存在
	ErrNotExist = errors.New("文件不存在")
	// ErrExist 独占写入时文件已存在
	ErrExist = errors.New("文件已存在")
	// ErrInvalidPath 路径越界或非法
	ErrInvalidPath = errors.New("非法路径")
)

// Store 根目录受限的文件存储
type Store struct {
	logger   log.Logger
	rootPath string
	mu       sync.RWMutex
	closed   bool
}

// New 创建文件存储并确保根目录存在
func New(rootPath string, logger log.Logger) (*Store, error) {
	logger = logpkg.OrNop(logger)
	if rootPath == "" {
		return nil, fmt.Errorf("%w: 根目录为空", ErrInvalidPath)
	}
	// 统一为绝对路径，避免相对路径导致的边界校验误判
	if abs, err := filepath.Abs(rootPath); err == nil {
		rootPath = abs
	}
	if err := os.MkdirAll(rootPath, dirPerm); err != nil {
		return nil, fmt.Errorf("无法创建文件存储根目录 %s: %w", rootPath, err)
	}
	logger.Infof("文件存储初始化成功，根目录: %s", rootPath)
	return &Store{logger: logger, rootPath: rootPath}, nil
}

// Root 返回根目录绝对路径
func (s *Store) Root() string {
	return s.rootPath
}

// WriteAtomic 原子覆盖写：写临时文件、fsync、rename，再 fsync 父目录
func (s *Store) WriteAtomic(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	fullPath, err := s.getFullPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		cleanup()
		return fmt.Errorf("替换文件失败: %w", err)
	}
	syncDir(dir)

	s.logger.Debugf("文件保存成功: %s", path)
	return nil
}

// WriteExclusive 独占写：目标已存在时返回 ErrExist，不修改已有内容
func (s *Store) WriteExclusive(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	fullPath, err := s.getFullPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExist
		}
		return fmt.Errorf("创建文件失败: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return fmt.Errorf("同步文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭文件失败: %w", err)
	}
	syncDir(dir)
	return nil
}

// Load 读取文件内容，不存在时返回 ErrNotExist
func (s *Store) Load(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	fullPath, err := s.getFullPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return data, nil
}

// Exists 检查文件是否存在
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	fullPath, err := s.getFullPath(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("检查文件存在性失败: %w", err)
	}
	return true, nil
}

// ListFiles 列出目录下带指定后缀的文件名（不含目录与临时文件），按名称排序
func (s *Store) ListFiles(ctx context.Context, dirPath, suffix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	fullDir := s.rootPath
	if dirPath != "" && dirPath != "." {
		var err error
		if fullDir, err = s.getFullPath(dirPath); err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(fullDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, suffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close 关闭存储，之后的调用返回 ErrClosed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func isWithinRoot(root, fullPath string) bool {
	rel, err := filepath.Rel(root, fullPath)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}

// getFullPath 获取完整路径，禁止绝对路径与 ".." 越界
func (s *Store) getFullPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w：空路径", ErrInvalidPath)
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w：不允许绝对路径: %s", ErrInvalidPath, path)
	}

	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w：禁止越界访问: %s", ErrInvalidPath, path)
	}

	full := filepath.Clean(filepath.Join(s.rootPath, cleaned))
	if !isWithinRoot(s.rootPath, full) {
		return "", fmt.Errorf("%w：越界访问: %s", ErrInvalidPath, path)
	}
	return full, nil
}

// syncDir 尽力 fsync 目录，使 rename/create 持久化
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
