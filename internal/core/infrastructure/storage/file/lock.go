package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockSuffix       = ".lock"
	lockPollInterval = 10 * time.Millisecond
)

// Lock 获取 path 对应的跨进程排他锁，返回的函数释放锁
//
// 锁文件为 <path>.lock，持有期间其他进程（或同进程的其他 Store）的 Lock 会等待，
// ctx 取消时放弃等待。
func (s *Store) Lock(ctx context.Context, path string) (func(), error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	fullPath, err := s.getFullPath(path + lockSuffix)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), dirPerm); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return nil, fmt.Errorf("打开锁文件失败: %w", err)
	}

	for {
		ok, err := tryLockFile(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("加锁失败 %s: %w", path, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	return func() {
		if err := unlockFile(f); err != nil {
			s.logger.Warnf("释放锁失败 %s: %v", path, err)
		}
		_ = f.Close()
	}, nil
}
