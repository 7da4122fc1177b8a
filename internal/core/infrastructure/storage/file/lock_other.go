//go:build !unix && !windows

package file

import "os"

// 其他平台没有文件锁，只保证同一 Store 内的串行
func tryLockFile(*os.File) (bool, error) { return true, nil }

func unlockFile(*os.File) error { return nil }
