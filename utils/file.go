package utils

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// AvailableDiskSize 获取指定路径所在文件系统的剩余可用空间
// path 不是目录时取其所在目录
func AvailableDiskSize(path string) (uint64, error) {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		path = filepath.Dir(path)
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
