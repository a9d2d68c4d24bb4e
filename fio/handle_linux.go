//go:build linux

package fio

import "golang.org/x/sys/unix"

// 使用 OFD 锁: 锁归属于打开的文件描述, 同一进程内的不同句柄之间也会互斥
const lockCmd = unix.F_OFD_SETLK

// 预分配磁盘空间 保持文件长度不变
func fallocate(fd int, size int64) error {
	err := ignoringEINTR(func() error {
		return unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, size)
	})
	// 文件系统不支持时忽略
	if err == unix.EOPNOTSUPP {
		return nil
	}
	return err
}

func fadvise(fd int, options FileOptions) error {
	advice := unix.FADV_NORMAL
	switch {
	case options&OptionSequentialScan != 0:
		advice = unix.FADV_SEQUENTIAL
	case options&OptionRandomAccess != 0:
		advice = unix.FADV_RANDOM
	}
	return unix.Fadvise(fd, 0, 0, advice)
}
