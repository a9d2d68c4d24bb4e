//go:build unix && !linux

package fio

import "golang.org/x/sys/unix"

// 非 linux 平台只有进程级 fcntl 锁
const lockCmd = unix.F_SETLK

func fallocate(fd int, size int64) error {
	return nil
}

func fadvise(fd int, options FileOptions) error {
	return nil
}
