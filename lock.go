package filestream

import (
	"math"

	"github.com/XiXi-2024/xixi-filestream/lockrange"
)

// Lock 对 [offset, offset+length) 加咨询锁, 需要写权限, 不阻塞
// 与本流已持有的范围重叠或被其他句柄持有时返回 ErrLockViolation
func (s *Stream) Lock(offset, length int64) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	r, err := lockRange(offset, length)
	if err != nil {
		return err
	}

	if !s.locks.Add(r) {
		return ErrLockViolation
	}
	if err := s.handle.LockRange(r.Offset, r.Length); err != nil {
		s.locks.Remove(r)
		return err
	}
	return nil
}

// Unlock 释放之前通过 Lock 获得的同一范围
func (s *Stream) Unlock(offset, length int64) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	r, err := lockRange(offset, length)
	if err != nil {
		return err
	}

	if !s.locks.Remove(r) {
		return ErrLockNotHeld
	}
	if err := s.handle.UnlockRange(r.Offset, r.Length); err != nil {
		s.locks.Add(r)
		return err
	}
	return nil
}

// 长度为 0 在 fcntl 中表示锁到文件末尾之后的全部范围, 这里不允许
func lockRange(offset, length int64) (lockrange.Range, error) {
	if offset < 0 || length < 0 {
		return lockrange.Range{}, ErrInvalidOffset
	}
	if length == 0 || offset > math.MaxInt64-length {
		return lockrange.Range{}, ErrInvalidArgument
	}
	return lockrange.Range{Offset: offset, Length: length}, nil
}

// Flush flushToDisk 为 true 且具有写权限时将数据刷写到存储设备, 否则什么也不做
func (s *Stream) Flush(flushToDisk bool) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if flushToDisk && s.access.CanWrite() {
		return s.rw.Sync()
	}
	return nil
}

// Sync 等价于 Flush(true)
func (s *Stream) Sync() error {
	return s.Flush(true)
}
