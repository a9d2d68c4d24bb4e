package filestream

import "io"

// Position 当前逻辑位置
// 只保证读取本身的原子性, 不等待在途异步操作的修正
func (s *Stream) Position() int64 {
	return s.pos.Load()
}

// SetPosition 等价于 Seek(offset, io.SeekStart)
func (s *Stream) SetPosition(offset int64) error {
	_, err := s.Seek(offset, io.SeekStart)
	return err
}

// Seek 实现 io.Seeker
// 目标位置为负或位于追加起点之前时返回错误, 逻辑位置保持不变
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.ensureSeekable(); err != nil {
		return 0, err
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos.Load() + offset
	case io.SeekEnd:
		length, err := s.handle.Length()
		if err != nil {
			return 0, err
		}
		target = length + offset
	default:
		return 0, ErrInvalidWhence
	}

	if target < 0 {
		return 0, ErrInvalidOffset
	}
	if s.appendStart != noAppendStart && target < s.appendStart {
		return 0, ErrAppendViolation
	}
	s.pos.Store(target)
	return target, nil
}

// SetLength 设置文件长度 逻辑位置超出新长度时截断到新长度
func (s *Stream) SetLength(length int64) error {
	if err := s.ensureSeekable(); err != nil {
		return err
	}
	if !s.access.CanWrite() {
		return ErrUnsupportedDirection
	}
	if length < 0 {
		return ErrInvalidOffset
	}
	if s.appendStart != noAppendStart && length < s.appendStart {
		return ErrAppendViolation
	}

	if err := s.handle.Truncate(length); err != nil {
		return err
	}
	for {
		cur := s.pos.Load()
		if cur <= length || s.pos.CompareAndSwap(cur, length) {
			return nil
		}
	}
}

// reconcile 异步操作实际传输的字节数少于预留时, 归还未使用的部分
func (s *Stream) reconcile(expected, actual int64) {
	if delta := actual - expected; delta != 0 {
		s.pos.Add(delta)
	}
}
