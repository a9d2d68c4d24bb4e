package filestream

import (
	"io"

	"github.com/XiXi-2024/xixi-filestream/fio"
)

// Read 在逻辑位置处执行一次定位读取, 读取的字节数可能少于 len(p)
// 逻辑位置按实际读取的字节数前进, 文件末尾返回 io.EOF
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.ensureReadable(); err != nil {
		return 0, err
	}
	if !s.handle.CanSeek() {
		return s.rw.Read(p, fio.CurrentOffset)
	}

	n, err := s.rw.Read(p, s.pos.Load())
	if n > 0 {
		s.pos.Add(int64(n))
	}
	return n, err
}

// Write 在逻辑位置处写入 p 的全部内容, 成功后逻辑位置前进 len(p)
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !s.handle.CanSeek() {
		return s.rw.Write(p, fio.CurrentOffset)
	}

	n, err := s.rw.Write(p, s.pos.Load())
	if err != nil {
		return n, err
	}
	s.pos.Add(int64(n))
	return n, nil
}

// ReadByte 实现 io.ByteReader
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return b[0], nil
}

// WriteByte 实现 io.ByteWriter
func (s *Stream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// ReadAt 实现 io.ReaderAt, 不改变逻辑位置
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.ensureReadable(); err != nil {
		return 0, err
	}
	if !s.handle.CanSeek() {
		return 0, ErrNotSeekable
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}

	var read int
	for read < len(p) {
		n, err := s.rw.Read(p[read:], off+int64(read))
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// WriteAt 实现 io.WriterAt, 不改变逻辑位置
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}
	if !s.handle.CanSeek() {
		return 0, ErrNotSeekable
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if s.appendStart != noAppendStart && off < s.appendStart {
		return 0, ErrAppendViolation
	}
	return s.rw.Write(p, off)
}
