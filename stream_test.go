package filestream

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStream(t *testing.T, mode FileMode, access FileAccess) (*Stream, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.data")
	s, err := OpenFile(path, mode, access, DefaultOptions)
	require.Nil(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func testBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// 新建文件写入 100 字节, 回到开头读取 50 字节
func TestOpen_WriteSeekRead(t *testing.T) {
	s, _ := openTestStream(t, ModeCreateNew, AccessReadWrite)
	data := testBytes(100)

	n, err := s.Write(data)
	assert.Nil(t, err)
	assert.Equal(t, 100, n)

	length, err := s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(100), length)
	assert.Equal(t, int64(100), s.Position())

	pos, err := s.Seek(0, io.SeekStart)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, int64(0), s.Position())

	buf := make([]byte, 50)
	n, err = s.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, int64(50), s.Position())
	assert.Equal(t, data[:50], buf)
}

// 追加模式打开长度为 10 的文件
func TestOpen_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, testBytes(10), 0644))

	s, err := OpenFile(path, ModeAppend, AccessWrite, DefaultOptions)
	require.Nil(t, err)
	defer s.Close()

	assert.Equal(t, int64(10), s.Position())
	assert.Equal(t, int64(10), s.appendStart)

	_, err = s.Seek(5, io.SeekStart)
	assert.ErrorIs(t, err, ErrAppendViolation)
	assert.Equal(t, int64(10), s.Position())

	pos, err := s.Seek(10, io.SeekStart)
	assert.Nil(t, err)
	assert.Equal(t, int64(10), pos)

	// 相对定位同样受限
	_, err = s.Seek(-1, io.SeekCurrent)
	assert.ErrorIs(t, err, ErrAppendViolation)
	_, err = s.Seek(-1, io.SeekEnd)
	assert.ErrorIs(t, err, ErrAppendViolation)
	assert.Equal(t, int64(10), s.Position())

	n, err := s.Write([]byte("xixi"))
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(14), s.Position())

	// 追加写入不影响已有数据
	content, err := os.ReadFile(path)
	assert.Nil(t, err)
	assert.Equal(t, append(testBytes(10), []byte("xixi")...), content)

	// 截断到追加起点之前失败且不改变文件长度
	assert.ErrorIs(t, s.SetLength(5), ErrAppendViolation)
	length, err := s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(14), length)

	assert.Nil(t, s.SetLength(10))
	assert.Equal(t, int64(10), s.Position())
}

// 追加模式打开空文件时追加起点为 0
func TestOpen_AppendNewFile(t *testing.T) {
	s, _ := openTestStream(t, ModeAppend, AccessWrite)
	assert.Equal(t, int64(0), s.Position())
	assert.Equal(t, int64(0), s.appendStart)
	assert.False(t, s.CanRead())
	assert.True(t, s.CanWrite())
}

func TestOpen_InvalidArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.data")

	tests := []struct {
		name     string
		path     string
		mode     FileMode
		access   FileAccess
		share    FileShare
		prealloc int64
		options  Options
		wantErr  error
	}{
		{"empty path", "", ModeCreate, AccessReadWrite, ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"unknown mode", path, FileMode(42), AccessReadWrite, ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"unknown access", path, ModeCreate, FileAccess(0), ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"unknown share", path, ModeCreate, AccessReadWrite, FileShare(16), 0, DefaultOptions, ErrInvalidArgument},
		{"append with read", path, ModeAppend, AccessReadWrite, ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"truncate read only", path, ModeTruncate, AccessRead, ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"create read only", path, ModeCreate, AccessRead, ShareRead, 0, DefaultOptions, ErrInvalidArgument},
		{"negative preallocation", path, ModeCreate, AccessReadWrite, ShareRead, -1, DefaultOptions, ErrInvalidArgument},
		{"preallocation on open", path, ModeOpen, AccessReadWrite, ShareRead, 10, DefaultOptions, ErrInvalidArgument},
		{"memory map with write", path, ModeCreate, AccessReadWrite, ShareRead, 0, Options{IOType: MemoryMap}, ErrTypeUnsupported},
		{"unknown io type", path, ModeCreate, AccessReadWrite, ShareRead, 0, Options{IOType: 9}, ErrInvalidOptions},
		{"negative concurrency", path, ModeCreate, AccessReadWrite, ShareRead, 0, Options{MaxConcurrentIO: -1}, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.path, tt.mode, tt.access, tt.share, OptionNone, tt.prealloc, DefaultFilePerm, tt.options)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// 参数校验失败不会创建文件
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_Modes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.data")

	// 文件不存在
	_, err := OpenFile(path, ModeOpen, AccessRead, DefaultOptions)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = OpenFile(path, ModeTruncate, AccessWrite, DefaultOptions)
	assert.ErrorIs(t, err, os.ErrNotExist)

	s, err := OpenFile(path, ModeCreateNew, AccessWrite, DefaultOptions)
	require.Nil(t, err)
	_, err = s.Write([]byte("hello"))
	assert.Nil(t, err)
	assert.Nil(t, s.Close())

	// 文件已存在
	_, err = OpenFile(path, ModeCreateNew, AccessWrite, DefaultOptions)
	assert.ErrorIs(t, err, os.ErrExist)

	// OpenOrCreate 保留内容
	s, err = OpenFile(path, ModeOpenOrCreate, AccessReadWrite, DefaultOptions)
	require.Nil(t, err)
	length, err := s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(5), length)
	assert.Equal(t, int64(0), s.Position())
	assert.Nil(t, s.Close())

	// Create 截断已有文件
	s, err = OpenFile(path, ModeCreate, AccessReadWrite, DefaultOptions)
	require.Nil(t, err)
	length, err = s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), length)
	_, err = s.Write([]byte("world"))
	assert.Nil(t, err)
	assert.Nil(t, s.Close())

	// Truncate 截断已有文件
	s, err = OpenFile(path, ModeTruncate, AccessWrite, DefaultOptions)
	require.Nil(t, err)
	length, err = s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), length)
	assert.Nil(t, s.Close())
}

func TestOpen_Directory(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFile(dir, ModeOpen, AccessRead, DefaultOptions)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestOpen_ShareNone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	s1, err := Open(path, ModeCreateNew, AccessReadWrite, ShareNone, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)

	s2, err := Open(path, ModeOpen, AccessRead, ShareReadWrite, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	assert.Nil(t, s2)
	assert.ErrorIs(t, err, ErrSharingViolation)

	// 关闭共享锁检查
	opts := DefaultOptions
	opts.DisableFileLocking = true
	s3, err := Open(path, ModeOpen, AccessRead, ShareReadWrite, OptionNone, 0, DefaultFilePerm, opts)
	assert.Nil(t, err)
	assert.Nil(t, s3.Close())

	// 释放后可以再次打开
	assert.Nil(t, s1.Close())
	s2, err = Open(path, ModeOpen, AccessRead, ShareReadWrite, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	assert.Nil(t, err)
	assert.Nil(t, s2.Close())
}

func TestOpen_ShareRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	s1, err := Open(path, ModeCreateNew, AccessReadWrite, ShareRead, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)
	defer s1.Close()

	// 共享锁之间互不冲突
	s2, err := Open(path, ModeOpen, AccessRead, ShareReadWrite, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	assert.Nil(t, err)
	assert.Nil(t, s2.Close())

	// 排他打开失败
	_, err = Open(path, ModeOpen, AccessRead, ShareNone, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	assert.ErrorIs(t, err, ErrSharingViolation)
}

// 共享锁下读者与写者可以同时打开, 读者看到写者追加的数据
func TestOpen_ReaderSeesConcurrentWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, nil, 0644))

	rs, err := Open(path, ModeOpen, AccessRead, ShareRead, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)
	defer rs.Close()
	length, err := rs.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), length)

	ws, err := Open(path, ModeOpen, AccessWrite, ShareRead, OptionNone, 0, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)
	defer ws.Close()
	_, err = ws.Write([]byte("hello world"))
	require.Nil(t, err)

	length, err = rs.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(11), length)
	pos, err := rs.Seek(-5, io.SeekEnd)
	assert.Nil(t, err)
	assert.Equal(t, int64(6), pos)

	buf := make([]byte, 5)
	n, err := rs.ReadAsync(context.Background(), buf).Wait()
	assert.Nil(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("world"), buf)
}

// 不使用文件锁时同样不缓存长度
func TestOpen_ReaderWithoutFileLocking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, nil, 0644))
	opts := DefaultOptions
	opts.DisableFileLocking = true

	rs, err := Open(path, ModeOpen, AccessRead, ShareNone, OptionNone, 0, DefaultFilePerm, opts)
	require.Nil(t, err)
	defer rs.Close()
	_, err = rs.Length()
	assert.Nil(t, err)

	require.Nil(t, os.WriteFile(path, []byte("xixi"), 0644))
	n, err := rs.ReadAsync(context.Background(), make([]byte, 8)).Wait()
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
}

func TestOpen_Preallocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.data")

	s, err := Open(path, ModeCreateNew, AccessReadWrite, ShareRead, OptionNone, 1<<20, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)
	// 预分配不改变文件长度
	length, err := s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), length)
	assert.Nil(t, s.Close())

	// 空间不足时失败 且不残留文件
	path2 := filepath.Join(dir, "b.data")
	s, err = Open(path2, ModeCreateNew, AccessReadWrite, ShareRead, OptionNone, math.MaxInt64/2, DefaultFilePerm, DefaultOptions)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, syscall.ENOSPC)
	_, err = os.Stat(path2)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_DeleteOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	s, err := Open(path, ModeCreateNew, AccessReadWrite, ShareRead, OptionDeleteOnClose, 0, DefaultFilePerm, DefaultOptions)
	require.Nil(t, err)
	_, err = s.Write([]byte("tmp"))
	assert.Nil(t, err)

	_, err = os.Stat(path)
	assert.Nil(t, err)
	assert.Nil(t, s.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_Logger(t *testing.T) {
	opts := DefaultOptions
	opts.Logger = zap.NewExample()
	path := filepath.Join(t.TempDir(), "a.data")
	s, err := OpenFile(path, ModeCreateNew, AccessReadWrite, opts)
	require.Nil(t, err)
	assert.Nil(t, s.Close())
}

// 接管已打开的文件时以内核偏移作为初始位置
func TestNewStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, []byte("hello"), 0644))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.Nil(t, err)
	_, err = f.Seek(2, io.SeekStart)
	require.Nil(t, err)

	s, err := NewStream(f, AccessReadWrite, DefaultOptions)
	require.Nil(t, err)
	defer s.Close()

	assert.True(t, s.CanSeek())
	assert.Equal(t, int64(2), s.Position())

	b, err := io.ReadAll(s)
	assert.Nil(t, err)
	assert.Equal(t, []byte("llo"), b)
	assert.Equal(t, int64(5), s.Position())
}

func TestNewStream_InvalidArgs(t *testing.T) {
	_, err := NewStream(nil, AccessRead, DefaultOptions)
	assert.NotNil(t, err)

	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, nil, 0644))
	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()
	_, err = NewStream(f, FileAccess(8), DefaultOptions)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// 管道不可定位, 不维护逻辑位置
func TestNewStream_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.Nil(t, err)

	ws, err := NewStream(w, AccessWrite, DefaultOptions)
	require.Nil(t, err)
	defer ws.Close()
	rs, err := NewStream(r, AccessRead, DefaultOptions)
	require.Nil(t, err)
	defer rs.Close()

	assert.False(t, ws.CanSeek())
	assert.False(t, rs.CanSeek())

	n, err := ws.Write([]byte("abc"))
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), ws.Position())

	buf := make([]byte, 3)
	_, err = io.ReadFull(rs, buf)
	assert.Nil(t, err)
	assert.Equal(t, []byte("abc"), buf)
	assert.Equal(t, int64(0), rs.Position())

	_, err = rs.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrNotSeekable)
	_, err = rs.Length()
	assert.ErrorIs(t, err, ErrNotSeekable)
	assert.ErrorIs(t, ws.SetLength(0), ErrNotSeekable)
	_, err = rs.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrNotSeekable)

	// 关闭写端后读到末尾
	assert.Nil(t, ws.Close())
	n, err = rs.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestStream_Close(t *testing.T) {
	s, _ := openTestStream(t, ModeCreateNew, AccessReadWrite)
	_, err := s.Write([]byte("xixi"))
	assert.Nil(t, err)

	assert.Nil(t, s.Close())
	// 重复关闭
	assert.Nil(t, s.Close())
	_, err = s.CloseAsync().Wait()
	assert.Nil(t, err)

	assert.False(t, s.CanRead())
	assert.False(t, s.CanWrite())
	assert.False(t, s.CanSeek())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = s.Write([]byte("a"))
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = s.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = s.Length()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.ErrorIs(t, s.SetLength(0), ErrStreamClosed)
	assert.ErrorIs(t, s.Flush(true), ErrStreamClosed)
	assert.ErrorIs(t, s.Lock(0, 1), ErrStreamClosed)
	_, err = s.File()
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = s.ReadAsync(context.Background(), make([]byte, 1)).Wait()
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = s.WriteAsync(context.Background(), []byte("a")).Wait()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_CloseAsync(t *testing.T) {
	s, _ := openTestStream(t, ModeCreateNew, AccessReadWrite)
	n, err := s.CloseAsync().Wait()
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, s.Flush(false), ErrStreamClosed)
}

// 获取底层文件前内核偏移与逻辑位置一致
func TestStream_File(t *testing.T) {
	s, _ := openTestStream(t, ModeCreateNew, AccessReadWrite)
	_, err := s.Write(testBytes(10))
	assert.Nil(t, err)
	_, err = s.Seek(3, io.SeekStart)
	assert.Nil(t, err)

	f, err := s.File()
	require.Nil(t, err)
	off, err := f.Seek(0, io.SeekCurrent)
	assert.Nil(t, err)
	assert.Equal(t, int64(3), off)

	buf := make([]byte, 2)
	_, err = io.ReadFull(f, buf)
	assert.Nil(t, err)
	assert.Equal(t, testBytes(10)[3:5], buf)

	_, err = s.Seek(7, io.SeekStart)
	assert.Nil(t, err)
	fd, err := s.Fd()
	assert.Nil(t, err)
	assert.Equal(t, f.Fd(), fd)
	off, err = f.Seek(0, io.SeekCurrent)
	assert.Nil(t, err)
	assert.Equal(t, int64(7), off)
}

func TestStream_MemoryMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	data := testBytes(64)
	require.Nil(t, os.WriteFile(path, data, 0644))

	opts := DefaultOptions
	opts.IOType = MemoryMap
	s, err := OpenFile(path, ModeOpen, AccessRead, opts)
	require.Nil(t, err)
	defer s.Close()

	b, err := io.ReadAll(s)
	assert.Nil(t, err)
	assert.True(t, bytes.Equal(data, b))
	assert.Equal(t, int64(64), s.Position())

	_, err = s.Write([]byte("a"))
	assert.ErrorIs(t, err, ErrUnsupportedDirection)
}

// 接管带 O_APPEND 的文件后, 写入发生在逻辑位置而不是文件末尾
func TestNewStream_AppendFlagCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.data")
	require.Nil(t, os.WriteFile(path, []byte("0123456789"), 0644))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	require.Nil(t, err)

	s, err := NewStream(f, AccessReadWrite, DefaultOptions)
	require.Nil(t, err)
	defer s.Close()

	_, err = s.Seek(0, io.SeekStart)
	assert.Nil(t, err)
	n, err := s.Write([]byte("AB"))
	assert.Nil(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 2)
	_, err = s.ReadAt(buf, 0)
	assert.Nil(t, err)
	assert.Equal(t, []byte("AB"), buf)
	length, err := s.Length()
	assert.Nil(t, err)
	assert.Equal(t, int64(10), length)
}

// 接管之后失败时文件被关闭
func TestNewStream_FailureClosesFile(t *testing.T) {
	r, w, err := os.Pipe()
	require.Nil(t, err)
	defer w.Close()

	_, err = NewStream(r, AccessRead, Options{IOType: MemoryMap})
	assert.ErrorIs(t, err, ErrTypeUnsupported)
	assert.ErrorIs(t, r.Close(), os.ErrClosed)
}
