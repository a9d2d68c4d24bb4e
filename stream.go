package filestream

import (
	"os"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/XiXi-2024/xixi-filestream/fio"
	"github.com/XiXi-2024/xixi-filestream/lockrange"
)

// noAppendStart 表示没有追加限制
const noAppendStart int64 = -1

// Stream 系统文件句柄之上的字节流
// 所有 IO 均显式指定偏移, 逻辑位置独立于内核偏移维护, 只通过原子操作更新
// 同一个 Stream 可以被多个 goroutine 并发使用
type Stream struct {
	handle      *fio.Handle
	rw          fio.ReadWriter
	access      FileAccess
	pos         atomic.Int64 // 逻辑位置 仅在句柄可定位时有意义
	appendStart int64        // 追加模式下打开时的文件长度, 不允许定位或写入到其之前
	binding     *fio.Binding
	locks       *lockrange.Table // 本流持有的字节范围锁
	logger      *zap.Logger
	closed      atomic.Bool
}

// Open 打开 path 对应的文件并创建 Stream
// 句柄获取之后的任何失败都会先关闭句柄再返回错误
func Open(path string, mode FileMode, access FileAccess, share FileShare, fileOptions FileOptions,
	preallocationSize int64, perm os.FileMode, options Options) (*Stream, error) {
	if err := checkOptions(options); err != nil {
		return nil, err
	}
	if err := checkOpenArgs(path, mode, access, share, preallocationSize, options); err != nil {
		return nil, err
	}

	h, err := fio.OpenHandle(path, mode, access, share, fileOptions, preallocationSize, perm,
		!options.DisableFileLocking)
	if err != nil {
		return nil, err
	}

	var pos, appendStart int64 = 0, noAppendStart
	if mode == ModeAppend && h.CanSeek() {
		if appendStart, err = h.Length(); err != nil {
			_ = h.Close()
			return nil, err
		}
		pos = appendStart
	}

	s, err := newStream(h, access, pos, appendStart, options)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	s.logger.Debug("open stream",
		zap.String("path", h.Name()),
		zap.Int8("mode", int8(mode)),
		zap.Bool("seekable", h.CanSeek()),
		zap.Int64("position", pos))
	return s, nil
}

// OpenFile 以默认共享模式与权限打开文件
func OpenFile(path string, mode FileMode, access FileAccess, options Options) (*Stream, error) {
	return Open(path, mode, access, ShareRead, OptionNone, 0, DefaultFilePerm, options)
}

// NewStream 接管调用方已打开的文件 之后文件由 Stream 负责关闭
// 可定位时以内核当前偏移作为初始位置, 文件带有 O_APPEND 时清除该标志
// 参数校验失败时文件仍归调用方, 接管之后的失败会关闭文件
func NewStream(file *os.File, access FileAccess, options Options) (*Stream, error) {
	if err := checkOptions(options); err != nil {
		return nil, err
	}
	if err := checkAccess(access, options); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, os.ErrInvalid
	}

	h, err := fio.NewHandle(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	var pos int64
	if h.CanSeek() {
		if pos, err = h.Offset(); err != nil {
			_ = h.Close()
			return nil, err
		}
	}

	s, err := newStream(h, access, pos, noAppendStart, options)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	s.logger.Debug("adopt stream",
		zap.String("path", h.Name()),
		zap.Bool("seekable", h.CanSeek()),
		zap.Int64("position", pos))
	return s, nil
}

func newStream(h *fio.Handle, access FileAccess, pos, appendStart int64, options Options) (*Stream, error) {
	rw, err := fio.NewReadWriter(h, options.IOType)
	if err != nil {
		return nil, err
	}
	binding, err := options.dispatcher().Register(h)
	if err != nil {
		_ = rw.Close()
		return nil, err
	}
	s := &Stream{
		handle:      h,
		rw:          rw,
		access:      access,
		appendStart: appendStart,
		binding:     binding,
		locks:       lockrange.NewTable(),
		logger:      options.logger(),
	}
	s.pos.Store(pos)
	h.OnDeferredClose(func(err error) {
		if err != nil {
			s.logger.Warn("deferred close", zap.String("path", h.Name()), zap.Error(err))
		}
	})
	return s, nil
}

// Name 文件路径
func (s *Stream) Name() string { return s.handle.Name() }

// CanRead 流未关闭且具有读权限
func (s *Stream) CanRead() bool { return !s.closed.Load() && s.access.CanRead() }

// CanWrite 流未关闭且具有写权限
func (s *Stream) CanWrite() bool { return !s.closed.Load() && s.access.CanWrite() }

// CanSeek 流未关闭且句柄可定位
func (s *Stream) CanSeek() bool { return !s.closed.Load() && s.handle.CanSeek() }

// Length 文件长度
func (s *Stream) Length() (int64, error) {
	if err := s.ensureSeekable(); err != nil {
		return 0, err
	}
	return s.handle.Length()
}

// File 返回底层文件, 返回前将内核偏移同步为逻辑位置
// 通过返回的文件进行的读写不会反映到逻辑位置
func (s *Stream) File() (*os.File, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if s.handle.CanSeek() {
		if err := s.handle.SeekTo(s.pos.Load()); err != nil {
			return nil, err
		}
	}
	return s.handle.File(), nil
}

// Fd 返回底层文件描述符, 返回前将内核偏移同步为逻辑位置
func (s *Stream) Fd() (uintptr, error) {
	f, err := s.File()
	if err != nil {
		return 0, err
	}
	return f.Fd(), nil
}

// Close 关闭流并释放句柄 可重复调用
// 本层没有缓冲, 关闭时不刷写数据
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	// 范围锁随句柄关闭由系统释放
	held := s.locks.Clear()
	s.binding.Release()
	err := multierr.Append(s.rw.Close(), s.handle.Close())
	if err != nil {
		s.logger.Warn("close stream", zap.String("path", s.handle.Name()), zap.Error(err))
		return err
	}
	s.logger.Debug("close stream", zap.String("path", s.handle.Name()), zap.Int("locks", len(held)))
	return nil
}

// CloseAsync 异步关闭 关闭本身不阻塞, 结果总是立即完成
func (s *Stream) CloseAsync() *AsyncResult {
	return fio.NewCompletion(0, s.Close())
}

func (s *Stream) ensureOpen() error {
	if s.closed.Load() || s.handle.IsClosed() {
		return ErrStreamClosed
	}
	return nil
}

func (s *Stream) ensureSeekable() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.handle.CanSeek() {
		return ErrNotSeekable
	}
	return nil
}

func (s *Stream) ensureReadable() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.access.CanRead() {
		return ErrUnsupportedDirection
	}
	return nil
}

func (s *Stream) ensureWritable() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.access.CanWrite() {
		return ErrUnsupportedDirection
	}
	return nil
}
