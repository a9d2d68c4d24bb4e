package fio

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/XiXi-2024/xixi-filestream/utils"
)

// Handle 独占持有的系统文件句柄
// 句柄关闭后不会再被访问: 所有系统调用先 acquire 引用, 关闭时若仍有调用在途则延迟到最后一个引用释放时真正关闭
type Handle struct {
	file *os.File
	fd   int
	path string

	seekable    bool
	cacheLength bool         // 是否允许缓存文件长度
	length      atomic.Int64 // 缓存的文件长度 -1 表示未知

	refs      atomic.Int64 // 在途系统调用数
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	deleteOnClose bool
	shareLock     *flock.Flock // 共享模式对应的整文件咨询锁

	onDeferredClose func(error) // 延迟关闭完成时回调
}

// OpenHandle 按给定语义打开新的文件句柄
// 句柄获取之后的任何失败都会先同步关闭句柄再返回错误
func OpenHandle(path string, mode FileMode, access FileAccess, share FileShare, options FileOptions,
	preallocationSize int64, perm os.FileMode, lockFile bool) (*Handle, error) {
	file, err := os.OpenFile(path, openFlags(mode, access, options), perm)
	if err != nil {
		return nil, err
	}

	h, err := newHandle(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	h.path = file.Name()
	h.deleteOnClose = options&OptionDeleteOnClose != 0
	// 只有排他的共享锁才能阻止其他写者打开文件
	h.cacheLength = h.seekable && !access.CanWrite() && lockFile && share&(ShareRead|ShareWrite) == 0

	if err = h.init(mode, share, options, preallocationSize, lockFile); err != nil {
		// 初始化失败时不按 DeleteOnClose 删除文件
		h.deleteOnClose = false
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

// NewHandle 接管调用方已打开的文件
func NewHandle(file *os.File) (*Handle, error) {
	if file == nil {
		return nil, os.ErrInvalid
	}
	h, err := newHandle(file)
	if err != nil {
		return nil, err
	}
	h.path = file.Name()
	if err := h.clearAppend(); err != nil {
		return nil, err
	}
	return h, nil
}

// O_APPEND 下 pwrite 会忽略偏移, 接管的文件需要清除该标志
func (h *Handle) clearAppend() error {
	flags, err := unix.FcntlInt(uintptr(h.fd), unix.F_GETFL, 0)
	if err != nil {
		return &os.PathError{Op: "fcntl", Path: h.path, Err: err}
	}
	if flags&unix.O_APPEND == 0 {
		return nil
	}
	if _, err := unix.FcntlInt(uintptr(h.fd), unix.F_SETFL, flags&^unix.O_APPEND); err != nil {
		return &os.PathError{Op: "fcntl", Path: h.path, Err: err}
	}
	return nil
}

func newHandle(file *os.File) (*Handle, error) {
	// Fd 会将文件切换为阻塞模式, 之后所有 IO 均直接走系统调用
	fd := int(file.Fd())

	var st unix.Stat_t
	if err := fstat(fd, &st); err != nil {
		return nil, &os.PathError{Op: "fstat", Path: file.Name(), Err: err}
	}

	h := &Handle{file: file, fd: fd}
	h.length.Store(-1)

	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFIFO, unix.S_IFSOCK, unix.S_IFCHR:
		h.seekable = false
	default:
		_, err := unix.Seek(fd, 0, unix.SEEK_CUR)
		h.seekable = err == nil
	}
	return h, nil
}

// 打开后的初始化: 目录检查、共享锁、预分配、访问提示
func (h *Handle) init(mode FileMode, share FileShare, options FileOptions, preallocationSize int64, lockFile bool) error {
	var st unix.Stat_t
	if err := fstat(h.fd, &st); err != nil {
		return &os.PathError{Op: "fstat", Path: h.path, Err: err}
	}
	if uint32(st.Mode)&unix.S_IFMT == unix.S_IFDIR {
		return &os.PathError{Op: "open", Path: h.path, Err: unix.EISDIR}
	}

	if lockFile {
		if err := h.lockShare(share); err != nil {
			return err
		}
	}

	if preallocationSize > 0 && h.seekable && (mode.creates() || st.Size == 0) {
		if err := h.preallocate(preallocationSize); err != nil {
			if mode.creates() || st.Size == 0 {
				_ = os.Remove(h.path)
			}
			return err
		}
	}

	if options&(OptionRandomAccess|OptionSequentialScan) != 0 && h.seekable {
		// 访问提示失败不影响正确性
		_ = fadvise(h.fd, options)
	}
	return nil
}

// 以 flock 表达共享模式: ShareNone 持有排他锁, 其余持有共享锁
func (h *Handle) lockShare(share FileShare) error {
	fl := flock.New(h.path)
	var (
		ok  bool
		err error
	)
	if share&(ShareRead|ShareWrite) == 0 {
		ok, err = fl.TryLock()
	} else {
		ok, err = fl.TryRLock()
	}
	if err != nil {
		_ = fl.Close()
		return errors.Wrapf(err, "lock %q", h.path)
	}
	if !ok {
		_ = fl.Close()
		return errors.Wrapf(ErrSharingViolation, "lock %q", h.path)
	}
	h.shareLock = fl
	return nil
}

func (h *Handle) preallocate(size int64) error {
	avail, err := utils.AvailableDiskSize(h.path)
	if err == nil && avail < uint64(size) {
		return &os.PathError{Op: "preallocate", Path: h.path, Err: unix.ENOSPC}
	}
	if err := fallocate(h.fd, size); err != nil {
		return &os.PathError{Op: "preallocate", Path: h.path, Err: err}
	}
	return nil
}

// acquire 获取一次句柄引用, 句柄已关闭时返回 ErrClosed
func (h *Handle) acquire() (int, error) {
	if h.closed.Load() {
		return -1, ErrClosed
	}
	h.refs.Add(1)
	if h.closed.Load() {
		h.release()
		return -1, ErrClosed
	}
	return h.fd, nil
}

func (h *Handle) release() {
	if h.refs.Add(-1) == 0 && h.closed.Load() {
		ran := false
		h.closeOnce.Do(func() {
			h.doClose()
			ran = true
		})
		if ran && h.onDeferredClose != nil {
			h.onDeferredClose(h.closeErr)
		}
	}
}

// OnDeferredClose 设置延迟关闭的回调
// Close 时仍有调用在途则返回 nil, 真正关闭的结果通过 fn 传出, 需在 Close 之前设置
func (h *Handle) OnDeferredClose(fn func(error)) {
	h.onDeferredClose = fn
}

// Name 文件路径
func (h *Handle) Name() string { return h.path }

// CanSeek 是否支持定位 管道、套接字、字符设备不支持
func (h *Handle) CanSeek() bool { return h.seekable }

// IsClosed 句柄是否已关闭
func (h *Handle) IsClosed() bool { return h.closed.Load() }

// File 底层 *os.File
func (h *Handle) File() *os.File { return h.file }

// CachedLength 返回缓存的文件长度, 不可缓存或尚未获取时 ok 为 false
func (h *Handle) CachedLength() (int64, bool) {
	if !h.cacheLength {
		return 0, false
	}
	n := h.length.Load()
	return n, n >= 0
}

// Length 获取文件长度
func (h *Handle) Length() (int64, error) {
	if n, ok := h.CachedLength(); ok {
		return n, nil
	}
	fd, err := h.acquire()
	if err != nil {
		return 0, err
	}
	defer h.release()

	var st unix.Stat_t
	if err := fstat(fd, &st); err != nil {
		return 0, &os.PathError{Op: "fstat", Path: h.path, Err: err}
	}
	if h.cacheLength {
		h.length.Store(st.Size)
	}
	return st.Size, nil
}

// Offset 查询内核维护的当前偏移
func (h *Handle) Offset() (int64, error) {
	fd, err := h.acquire()
	if err != nil {
		return 0, err
	}
	defer h.release()

	off, err := unix.Seek(fd, 0, unix.SEEK_CUR)
	if err != nil {
		return 0, &os.PathError{Op: "seek", Path: h.path, Err: err}
	}
	return off, nil
}

// SeekTo 将内核偏移设置为 offset
func (h *Handle) SeekTo(offset int64) error {
	fd, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	if _, err := unix.Seek(fd, offset, unix.SEEK_SET); err != nil {
		return &os.PathError{Op: "seek", Path: h.path, Err: err}
	}
	return nil
}

// Truncate 设置文件长度
func (h *Handle) Truncate(size int64) error {
	fd, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	if err := ignoringEINTR(func() error { return unix.Ftruncate(fd, size) }); err != nil {
		return &os.PathError{Op: "truncate", Path: h.path, Err: err}
	}
	if h.cacheLength {
		h.length.Store(size)
	}
	return nil
}

// Sync 将文件数据刷写到存储设备
func (h *Handle) Sync() error {
	fd, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	if err := ignoringEINTR(func() error { return unix.Fsync(fd) }); err != nil {
		return &os.PathError{Op: "sync", Path: h.path, Err: err}
	}
	return nil
}

// LockRange 对 [offset, offset+length) 加排他咨询锁, 不阻塞
func (h *Handle) LockRange(offset, length int64) error {
	return h.fcntlLock(unix.F_WRLCK, offset, length)
}

// UnlockRange 释放 [offset, offset+length) 上的咨询锁
func (h *Handle) UnlockRange(offset, length int64) error {
	return h.fcntlLock(unix.F_UNLCK, offset, length)
}

func (h *Handle) fcntlLock(typ int16, offset, length int64) error {
	fd, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	lk := unix.Flock_t{
		Type:   typ,
		Whence: unix.SEEK_SET,
		Start:  offset,
		Len:    length,
	}
	err = ignoringEINTR(func() error { return unix.FcntlFlock(uintptr(fd), lockCmd, &lk) })
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
		return ErrLockViolation
	}
	if err != nil {
		return &os.PathError{Op: "fcntl", Path: h.path, Err: err}
	}
	return nil
}

// Close 关闭句柄 可重复调用
// 仍有系统调用在途时, 真正的关闭推迟到最后一个调用返回
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.refs.Load() == 0 {
		h.closeOnce.Do(h.doClose)
		return h.closeErr
	}
	return nil
}

func (h *Handle) doClose() {
	if h.shareLock != nil {
		_ = h.shareLock.Close()
	}
	err := h.file.Close()
	if h.deleteOnClose {
		if rmErr := os.Remove(h.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	h.closeErr = err
}

func fstat(fd int, st *unix.Stat_t) error {
	return ignoringEINTR(func() error { return unix.Fstat(fd, st) })
}

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}
