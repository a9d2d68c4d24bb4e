package fio

import "github.com/pkg/errors"

var (
	ErrTypeUnsupported  = errors.New("unsupported io type")
	ErrClosed           = errors.New("file handle is closed")
	ErrSharingViolation = errors.New("file is in use by another handle")
	ErrLockViolation    = errors.New("byte range is locked by another handle")
)

// CurrentOffset 表示使用内核维护的文件偏移, 用于不可定位的句柄
const CurrentOffset int64 = -1

type FileIOType = byte

const (
	// StandardFIO 标准文件IO pread/pwrite
	StandardFIO FileIOType = iota
	// MemoryMap 内存映射文件IO 只读
	MemoryMap
)

// ReadWriter 句柄之上的定位读写
// offset 为 CurrentOffset 时由内核偏移决定位置
type ReadWriter interface {
	// Read 从 offset 处读取 单次调用允许读取少于 len(b) 的字节, 文件末尾返回 io.EOF
	Read(b []byte, offset int64) (int, error)

	// Write 在 offset 处写入 b 的全部内容, 要么全部写入要么返回错误
	Write(b []byte, offset int64) (int, error)

	Sync() error

	// Close 释放实现自身持有的资源 不关闭句柄
	Close() error

	Size() (int64, error)
}

// NewReadWriter 根据配置创建具体的文件 IO 实现
func NewReadWriter(h *Handle, ioType FileIOType) (ReadWriter, error) {
	switch ioType {
	case StandardFIO:
		return NewFileIO(h), nil
	case MemoryMap:
		return NewMMap(h)
	default:
		return nil, ErrTypeUnsupported
	}
}
