package fio

import (
	"io"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// MMap 只读内存映射 IO 实现
// 映射范围固定为创建时的文件长度, 仅适用于只读打开且长度不会变化的文件
type MMap struct {
	h    *Handle
	data mmap.MMap
	mu   sync.RWMutex // 防止解除映射与读取并发
	done bool
}

func NewMMap(h *Handle) (*MMap, error) {
	if !h.CanSeek() {
		return nil, ErrTypeUnsupported
	}
	size, err := h.Length()
	if err != nil {
		return nil, err
	}
	m := &MMap{h: h}
	// 空文件无法映射
	if size > 0 {
		data, err := mmap.MapRegion(h.File(), int(size), mmap.RDONLY, 0, 0)
		if err != nil {
			return nil, err
		}
		m.data = data
	}
	return m, nil
}

func (mmap *MMap) Read(b []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrTypeUnsupported
	}
	mmap.mu.RLock()
	defer mmap.mu.RUnlock()
	if mmap.done || mmap.h.IsClosed() {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	if offset >= int64(len(mmap.data)) {
		return 0, io.EOF
	}
	return copy(b, mmap.data[offset:]), nil
}

func (mmap *MMap) Write(b []byte, offset int64) (int, error) {
	return 0, ErrTypeUnsupported
}

func (mmap *MMap) Sync() error {
	return nil
}

func (mmap *MMap) Close() error {
	mmap.mu.Lock()
	defer mmap.mu.Unlock()
	if mmap.done {
		return nil
	}
	mmap.done = true
	if mmap.data == nil {
		return nil
	}
	err := mmap.data.Unmap()
	mmap.data = nil
	return err
}

func (mmap *MMap) Size() (int64, error) {
	mmap.mu.RLock()
	defer mmap.mu.RUnlock()
	return int64(len(mmap.data)), nil
}
