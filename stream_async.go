package filestream

import (
	"context"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/XiXi-2024/xixi-filestream/fio"
)

// AsyncResult 异步读写的结果
type AsyncResult = fio.Completion

// ReadAsync 异步读取
// 调用返回前即通过原子操作预留 [pos, pos+len(p)) 作为本次读取的范围,
// 并发调用各自得到互不重叠的范围; 实际读取较少时归还未使用的部分。
// 操作失败或在执行前被取消时预留不会回退, 后续操作看到的位置如同这些字节已被读取。
func (s *Stream) ReadAsync(ctx context.Context, p []byte) *AsyncResult {
	if err := s.ensureReadable(); err != nil {
		return fio.NewCompletion(0, err)
	}
	if len(p) == 0 {
		return fio.NewCompletion(0, nil)
	}
	if !s.handle.CanSeek() {
		return s.binding.Submit(ctx, func() (int, error) {
			return s.rw.Read(p, fio.CurrentOffset)
		})
	}

	// 已知文件长度且位置已到末尾时无需系统调用
	if length, ok := s.handle.CachedLength(); ok && s.pos.Load() >= length {
		return fio.NewCompletion(0, io.EOF)
	}

	want := int64(len(p))
	offset, err := s.reserve(want)
	if err != nil {
		return fio.NewCompletion(0, err)
	}
	return s.binding.Submit(ctx, func() (int, error) {
		n, err := s.rw.Read(p, offset)
		if err == nil || err == io.EOF {
			s.reconcile(want, int64(n))
		}
		return n, err
	})
}

// WriteAsync 异步写入
// 与 ReadAsync 相同地预留 [pos, pos+len(p)), 写入要么全部完成要么失败, 成功时无需修正
func (s *Stream) WriteAsync(ctx context.Context, p []byte) *AsyncResult {
	if err := s.ensureWritable(); err != nil {
		return fio.NewCompletion(0, err)
	}
	if len(p) == 0 {
		return fio.NewCompletion(0, nil)
	}
	if !s.handle.CanSeek() {
		return s.binding.Submit(ctx, func() (int, error) {
			return s.rw.Write(p, fio.CurrentOffset)
		})
	}

	want := int64(len(p))
	offset, err := s.reserve(want)
	if err != nil {
		return fio.NewCompletion(0, err)
	}
	return s.binding.Submit(ctx, func() (int, error) {
		return s.rw.Write(p, offset)
	})
}

// reserve 原子地预留 [pos, pos+n) 并返回起点, 位置溢出时不预留
func (s *Stream) reserve(n int64) (int64, error) {
	for {
		cur := s.pos.Load()
		if cur > math.MaxInt64-n {
			return 0, errors.Wrapf(ErrInvalidArgument, "position %d overflows by %d", cur, n)
		}
		if s.pos.CompareAndSwap(cur, cur+n) {
			return cur, nil
		}
	}
}
