package fio

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FileIO 基于 pread/pwrite 的标准文件 IO 实现
type FileIO struct {
	h *Handle
}

// NewFileIO 创建 FileIO 实例
func NewFileIO(h *Handle) *FileIO {
	return &FileIO{h: h}
}

func (fio *FileIO) Read(b []byte, offset int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	fd, err := fio.h.acquire()
	if err != nil {
		return 0, err
	}
	defer fio.h.release()

	var n int
	for {
		if offset == CurrentOffset {
			n, err = unix.Read(fd, b)
		} else {
			n, err = unix.Pread(fd, b, offset)
		}
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, &os.PathError{Op: "read", Path: fio.h.path, Err: err}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (fio *FileIO) Write(b []byte, offset int64) (int, error) {
	fd, err := fio.h.acquire()
	if err != nil {
		return 0, err
	}
	defer fio.h.release()

	// 单次 pwrite 可能只写入部分数据 循环直到全部写入
	var written int
	for written < len(b) {
		var n int
		if offset == CurrentOffset {
			n, err = unix.Write(fd, b[written:])
		} else {
			n, err = unix.Pwrite(fd, b[written:], offset+int64(written))
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, &os.PathError{Op: "write", Path: fio.h.path, Err: err}
		}
		if n == 0 {
			return written, &os.PathError{Op: "write", Path: fio.h.path, Err: io.ErrShortWrite}
		}
		written += n
	}
	return written, nil
}

func (fio *FileIO) Sync() error {
	return fio.h.Sync()
}

func (fio *FileIO) Close() error {
	return nil
}

func (fio *FileIO) Size() (int64, error) {
	return fio.h.Length()
}
