package filestream

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/XiXi-2024/xixi-filestream/fio"
)

type (
	FileMode    = fio.FileMode
	FileAccess  = fio.FileAccess
	FileShare   = fio.FileShare
	FileOptions = fio.FileOptions
	FileIOType  = fio.FileIOType
)

const (
	ModeCreateNew    = fio.ModeCreateNew
	ModeCreate       = fio.ModeCreate
	ModeOpen         = fio.ModeOpen
	ModeOpenOrCreate = fio.ModeOpenOrCreate
	ModeTruncate     = fio.ModeTruncate
	ModeAppend       = fio.ModeAppend

	AccessRead      = fio.AccessRead
	AccessWrite     = fio.AccessWrite
	AccessReadWrite = fio.AccessReadWrite

	ShareNone      = fio.ShareNone
	ShareRead      = fio.ShareRead
	ShareWrite     = fio.ShareWrite
	ShareReadWrite = fio.ShareReadWrite
	ShareDelete    = fio.ShareDelete

	OptionNone           = fio.OptionNone
	OptionWriteThrough   = fio.OptionWriteThrough
	OptionAsynchronous   = fio.OptionAsynchronous
	OptionRandomAccess   = fio.OptionRandomAccess
	OptionDeleteOnClose  = fio.OptionDeleteOnClose
	OptionSequentialScan = fio.OptionSequentialScan

	StandardFIO = fio.StandardFIO
	MemoryMap   = fio.MemoryMap
)

// Options 用户配置项
type Options struct {
	IOType             FileIOType      // 读写实现 MemoryMap 仅支持只读
	MaxConcurrentIO    int64           // 未指定 Dispatcher 时新建 Dispatcher 的并发上限, 0 表示默认值
	Dispatcher         *fio.Dispatcher // 异步 IO 完成设施 可在多个流之间共享
	DisableFileLocking bool            // 不使用 flock 表达共享模式
	Logger             *zap.Logger     // 为空时不输出日志
}

// DefaultOptions 默认Options
var DefaultOptions = Options{
	IOType:          StandardFIO,
	MaxConcurrentIO: fio.DefaultMaxConcurrentIO,
}

func checkOptions(options Options) error {
	if options.IOType != StandardFIO && options.IOType != MemoryMap {
		return errors.Wrapf(ErrInvalidOptions, "io type %d", options.IOType)
	}
	if options.MaxConcurrentIO < 0 {
		return errors.Wrapf(ErrInvalidOptions, "max concurrent io %d", options.MaxConcurrentIO)
	}
	return nil
}

func checkAccess(access FileAccess, options Options) error {
	if access < AccessRead || access > AccessReadWrite {
		return errors.Wrapf(ErrInvalidArgument, "access %d", access)
	}
	if options.IOType == MemoryMap && access != AccessRead {
		return errors.Wrap(ErrTypeUnsupported, "memory map requires read-only access")
	}
	return nil
}

// 校验打开参数的取值与组合
func checkOpenArgs(path string, mode FileMode, access FileAccess, share FileShare,
	preallocationSize int64, options Options) error {
	if path == "" {
		return errors.Wrap(ErrInvalidArgument, "empty path")
	}
	if mode < ModeCreateNew || mode > ModeAppend {
		return errors.Wrapf(ErrInvalidArgument, "mode %d", mode)
	}
	if err := checkAccess(access, options); err != nil {
		return err
	}
	if share < ShareNone || share > ShareReadWrite|ShareDelete {
		return errors.Wrapf(ErrInvalidArgument, "share %d", share)
	}
	if preallocationSize < 0 {
		return errors.Wrapf(ErrInvalidArgument, "preallocation size %d", preallocationSize)
	}

	if !access.CanWrite() {
		switch mode {
		case ModeCreateNew, ModeCreate, ModeTruncate, ModeAppend:
			return errors.Wrapf(ErrInvalidArgument, "mode %d requires write access", mode)
		}
	}
	if mode == ModeAppend && access.CanRead() {
		return errors.Wrap(ErrInvalidArgument, "append mode cannot be combined with read access")
	}
	if preallocationSize > 0 && (!access.CanWrite() || mode == ModeOpen) {
		return errors.Wrap(ErrInvalidArgument, "preallocation requires write access and a creating mode")
	}
	return nil
}

func (options Options) logger() *zap.Logger {
	if options.Logger == nil {
		return zap.NewNop()
	}
	return options.Logger
}

func (options Options) dispatcher() *fio.Dispatcher {
	if options.Dispatcher != nil {
		return options.Dispatcher
	}
	return fio.NewDispatcher(options.MaxConcurrentIO)
}

// DefaultFilePerm 新建文件的默认权限
const DefaultFilePerm os.FileMode = fio.DefaultFilePerm
