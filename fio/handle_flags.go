package fio

import "os"

// DefaultFilePerm 新建文件的默认权限, 实际权限受 umask 影响
const DefaultFilePerm = 0666

// FileMode 文件打开方式
type FileMode int8

const (
	// ModeCreateNew 创建新文件 文件已存在则失败
	ModeCreateNew FileMode = iota + 1
	// ModeCreate 创建文件 已存在则截断
	ModeCreate
	// ModeOpen 打开已存在的文件
	ModeOpen
	// ModeOpenOrCreate 打开文件 不存在则创建
	ModeOpenOrCreate
	// ModeTruncate 打开已存在的文件并截断为 0
	ModeTruncate
	// ModeAppend 打开或创建文件 并定位到文件末尾 只允许在末尾之后写入
	ModeAppend
)

// FileAccess 读写权限
type FileAccess int8

const (
	AccessRead FileAccess = 1 << iota
	AccessWrite
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead 是否包含读权限
func (a FileAccess) CanRead() bool { return a&AccessRead != 0 }

// CanWrite 是否包含写权限
func (a FileAccess) CanWrite() bool { return a&AccessWrite != 0 }

// FileShare 允许其他打开者进行的访问
type FileShare int8

const (
	ShareNone  FileShare = 0
	ShareRead  FileShare = 1
	ShareWrite FileShare = 2
	// ShareReadWrite 其他打开者可读写
	ShareReadWrite FileShare = ShareRead | ShareWrite
	// ShareDelete 其他打开者可删除 仅作记录 unix 下总是允许
	ShareDelete FileShare = 4
)

// FileOptions 打开文件的附加选项
type FileOptions int16

const (
	OptionNone FileOptions = 0
	// OptionWriteThrough 每次写入直达存储设备 (O_SYNC)
	OptionWriteThrough FileOptions = 1 << iota
	// OptionAsynchronous 异步 IO 提示 unix 下无额外效果
	OptionAsynchronous
	// OptionRandomAccess 随机访问提示
	OptionRandomAccess
	// OptionDeleteOnClose 关闭时删除文件
	OptionDeleteOnClose
	// OptionSequentialScan 顺序访问提示
	OptionSequentialScan
)

// 根据打开方式、读写权限与选项计算 open(2) 标志
// 注意 ModeAppend 不使用 O_APPEND: linux 下 O_APPEND 会使 pwrite 忽略偏移量
func openFlags(mode FileMode, access FileAccess, options FileOptions) int {
	var flags int
	switch mode {
	case ModeCreateNew:
		flags = os.O_CREATE | os.O_EXCL
	case ModeCreate:
		flags = os.O_CREATE | os.O_TRUNC
	case ModeOpenOrCreate, ModeAppend:
		flags = os.O_CREATE
	case ModeTruncate:
		flags = os.O_TRUNC
	}

	switch access {
	case AccessRead:
		flags |= os.O_RDONLY
	case AccessWrite:
		flags |= os.O_WRONLY
	case AccessReadWrite:
		flags |= os.O_RDWR
	}

	if options&OptionWriteThrough != 0 {
		flags |= os.O_SYNC
	}
	return flags
}

// 打开方式是否会创建或清空文件
func (m FileMode) creates() bool {
	return m == ModeCreateNew || m == ModeCreate || m == ModeTruncate
}
