package filestream

import (
	"github.com/pkg/errors"

	"github.com/XiXi-2024/xixi-filestream/fio"
)

var (
	ErrStreamClosed         = fio.ErrClosed
	ErrUnsupportedDirection = errors.New("operation is not permitted by the stream access")
	ErrInvalidOffset        = errors.New("offset must be non-negative")
	ErrAppendViolation      = errors.New("cannot move before the data that existed when the stream was opened for append")
	ErrNotSeekable          = errors.New("the stream does not support seeking")
	ErrInvalidWhence        = errors.New("invalid whence")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidOptions       = errors.New("invalid options")
	ErrLockNotHeld          = errors.New("the byte range is not locked by this stream")
	ErrSharingViolation     = fio.ErrSharingViolation
	ErrLockViolation        = fio.ErrLockViolation
	ErrTypeUnsupported      = fio.ErrTypeUnsupported
)
