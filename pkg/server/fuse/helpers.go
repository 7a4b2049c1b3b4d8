package fuse

import (
	"context"
	"errors"
	"syscall"

	"github.com/jacktea/ffs/pkg/xerrors"
)

// errnoForError converts dispatcher error kinds to syscall errno codes.
func errnoForError(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	case errors.Is(err, context.DeadlineExceeded):
		return syscall.ETIMEDOUT
	}
	switch xerrors.KindOf(err) {
	case xerrors.KindNotFound:
		return syscall.ENOENT
	case xerrors.KindExists:
		return syscall.EEXIST
	case xerrors.KindNotEmpty:
		return syscall.ENOTEMPTY
	case xerrors.KindIsDirectory:
		return syscall.EISDIR
	case xerrors.KindNotDirectory:
		return syscall.ENOTDIR
	case xerrors.KindPermission:
		return syscall.EPERM
	case xerrors.KindReadOnly:
		return syscall.EROFS
	case xerrors.KindNoAttr:
		return syscall.ENODATA
	case xerrors.KindInvalid:
		return syscall.EINVAL
	case xerrors.KindNotSupported:
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}
