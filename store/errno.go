package store

import "syscall"

// Sentinel errors returned by core operations. Adapters translate these to
// FUSE errno codes; nothing in this package imports go-fuse.
var (
	ErrNotExist  = syscall.ENOENT
	ErrExist     = syscall.EEXIST
	ErrNotDir    = syscall.ENOTDIR
	ErrIsDir     = syscall.EISDIR
	ErrNotEmpty  = syscall.ENOTEMPTY
	ErrNameTooLong = syscall.ENAMETOOLONG
	// ErrNoSpace is a data-block allocation failure: the free list is
	// empty. EDQUOT, not ENOSPC, per the error table a write surfaces it
	// through.
	ErrNoSpace   = syscall.EDQUOT
	ErrNoInodes  = syscall.EACCES
	ErrInvalid   = syscall.EINVAL
	// ErrFileTooBig is a data-block allocation failure surfaced through
	// truncate's growth path instead of ErrNoSpace/EDQUOT.
	ErrFileTooBig = syscall.EFBIG
	// ErrCorrupt marks an internal invariant violation, such as a
	// hash-index collision. Always wrapped with fmt.Errorf("%w: ...") for
	// diagnostic context; adapters map it to EFAULT.
	ErrCorrupt = syscall.EFAULT
)
