// Package fsadapter wires the content-addressed block store onto the
// FUSE Node interface suite from github.com/hanwen/go-fuse/v2/fs. Every
// method here is a thin translation: it maps a Node (which knows its own
// inode number and path) and its arguments onto store.Store calls made
// under the store's own lock, then copies the result into the FUSE
// out-parameter. No filesystem semantics live in this package.
//
// Grounded on the loopback filesystem in fs/loopback.go: the same
// per-node RootData-pointer-plus-path shape, the same
// `var _ = (NodeXxxer)(...)` interface-assertion idiom, and the same
// split between a root-holding struct and a per-node struct. Unlike
// loopback, nodes here address the store by path rather than by
// delegating to a real OS file descriptor, and there is no Rename:
// the store does not implement one, so none is registered here.
package fsadapter

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dedupfs/store"
)

// Node is one entry of the mounted tree: a directory or regular file
// backed by the store.
type Node struct {
	fs.Inode

	store *store.Store
	log   *logrus.Entry

	ino  uint64
	path string
}

var (
	_ fs.NodeStatfser  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeOpendirer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
)

// NewRoot builds the InodeEmbedder to hand to fs.Mount: a Node addressing
// the store's root directory.
func NewRoot(st *store.Store, log *logrus.Entry) fs.InodeEmbedder {
	return &Node{store: st, log: log, ino: store.RootIno, path: "/"}
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// stableAttr derives a go-fuse StableAttr from a store inode's type and
// number; the kernel uses Mode's file-type bits and Ino to tell distinct
// files apart.
func stableAttr(ino uint64, n store.Inode) fs.StableAttr {
	var mode uint32
	if n.Type == store.TypeDir {
		mode = syscall.S_IFDIR
	} else {
		mode = syscall.S_IFREG
	}
	return fs.StableAttr{Mode: mode, Ino: ino}
}

// fillAttr copies a store inode's attributes into a fuse.Attr. There is
// no per-inode uid/gid in the store: ownership is synthesized from the
// calling process's FUSE context on every call, matching the reference
// filesystem's getattr, which never persisted an owner either.
func (n *Node) fillAttr(ctx context.Context, out *fuse.Attr, ino uint64, attr store.Inode) {
	out.Ino = ino
	out.Size = attr.Size
	out.Mode = uint32(attr.Mode)
	if attr.Type == store.TypeDir {
		out.Mode |= syscall.S_IFDIR
		out.Nlink = 2 + n.childCount(ino)
	} else {
		out.Mode |= syscall.S_IFREG
		out.Nlink = 1
	}
	out.Atime = attr.Atime
	out.Mtime = attr.Mtime
	out.Ctime = attr.Ctime
	out.Blocks = attr.NBlocks
	out.Owner.Uid, out.Owner.Gid = n.callerOwner(ctx)
}

// childCount returns the number of live entries of the directory at ino,
// not counting "." and "..", for the nlink = 2 + child count convention.
func (n *Node) childCount(ino uint64) uint32 {
	entries, err := n.store.Readdir(ino)
	if err != nil || len(entries) < 2 {
		return 0
	}
	return uint32(len(entries) - 2)
}

// callerOwner returns the uid/gid of the process performing the current
// call, or 0/0 if the context carries none.
func (n *Node) callerOwner(ctx context.Context) (uid, gid uint32) {
	if caller, ok := fuse.FromContext(ctx); ok {
		return caller.Uid, caller.Gid
	}
	return 0, 0
}

func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

// Statfs reports aggregate image capacity, required on OSX for the mount
// to succeed at all even though this filesystem carries no quotas.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()
	st := n.store.Statfs()
	out.Bsize = uint32(st.BlockSize)
	out.Blocks = st.Blocks
	out.Bfree = st.BlocksFree
	out.Bavail = st.BlocksFree
	out.Files = st.Inodes
	out.Ffree = st.InodesFree
	out.NameLen = uint32(st.NameMax)
	return 0
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()
	attr, err := n.store.Getattr(n.ino)
	if err != nil {
		return errnoOf(err)
	}
	n.fillAttr(ctx, &out.Attr, n.ino, attr)
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()

	if in.Valid&fuse.FATTR_SIZE != 0 {
		if err := n.store.Truncate(n.ino, in.Size); err != nil {
			return errnoOf(err)
		}
	}

	var mode, atime, mtime *uint64
	if in.Valid&fuse.FATTR_MODE != 0 {
		m := uint64(in.Mode &^ syscall.S_IFMT)
		mode = &m
	}
	if in.Valid&fuse.FATTR_ATIME != 0 {
		a := uint64(in.Atime)
		atime = &a
	}
	if in.Valid&fuse.FATTR_MTIME != 0 {
		mt := uint64(in.Mtime)
		mtime = &mt
	}
	if mode != nil || atime != nil || mtime != nil {
		if err := n.store.SetAttr(n.ino, mode, atime, mtime); err != nil {
			return errnoOf(err)
		}
	}

	attr, err := n.store.Getattr(n.ino)
	if err != nil {
		return errnoOf(err)
	}
	n.fillAttr(ctx, &out.Attr, n.ino, attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.store.Lock()
	defer n.store.Unlock()
	cp := childPath(n.path, name)
	ino, attr, err := n.store.Lookup(cp)
	if err != nil {
		return nil, errnoOf(err)
	}
	n.fillAttr(ctx, &out.Attr, ino, attr)
	child := &Node{store: n.store, log: n.log, ino: ino, path: cp}
	return n.NewInode(ctx, child, stableAttr(ino, attr)), 0
}

func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()
	attr, err := n.store.Getattr(n.ino)
	if err != nil {
		return errnoOf(err)
	}
	if attr.Type != store.TypeDir {
		return syscall.ENOTDIR
	}
	return 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.store.Lock()
	defer n.store.Unlock()
	entries, err := n.store.Readdir(n.ino)
	if err != nil {
		return nil, errnoOf(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		attr, err := n.store.Getattr(e.Ino)
		if err == nil && attr.Type == store.TypeDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.store.Lock()
	defer n.store.Unlock()
	cp := childPath(n.path, name)
	ino, err := n.store.Mkdir(cp, uint64(mode&^syscall.S_IFMT), now())
	if err != nil {
		n.log.WithField("path", cp).WithError(err).Debug("mkdir failed")
		return nil, errnoOf(err)
	}
	attr, _ := n.store.Getattr(ino)
	n.fillAttr(ctx, &out.Attr, ino, attr)
	child := &Node{store: n.store, log: n.log, ino: ino, path: cp}
	return n.NewInode(ctx, child, stableAttr(ino, attr)), 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	n.store.Lock()
	defer n.store.Unlock()
	cp := childPath(n.path, name)
	ino, err := n.store.Create(cp, uint64(mode&^syscall.S_IFMT), now())
	if err != nil {
		n.log.WithField("path", cp).WithError(err).Debug("create failed")
		return nil, nil, 0, errnoOf(err)
	}
	attr, _ := n.store.Getattr(ino)
	n.fillAttr(ctx, &out.Attr, ino, attr)
	child := &Node{store: n.store, log: n.log, ino: ino, path: cp}
	inode := n.NewInode(ctx, child, stableAttr(ino, attr))
	return inode, nil, 0, 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()
	cp := childPath(n.path, name)
	if err := n.store.Unlink(cp); err != nil {
		n.log.WithField("path", cp).WithError(err).Debug("unlink failed")
		return errnoOf(err)
	}
	return 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	n.store.Lock()
	defer n.store.Unlock()
	cp := childPath(n.path, name)
	if err := n.store.Rmdir(cp); err != nil {
		n.log.WithField("path", cp).WithError(err).Debug("rmdir failed")
		return errnoOf(err)
	}
	return 0
}

// fileHandle carries the access mode an open call was made with, so Read
// and Write can enforce it; Node itself is shared across every open of the
// same inode and cannot hold per-open state.
type fileHandle struct {
	flags uint32
}

// accessMode returns the O_RDONLY/O_WRONLY/O_RDWR bits of an open's flags.
func accessMode(flags uint32) uint32 {
	return flags & syscall.O_ACCMODE
}

// Open validates that the target is a regular file and records the open's
// access mode for Read/Write to enforce.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.store.Lock()
	defer n.store.Unlock()
	attr, err := n.store.Getattr(n.ino)
	if err != nil {
		return nil, 0, errnoOf(err)
	}
	if attr.Type != store.TypeRegular {
		return nil, 0, syscall.EISDIR
	}
	return &fileHandle{flags: flags}, 0, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if fh, ok := f.(*fileHandle); ok && accessMode(fh.flags) == syscall.O_WRONLY {
		return nil, syscall.EACCES
	}
	n.store.Lock()
	defer n.store.Unlock()
	read, err := n.store.ReadFile(n.ino, uint64(off), dest)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if fh, ok := f.(*fileHandle); ok && accessMode(fh.flags) == syscall.O_RDONLY {
		return 0, syscall.EACCES
	}
	n.store.Lock()
	defer n.store.Unlock()
	written, err := n.store.WriteFile(n.ino, uint64(off), data, now())
	return uint32(written), errnoOf(err)
}
