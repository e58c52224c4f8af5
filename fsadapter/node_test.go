package fsadapter

import (
	"context"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dedupfs/dedupfs/store"
)

func newTestRoot(t *testing.T) *Node {
	t.Helper()
	st, err := store.New(store.Config{BlockSize: 512, BlockCount: 128, InodeCount: 16}, nil)
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())
	return &Node{store: st, log: log, ino: store.RootIno, path: "/"}
}

func TestChildPathJoining(t *testing.T) {
	require.Equal(t, "/foo", childPath("/", "foo"))
	require.Equal(t, "/dir/foo", childPath("/dir", "foo"))
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	root := newTestRoot(t)
	ctx := context.Background()

	var entryOut fuse.EntryOut
	ino, err := root.store.Create("/f", 0644, 1)
	require.NoError(t, err)
	child := &Node{store: root.store, ino: ino, path: "/f"}

	n, errno := child.Write(ctx, nil, []byte("hello world"), 0)
	require.Zero(t, errno)
	require.EqualValues(t, len("hello world"), n)

	buf := make([]byte, 32)
	res, errno := child.Read(ctx, nil, buf, 0)
	require.Zero(t, errno)
	read, status := res.Bytes(buf)
	require.True(t, status.Ok())
	require.Equal(t, "hello world", string(read))

	var attrOut fuse.AttrOut
	errno = child.Getattr(ctx, nil, &attrOut)
	require.Zero(t, errno)
	require.EqualValues(t, len("hello world"), attrOut.Size)
	_ = entryOut
}

func TestOpenEnforcesAccessMode(t *testing.T) {
	root := newTestRoot(t)
	ctx := context.Background()

	ino, err := root.store.Create("/f", 0644, 1)
	require.NoError(t, err)
	child := &Node{store: root.store, log: root.log, ino: ino, path: "/f"}

	rdonly, _, errno := child.Open(ctx, syscall.O_RDONLY)
	require.Zero(t, errno)
	_, errno = child.Write(ctx, rdonly, []byte("x"), 0)
	require.Equal(t, syscall.EACCES, errno, "writing through an O_RDONLY handle must fail")

	wronly, _, errno := child.Open(ctx, syscall.O_WRONLY)
	require.Zero(t, errno)
	n, errno := child.Write(ctx, wronly, []byte("x"), 0)
	require.Zero(t, errno)
	require.EqualValues(t, 1, n)
	buf := make([]byte, 1)
	_, errno = child.Read(ctx, wronly, buf, 0)
	require.Equal(t, syscall.EACCES, errno, "reading through an O_WRONLY handle must fail")

	rdwr, _, errno := child.Open(ctx, syscall.O_RDWR)
	require.Zero(t, errno)
	_, errno = child.Write(ctx, rdwr, []byte("y"), 0)
	require.Zero(t, errno)
	_, errno = child.Read(ctx, rdwr, buf, 0)
	require.Zero(t, errno)
}

func TestStatfsReportsCapacity(t *testing.T) {
	root := newTestRoot(t)
	ctx := context.Background()
	var out fuse.StatfsOut
	errno := root.Statfs(ctx, &out)
	require.Zero(t, errno)
	require.EqualValues(t, 512, out.Bsize)
	require.Equal(t, out.Blocks, out.Bfree)
}

func TestUnlinkRemovesEntry(t *testing.T) {
	root := newTestRoot(t)
	ctx := context.Background()

	var entryOut fuse.EntryOut
	_, _, _, errno := root.Create(ctx, "f", 0, 0644, &entryOut)
	require.Zero(t, errno)

	errno = root.Unlink(ctx, "f")
	require.Zero(t, errno)

	_, errno = root.Lookup(ctx, "f", &entryOut)
	require.Equal(t, errnoOf(store.ErrNotExist), errno)
}
