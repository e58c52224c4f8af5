package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootDirectoryStartsEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.Readdir(RootIno)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ".", entries[0].Name)
	require.Equal(t, "..", entries[1].Name)
}

func TestCreateMkdirAndLookup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Mkdir("/dir", 0755, 1)
	require.NoError(t, err)
	_, err = s.Create("/dir/file", 0644, 1)
	require.NoError(t, err)

	ino, n, err := s.Lookup("/dir/file")
	require.NoError(t, err)
	require.Equal(t, TypeRegular, n.Type)
	require.NotZero(t, ino)

	_, _, err = s.Lookup("/dir/missing")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("/f", 0644, 1)
	require.NoError(t, err)
	_, err = s.Create("/f", 0644, 1)
	require.ErrorIs(t, err, ErrExist)
}

func TestRmdirRequiresEmpty(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Mkdir("/d", 0755, 1)
	require.NoError(t, err)
	_, err = s.Create("/d/f", 0644, 1)
	require.NoError(t, err)

	require.ErrorIs(t, s.Rmdir("/d"), ErrNotEmpty)
	require.NoError(t, s.Unlink("/d/f"))
	require.NoError(t, s.Rmdir("/d"))

	_, _, err = s.Lookup("/d")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestDirectoryEntryCompactionOnRemoval(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"/a", "/b", "/c"} {
		_, err := s.Create(name, 0644, 1)
		require.NoError(t, err)
	}
	root := s.readInode(RootIno)
	slotsBefore := dirEntryCount(&root)
	require.EqualValues(t, 3, slotsBefore)

	require.NoError(t, s.Unlink("/b"))
	root = s.readInode(RootIno)
	require.EqualValues(t, 2, dirEntryCount(&root), "removing a middle entry must compact the slot array")

	entries, err := s.Readdir(RootIno)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["a"])
	require.True(t, names["c"])
	require.False(t, names["b"])
}

func TestUnlinkThenRecreateReusesInode(t *testing.T) {
	s := newTestStore(t)
	ino1, err := s.Create("/f", 0644, 1)
	require.NoError(t, err)
	require.NoError(t, s.Unlink("/f"))

	ino2, err := s.Create("/g", 0644, 1)
	require.NoError(t, err)
	require.Equal(t, ino1, ino2, "a freed inode slot must be reusable")
}
