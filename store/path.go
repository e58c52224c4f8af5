package store

import (
	"encoding/binary"
	"strings"
)

// path.go implements directories: a directory inode's content is read and
// written through the same logical byte stream as a regular file (see
// dedup.go), but interpreted as a packed array of fixed-width directory
// entries. A name of all zero bytes marks a free (removed or never used)
// slot. Grounded on the reference implementation's directory entry array
// and its _path2inode_rec / _remove_inode_rec recursion, reshaped here
// into iterative path-component walking plus explicit entry compaction on
// removal (the reference implementation never compacts).

// dirEntrySize is the on-image width of one directory entry: a
// NUL-padded name followed by the 8-byte inode number it names.
const dirEntrySize = (NameMax + 1) + 8

// dirEntry is the in-memory form of one directory entry.
type dirEntry struct {
	Name string
	Ino  uint64
}

func marshalDirEntry(e dirEntry) []byte {
	buf := make([]byte, dirEntrySize)
	copy(buf, e.Name)
	binary.LittleEndian.PutUint64(buf[NameMax+1:], e.Ino)
	return buf
}

func unmarshalDirEntry(buf []byte) dirEntry {
	end := 0
	for end < NameMax+1 && buf[end] != 0 {
		end++
	}
	return dirEntry{
		Name: string(buf[:end]),
		Ino:  binary.LittleEndian.Uint64(buf[NameMax+1:]),
	}
}

// dirEntryCount returns how many entry slots dir's content currently
// spans, including free ones.
func dirEntryCount(dir *Inode) uint64 {
	return dir.Size / dirEntrySize
}

// readDirEntry reads slot i of dir's content.
func (s *Store) readDirEntry(dir *Inode, i uint64) dirEntry {
	buf := make([]byte, dirEntrySize)
	s.Read(dir, i*dirEntrySize, buf)
	return unmarshalDirEntry(buf)
}

// writeDirEntry overwrites slot i of dir's content, growing dir.Size if i
// is the first slot past the current end. dir is mutated in place; the
// caller writes it back.
func (s *Store) writeDirEntry(dir *Inode, i uint64, e dirEntry) error {
	_, err := s.Write(dir, i*dirEntrySize, marshalDirEntry(e))
	return err
}

// lookupChild returns the inode number named name within dir, or
// ErrNotExist.
func (s *Store) lookupChild(dir *Inode, name string) (uint64, error) {
	n := dirEntryCount(dir)
	for i := uint64(0); i < n; i++ {
		e := s.readDirEntry(dir, i)
		if e.Name == name {
			return e.Ino, nil
		}
	}
	return 0, ErrNotExist
}

// listChildren returns every live entry of dir, for readdir.
func (s *Store) listChildren(dir *Inode) []dirEntry {
	n := dirEntryCount(dir)
	out := make([]dirEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		e := s.readDirEntry(dir, i)
		if e.Name != "" {
			out = append(out, e)
		}
	}
	return out
}

// addChild appends a new (name, ino) entry to dir. removeChild always
// compacts the entry array on removal, so there are never interior free
// slots to reuse. dir is mutated in place; the caller writes it back.
func (s *Store) addChild(dir *Inode, name string, ino uint64) error {
	if len(name) > NameMax {
		return ErrNameTooLong
	}
	n := dirEntryCount(dir)
	return s.writeDirEntry(dir, n, dirEntry{Name: name, Ino: ino})
}

// removeChild deletes the entry named name from dir, shifting every entry
// after it down by one slot to close the gap and truncating the now-unused
// trailing slot. This preserves the relative order of the surviving
// entries, unlike filling the gap from the end of the array.
func (s *Store) removeChild(dir *Inode, name string) error {
	n := dirEntryCount(dir)
	target := uint64(0)
	found := false
	for i := uint64(0); i < n; i++ {
		if s.readDirEntry(dir, i).Name == name {
			target = i
			found = true
			break
		}
	}
	if !found {
		return ErrNotExist
	}

	for i := target; i+1 < n; i++ {
		next := s.readDirEntry(dir, i+1)
		if err := s.writeDirEntry(dir, i, next); err != nil {
			return err
		}
	}
	return s.truncate(dir, (n-1)*dirEntrySize)
}

// splitPath breaks an absolute slash-separated path into its non-empty
// components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveParent walks every component of path but the last, returning the
// inode number of the containing directory and the final component's
// name.
func (s *Store) resolveParent(path string) (parent uint64, name string, err error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return 0, "", ErrInvalid
	}
	parent = RootIno
	for _, c := range comps[:len(comps)-1] {
		dir := s.readInode(parent)
		if dir.Type != TypeDir {
			return 0, "", ErrNotDir
		}
		child, err := s.lookupChild(&dir, c)
		if err != nil {
			return 0, "", err
		}
		parent = child
	}
	return parent, comps[len(comps)-1], nil
}

// resolvePath walks every component of path, returning the final inode's
// number. The root directory resolves to RootIno.
func (s *Store) resolvePath(path string) (uint64, error) {
	comps := splitPath(path)
	cur := RootIno
	for _, c := range comps {
		dir := s.readInode(cur)
		if dir.Type != TypeDir {
			return 0, ErrNotDir
		}
		child, err := s.lookupChild(&dir, c)
		if err != nil {
			return 0, err
		}
		cur = child
	}
	return cur, nil
}
