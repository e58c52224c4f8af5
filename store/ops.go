package store

// ops.go implements the filesystem-call-shaped operations that adapters
// call directly: path-addressed lookup, create/remove, truncate, and
// aggregate statistics. Each acquires no locking of its own; callers hold
// Store.mu for the duration (see store.go), matching the single global
// lock the reference implementation runs under.

// DirEntry is the externally visible shape of one directory entry,
// returned by Readdir.
type DirEntry struct {
	Name string
	Ino  uint64
}

// Lookup resolves path to an inode number and its current attributes.
func (s *Store) Lookup(path string) (uint64, Inode, error) {
	ino, err := s.resolvePath(path)
	if err != nil {
		return 0, Inode{}, err
	}
	return ino, s.readInode(ino), nil
}

// Getattr returns the current attributes of ino.
func (s *Store) Getattr(ino uint64) (Inode, error) {
	n := s.readInode(ino)
	if n.Type == TypeUnused {
		return Inode{}, ErrNotExist
	}
	return n, nil
}

// Readdir lists the entries of the directory at ino, including "." and
// "..".
func (s *Store) Readdir(ino uint64) ([]DirEntry, error) {
	dir := s.readInode(ino)
	if dir.Type != TypeDir {
		return nil, ErrNotDir
	}
	children := s.listChildren(&dir)
	out := make([]DirEntry, 0, len(children)+2)
	out = append(out, DirEntry{Name: ".", Ino: ino}, DirEntry{Name: "..", Ino: ino})
	for _, c := range children {
		out = append(out, DirEntry{Name: c.Name, Ino: c.Ino})
	}
	return out, nil
}

// Create makes a new regular file named by path and returns its inode
// number.
func (s *Store) Create(path string, mode uint64, now uint64) (uint64, error) {
	return s.createEntry(path, TypeRegular, mode, now)
}

// Mkdir makes a new directory named by path and returns its inode number.
func (s *Store) Mkdir(path string, mode uint64, now uint64) (uint64, error) {
	return s.createEntry(path, TypeDir, mode, now)
}

func (s *Store) createEntry(path string, typ InodeType, mode uint64, now uint64) (uint64, error) {
	parentIno, name, err := s.resolveParent(path)
	if err != nil {
		return 0, err
	}
	if len(name) > NameMax {
		return 0, ErrNotExist
	}
	parent := s.readInode(parentIno)
	if parent.Type != TypeDir {
		return 0, ErrNotDir
	}
	if _, err := s.lookupChild(&parent, name); err == nil {
		return 0, ErrExist
	}

	ino, err := s.allocInode()
	if err != nil {
		return 0, err
	}
	n := Inode{
		Type:  typ,
		Mode:  mode,
		Atime: now,
		Mtime: now,
		Ctime: now,
		Name:  name,
	}
	s.writeInode(ino, n)

	if err := s.addChild(&parent, name, ino); err != nil {
		s.freeInode(ino)
		return 0, err
	}
	s.writeInode(parentIno, parent)
	return ino, nil
}

// Unlink removes the regular file named by path.
func (s *Store) Unlink(path string) error {
	return s.removeEntry(path, TypeRegular)
}

// Rmdir removes the empty directory named by path.
func (s *Store) Rmdir(path string) error {
	return s.removeEntry(path, TypeDir)
}

func (s *Store) removeEntry(path string, want InodeType) error {
	parentIno, name, err := s.resolveParent(path)
	if err != nil {
		return err
	}
	parent := s.readInode(parentIno)
	if parent.Type != TypeDir {
		return ErrNotDir
	}
	ino, err := s.lookupChild(&parent, name)
	if err != nil {
		return err
	}
	n := s.readInode(ino)
	if n.Type != want {
		if want == TypeDir {
			return ErrNotDir
		}
		return ErrIsDir
	}
	if n.Type == TypeDir && len(s.listChildren(&n)) > 0 {
		return ErrNotEmpty
	}

	if err := s.truncate(&n, 0); err != nil {
		return err
	}
	s.freeInode(ino)

	if err := s.removeChild(&parent, name); err != nil {
		return err
	}
	s.writeInode(parentIno, parent)
	return nil
}

// Truncate resizes the file at ino to newSize, releasing any blocks made
// unreachable by a shrink. Growing a file zero-fills the new region through
// the normal write path, so the extension is backed by a real (shared)
// zero block rather than left as a hole.
func (s *Store) Truncate(ino uint64, newSize uint64) error {
	n := s.readInode(ino)
	if n.Type != TypeRegular {
		return ErrIsDir
	}
	if err := s.truncate(&n, newSize); err != nil {
		return err
	}
	s.writeInode(ino, n)
	return nil
}

// truncate is the shared shrink/grow implementation used by Truncate,
// Unlink and Rmdir (which truncate to 0 before freeing the inode). n is
// mutated in place; the caller writes it back.
//
// Growth zero-fills the extended region through the normal dedup write
// path rather than leaving it an unresolved hole, so every file's
// zero-extended tail ends up sharing the same physical zero block.
func (s *Store) truncate(n *Inode, newSize uint64) error {
	oldBlocks := divCeil(n.Size, s.cfg.BlockSize)
	newBlocks := divCeil(newSize, s.cfg.BlockSize)

	switch {
	case newBlocks < oldBlocks:
		for idx := newBlocks; idx < oldBlocks; idx++ {
			phys := s.resolveBlockMap(n, idx)
			if phys != 0 {
				s.releaseBlock(phys)
				s.clearBlockMap(n, idx)
				n.NBlocks--
			}
		}
		s.shrinkIndirectChain(n, newBlocks)
		n.Size = newSize
	case newSize > n.Size:
		zeros := make([]byte, newSize-n.Size)
		if _, err := s.Write(n, n.Size, zeros); err != nil {
			if err == ErrNoSpace {
				return ErrFileTooBig
			}
			return err
		}
	default:
		n.Size = newSize
	}
	return nil
}

// ReadFile reads up to len(dst) bytes of the regular file at ino starting
// at byte offset off, returning the number of bytes copied.
func (s *Store) ReadFile(ino uint64, off uint64, dst []byte) (int, error) {
	n := s.readInode(ino)
	if n.Type != TypeRegular {
		return 0, ErrIsDir
	}
	return s.Read(&n, off, dst), nil
}

// WriteFile writes src into the regular file at ino starting at byte
// offset off, stamping mtime on success, and persists the resulting
// inode (including any block-map growth) before returning.
func (s *Store) WriteFile(ino uint64, off uint64, src []byte, mtime uint64) (int, error) {
	n := s.readInode(ino)
	if n.Type != TypeRegular {
		return 0, ErrIsDir
	}
	written, err := s.Write(&n, off, src)
	if written > 0 {
		n.Mtime = mtime
	}
	s.writeInode(ino, n)
	return written, err
}

// SetAttr applies a mode/time change to ino; nil fields are left alone.
func (s *Store) SetAttr(ino uint64, mode, atime, mtime *uint64) error {
	n := s.readInode(ino)
	if n.Type == TypeUnused {
		return ErrNotExist
	}
	if mode != nil {
		n.Mode = *mode
	}
	if atime != nil {
		n.Atime = *atime
	}
	if mtime != nil {
		n.Mtime = *mtime
	}
	s.writeInode(ino, n)
	return nil
}

// StatfsResult mirrors the aggregate counters a statfs(2) call reports.
type StatfsResult struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	Inodes     uint64
	InodesFree uint64
	NameMax    uint64
}

// Statfs summarizes the image's capacity and usage.
func (s *Store) Statfs() StatfsResult {
	return StatfsResult{
		BlockSize:  s.cfg.BlockSize,
		Blocks:     s.sb.NBlocks,
		BlocksFree: s.sb.NBlocks - s.sb.NBlockUsed,
		Inodes:     s.sb.NInodes,
		InodesFree: s.sb.NInodes - s.sb.NInodeUsed,
		NameMax:    NameMax,
	}
}

// CheckInvariants walks the directory tree from the root, recounts the
// references to every data block it reaches, and returns ErrInvalid if any
// such block's stored reference count differs, or nil otherwise. No other
// invariant is checked. It is a diagnostic only; nothing in normal
// operation calls it.
func (s *Store) CheckInvariants() error {
	seen := make(map[uint64]uint64) // physical block -> observed ref count

	accountBlocks := func(n *Inode) {
		blocks := divCeil(n.Size, s.cfg.BlockSize)
		for idx := uint64(0); idx < blocks; idx++ {
			if phys := s.resolveBlockMap(n, idx); phys != 0 {
				seen[phys]++
			}
		}
	}

	var walk func(ino uint64) error
	walk = func(ino uint64) error {
		n := s.readInode(ino)
		accountBlocks(&n)
		for _, c := range s.listChildren(&n) {
			child := s.readInode(c.Ino)
			if child.Type == TypeDir {
				if err := walk(c.Ino); err != nil {
					return err
				}
			} else {
				accountBlocks(&child)
			}
		}
		return nil
	}
	if err := walk(RootIno); err != nil {
		return err
	}
	for phys, count := range seen {
		m := s.readBlockMgt(phys)
		if m.Ref != count {
			return ErrInvalid
		}
	}
	return nil
}
