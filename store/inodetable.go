package store

// inodetable.go implements access to the fixed-size inode table, plus the
// root-inode special case: RootIno is never stored in the table, it lives
// embedded in the superblock (see layout.go), so readInode and writeInode
// branch on it before touching the table.
//
// Grounded on the reference implementation's advfs_read_inode/
// advfs_write_inode, which locate a record by dividing its byte offset
// into the table area by BLOCK_SIZE and reading/writing the enclosing
// block whole.

// inodeLocation returns the physical block holding inode nr and nr's byte
// offset within that block. Inode records are packed inodesPerBlock() to a
// block with any remainder left as padding; no record spans a block
// boundary (unlike directory entries, see path.go).
func (s *Store) inodeLocation(nr uint64) (block, within uint64) {
	perBlock := s.cfg.inodesPerBlock()
	block = s.sb.PtrInode + nr/perBlock
	within = (nr % perBlock) * InodeOnDiskSize
	return
}

// readInode returns the inode numbered nr, which may be RootIno.
func (s *Store) readInode(nr uint64) Inode {
	if nr == RootIno {
		return s.sb.Root
	}
	block, within := s.inodeLocation(nr)
	buf := s.readRawAt(block, within, InodeOnDiskSize)
	return unmarshalInode(buf)
}

// writeInode overwrites the inode numbered nr, which may be RootIno.
func (s *Store) writeInode(nr uint64, n Inode) {
	if nr == RootIno {
		s.sb.Root = n
		s.writeSuperblock()
		return
	}
	block, within := s.inodeLocation(nr)
	buf := n.marshal()
	s.writeRawAt(block, within, buf[:])
}

// allocInode finds an unused slot in the inode table, marks it used in
// the superblock accounting and returns its number. It does not write an
// inode record; callers must writeInode before releasing the store lock.
func (s *Store) allocInode() (uint64, error) {
	for nr := uint64(0); nr < s.cfg.InodeCount; nr++ {
		if s.readInode(nr).Type == TypeUnused {
			s.sb.NInodeUsed++
			s.writeSuperblock()
			return nr, nil
		}
	}
	return 0, ErrNoInodes
}

// freeInode marks inode nr unused and clears its record.
func (s *Store) freeInode(nr uint64) {
	s.writeInode(nr, Inode{})
	s.sb.NInodeUsed--
	s.writeSuperblock()
}
