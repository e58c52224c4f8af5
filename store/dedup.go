package store

import "crypto/sha512"

// dedup.go implements the content-addressed read/write path: every data
// block write is hashed, looked up in the hash BST, and either shared
// with an existing identical block (ref++) or allocated fresh. Divergent
// overwrites of a shared block copy-on-write into a new block rather than
// mutating shared content. Grounded on the reference implementation's
// advfs_read_block/advfs_write_block.
//
// Hashing uses SHA-384 (crypto/sha512.Sum384), whose 48-byte digest is
// exactly HashLen bytes, matching the reference filesystem's digest width.

func contentHash(data []byte) [HashLen]byte {
	return sha512.Sum384(data)
}

// readLogicalBlock returns the full contents of logical block idx of n,
// or all zeroes if that logical block is a hole.
func (s *Store) readLogicalBlock(n *Inode, idx uint64) []byte {
	phys := s.resolveBlockMap(n, idx)
	if phys == 0 {
		return make([]byte, s.cfg.BlockSize)
	}
	return s.readRaw(phys)
}

// writeLogicalBlock stores data (exactly one block's worth) as logical
// block idx of n, deduplicating against the hash index. n is mutated in
// place (its block map and NBlocks); the caller writes n back afterward.
func (s *Store) writeLogicalBlock(n *Inode, idx uint64, data []byte) error {
	hash := contentHash(data)
	oldPhys := s.resolveBlockMap(n, idx)

	if found, ok := s.hashSearch(hash); ok {
		if oldPhys == found {
			// Idempotent rewrite of identical content into the block it
			// already occupies: nothing to do.
			return nil
		}
		m := s.readBlockMgt(found)
		m.Ref++
		s.writeBlockMgt(found, m)
		if err := s.updateBlockMap(n, idx, found); err != nil {
			m.Ref--
			s.writeBlockMgt(found, m)
			return err
		}
		if oldPhys != 0 {
			s.releaseBlock(oldPhys)
		} else {
			n.NBlocks++
		}
		return nil
	}

	// No existing block has this content. If we can overwrite oldPhys in
	// place (we hold the only reference to it) reuse it; otherwise
	// allocate a fresh block. Either way the block's hash moves, so its
	// hash-BST position must move too.
	if oldPhys != 0 {
		m := s.readBlockMgt(oldPhys)
		if m.Ref == 1 {
			s.hashDelete(oldPhys)
			s.writeRaw(oldPhys, data)
			if err := s.hashInsert(oldPhys, hash); err != nil {
				return err
			}
			m = s.readBlockMgt(oldPhys)
			m.Ref = 1
			s.writeBlockMgt(oldPhys, m)
			return nil
		}
		// Shared block diverging: copy-on-write into a new block and
		// drop our reference to the old one.
		nr, err := s.allocBlock()
		if err != nil {
			return err
		}
		s.writeRaw(nr, data)
		s.initBlockMgt(nr)
		if err := s.hashInsert(nr, hash); err != nil {
			s.freeBlock(nr)
			return err
		}
		if err := s.updateBlockMap(n, idx, nr); err != nil {
			s.freeBlock(nr)
			return err
		}
		s.releaseBlock(oldPhys)
		return nil
	}

	nr, err := s.allocBlock()
	if err != nil {
		return err
	}
	s.writeRaw(nr, data)
	s.initBlockMgt(nr)
	if err := s.hashInsert(nr, hash); err != nil {
		s.freeBlock(nr)
		return err
	}
	if err := s.updateBlockMap(n, idx, nr); err != nil {
		s.freeBlock(nr)
		return err
	}
	n.NBlocks++
	return nil
}

// initBlockMgt zeroes a freshly allocated block's block-mgt record before
// it is inserted into the hash index, giving it a fresh ref count of 1.
func (s *Store) initBlockMgt(nr uint64) {
	s.writeBlockMgt(nr, blockMgt{Ref: 1})
}

// releaseBlock drops one reference from physical block nr, removing it
// from the hash index and returning it to the free list once its
// reference count reaches zero.
func (s *Store) releaseBlock(nr uint64) {
	m := s.readBlockMgt(nr)
	m.Ref--
	if m.Ref > 0 {
		s.writeBlockMgt(nr, m)
		return
	}
	s.hashDelete(nr)
	s.freeBlock(nr)
}

// Read fills dst with up to len(dst) bytes of n's content starting at
// byte offset off, returning the number of bytes copied. Reads past EOF
// return 0; reads overlapping EOF are truncated to the inode's Size.
func (s *Store) Read(n *Inode, off uint64, dst []byte) int {
	if off >= n.Size {
		return 0
	}
	if uint64(len(dst)) > n.Size-off {
		dst = dst[:n.Size-off]
	}

	total := 0
	for total < len(dst) {
		idx := (off + uint64(total)) / s.cfg.BlockSize
		within := (off + uint64(total)) % s.cfg.BlockSize
		block := s.readLogicalBlock(n, idx)
		n2 := copy(dst[total:], block[within:])
		total += n2
	}
	return total
}

// Write stores src at byte offset off of n, growing n.Size and its block
// map as needed. n is mutated in place; the caller writes it back.
func (s *Store) Write(n *Inode, off uint64, src []byte) (int, error) {
	total := 0
	for total < len(src) {
		idx := (off + uint64(total)) / s.cfg.BlockSize
		within := (off + uint64(total)) % s.cfg.BlockSize

		chunk := s.cfg.BlockSize - within
		if remaining := uint64(len(src) - total); chunk > remaining {
			chunk = remaining
		}

		block := s.readLogicalBlock(n, idx)
		copy(block[within:within+chunk], src[total:total+int(chunk)])
		if err := s.writeLogicalBlock(n, idx, block); err != nil {
			return total, err
		}
		total += int(chunk)
	}
	if end := off + uint64(total); end > n.Size {
		n.Size = end
	}
	return total, nil
}
