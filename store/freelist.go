package store

// freelist.go implements the data-block allocator: a singly-linked list
// threaded through the first 8 bytes of each free block, with its head
// kept in the superblock. Grounded on the reference implementation's
// advfs_alloc_block/advfs_free_block, which pop and push the same list.

// allocBlock removes and returns the head of the free list, or returns
// ErrNoSpace (EDQUOT) if the image is full.
func (s *Store) allocBlock() (uint64, error) {
	if s.sb.Freelist == 0 {
		return 0, ErrNoSpace
	}
	nr := s.sb.Freelist
	next := s.getU64(nr, 0)
	s.sb.Freelist = next
	s.sb.NBlockUsed++
	s.writeSuperblock()
	return nr, nil
}

// freeBlock returns a physical block to the head of the free list.
func (s *Store) freeBlock(nr uint64) {
	s.putU64(nr, 0, s.sb.Freelist)
	s.sb.Freelist = nr
	s.sb.NBlockUsed--
	s.writeSuperblock()
}
