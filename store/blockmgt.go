package store

// blockmgt.go implements access to the block-management table: one record
// per physical data block, keyed by that block's content hash once it
// holds live data. Physical block number 0 is never a valid block-mgt
// key (it doubles as "no node" in the hash BST and "end of chain" in the
// free list and indirect-block links), matching the reference
// implementation's use of 0 as a universal null block pointer.
//
// Grounded on advfs_read_block_mgt/advfs_write_block_mgt: locate a record
// by dividing its byte offset into the block-mgt area by BLOCK_SIZE, as
// inodetable.go does for inodes, then read or write only that record's
// bytes within the enclosing block.

// blockMgtLocation returns the physical block holding the block-mgt
// record for physical data block dataNr, and its byte offset within that
// block. Block-mgt records are indexed by data-block number relative to
// the start of the data area.
func (s *Store) blockMgtLocation(dataNr uint64) (block, within uint64) {
	idx := dataNr - s.sb.PtrBlock
	perBlock := s.cfg.blockMgtPerBlock()
	block = s.sb.PtrBlockMgt + idx/perBlock
	within = (idx % perBlock) * BlockMgtOnDiskSize
	return
}

func (s *Store) readBlockMgt(dataNr uint64) blockMgt {
	block, within := s.blockMgtLocation(dataNr)
	buf := s.readRawAt(block, within, BlockMgtOnDiskSize)
	return unmarshalBlockMgt(buf)
}

func (s *Store) writeBlockMgt(dataNr uint64, m blockMgt) {
	block, within := s.blockMgtLocation(dataNr)
	buf := m.marshal()
	s.writeRawAt(block, within, buf[:])
}
