package store

// raw.go implements byte-addressable access to the image buffer. Every
// other file in this package reaches the image through these helpers,
// except zeroBlock in blockmap.go, which clears a block in place. This
// mirrors the reference implementation's advfs_read_raw_block/
// advfs_write_raw_block split between whole-block and sub-block access.

// blockOffset returns the byte offset of physical block nr within the
// image.
func (s *Store) blockOffset(nr uint64) uint64 {
	return nr * s.cfg.BlockSize
}

// readRaw copies one whole physical block out of the image.
func (s *Store) readRaw(nr uint64) []byte {
	off := s.blockOffset(nr)
	buf := make([]byte, s.cfg.BlockSize)
	copy(buf, s.image[off:off+s.cfg.BlockSize])
	return buf
}

// writeRaw overwrites one whole physical block in the image.
func (s *Store) writeRaw(nr uint64, buf []byte) {
	off := s.blockOffset(nr)
	copy(s.image[off:off+s.cfg.BlockSize], buf)
}

// readRawAt copies n bytes starting at byte offset within physical block
// nr, for read-modify-write access to sub-block records (inodes,
// block-mgt entries).
func (s *Store) readRawAt(nr, within uint64, n int) []byte {
	off := s.blockOffset(nr) + within
	buf := make([]byte, n)
	copy(buf, s.image[off:off+uint64(n)])
	return buf
}

// writeRawAt overwrites n bytes starting at byte offset within physical
// block nr.
func (s *Store) writeRawAt(nr, within uint64, buf []byte) {
	off := s.blockOffset(nr) + within
	copy(s.image[off:off+uint64(len(buf))], buf)
}

// getU64 reads a little-endian uint64 at byte offset within physical
// block nr. Used for the free-list link words and indirect block slots.
func (s *Store) getU64(nr, within uint64) uint64 {
	buf := s.readRawAt(nr, within, 8)
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// putU64 writes a little-endian uint64 at byte offset within physical
// block nr.
func (s *Store) putU64(nr, within, v uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	s.writeRawAt(nr, within, buf[:])
}

// writeSuperblock re-encodes s.sb into physical block 0. Callers mutate
// s.sb in memory and must call this to persist the change into the image.
func (s *Store) writeSuperblock() {
	s.writeRaw(0, s.sb.marshal(s.cfg.BlockSize))
}
