package store

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Store is one mounted image: a flat in-memory buffer laid out as
// superblock + inode table + block-management table + data blocks, plus
// the single mutex that serializes every operation against it.
//
// There is no persistence layer: the image lives only in the buffer for
// the lifetime of the process, matching the reference filesystem this
// engine reimplements.
type Store struct {
	mu  sync.Mutex
	cfg Config
	log *logrus.Entry

	image []byte
	sb    superblock
}

// New allocates a fresh, empty image of the given dimensions and formats
// it: a free list chaining every data block, an empty hash BST, and a root
// directory with no entries (Readdir reports only "." and "..").
func New(cfg Config, log *logrus.Entry) (*Store, error) {
	if cfg.BlockSize == 0 || cfg.BlockCount == 0 || cfg.InodeCount == 0 {
		return nil, ErrInvalid
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		cfg:   cfg,
		log:   log,
		image: make([]byte, cfg.BlockSize*cfg.BlockCount),
	}
	s.format()
	return s, nil
}

// format lays out a brand-new image: block 0 is the superblock, the inode
// table and block-management table follow, and the remainder is the free
// data-block area chained into a singly-linked free list.
func (s *Store) format() {
	inodeBlocks := divCeil(s.cfg.InodeCount, s.cfg.inodesPerBlock())
	blockMgtBlocks := divCeil(s.cfg.BlockCount, s.cfg.blockMgtPerBlock())

	ptrInode := uint64(1)
	ptrBlockMgt := ptrInode + inodeBlocks
	ptrBlock := ptrBlockMgt + blockMgtBlocks

	s.sb = superblock{
		PtrInode:    ptrInode,
		PtrBlockMgt: ptrBlockMgt,
		PtrBlock:    ptrBlock,
		NInodes:     s.cfg.InodeCount,
		NInodeUsed:  0,
		NBlocks:     s.cfg.BlockCount - ptrBlock,
		NBlockUsed:  0,
		Freelist:    ptrBlock,
	}
	s.sb.Root = Inode{
		Type:  TypeDir,
		Mode:  0755,
		Name:  "/",
	}

	// Chain every data block into the free list: block i's first 8 bytes
	// hold the physical number of the next free block, 0 terminating it.
	for b := ptrBlock; b < s.cfg.BlockCount; b++ {
		next := uint64(0)
		if b+1 < s.cfg.BlockCount {
			next = b + 1
		}
		s.putU64(b, 0, next)
	}

	s.writeSuperblock()
}

// divCeil returns ceil(a/b) for positive b.
func divCeil(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}

// Lock and Unlock expose the store's single global mutex to callers that
// need to group several core calls into one atomic filesystem operation
// (e.g. an adapter implementing rename-like semantics across two calls).
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// Config returns the dimensions this store was created with.
func (s *Store) Config() Config { return s.cfg }
