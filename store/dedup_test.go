package store

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{BlockSize: 512, BlockCount: 256, InodeCount: 32}, nil)
	require.NoError(t, err)
	return s
}

func TestDedupSharesIdenticalBlocks(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Create("/a", 0644, 1)
	require.NoError(t, err)
	b, err := s.Create("/b", 0644, 1)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{'x'}, int(s.cfg.BlockSize))

	na := s.readInode(a)
	_, err = s.Write(&na, 0, data)
	require.NoError(t, err)
	s.writeInode(a, na)

	before := s.sb.NBlockUsed

	nb := s.readInode(b)
	_, err = s.Write(&nb, 0, data)
	require.NoError(t, err)
	s.writeInode(b, nb)

	require.Equal(t, before, s.sb.NBlockUsed, "writing identical content must not consume a new block")

	na = s.readInode(a)
	nb = s.readInode(b)
	require.Equal(t, s.resolveBlockMap(&na, 0), s.resolveBlockMap(&nb, 0))
}

func TestCopyOnWriteOnDivergence(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	b, _ := s.Create("/b", 0644, 1)

	data := bytes.Repeat([]byte{'x'}, int(s.cfg.BlockSize))
	na := s.readInode(a)
	s.Write(&na, 0, data)
	s.writeInode(a, na)
	nb := s.readInode(b)
	s.Write(&nb, 0, data)
	s.writeInode(b, nb)

	na = s.readInode(a)
	shared := s.resolveBlockMap(&na, 0)
	m := s.readBlockMgt(shared)
	require.Equal(t, uint64(2), m.Ref)

	other := bytes.Repeat([]byte{'y'}, int(s.cfg.BlockSize))
	nb = s.readInode(b)
	s.Write(&nb, 0, other)
	s.writeInode(b, nb)

	nb = s.readInode(b)
	divergedPhys := s.resolveBlockMap(&nb, 0)
	require.NotEqual(t, shared, divergedPhys, "divergent write must copy-on-write into a new block")

	m = s.readBlockMgt(shared)
	require.Equal(t, uint64(1), m.Ref, "the original block keeps exactly the surviving reference")

	buf := make([]byte, s.cfg.BlockSize)
	s.Read(&na, 0, buf)
	require.Equal(t, data, buf, "the untouched file must still read its original content")
}

func TestIdempotentRewrite(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	data := bytes.Repeat([]byte{'z'}, int(s.cfg.BlockSize))
	na := s.readInode(a)
	s.Write(&na, 0, data)
	s.writeInode(a, na)

	used := s.sb.NBlockUsed
	na = s.readInode(a)
	phys := s.resolveBlockMap(&na, 0)

	s.Write(&na, 0, data)
	s.writeInode(a, na)

	na = s.readInode(a)
	require.Equal(t, used, s.sb.NBlockUsed, "rewriting identical content must not change block usage")
	require.Equal(t, phys, s.resolveBlockMap(&na, 0))
}

func TestSparseWriteLeavesHoleBeforeOffset(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	na := s.readInode(a)

	// Writing at an offset past the current end leaves the skipped
	// logical blocks as real holes: no block is allocated for them.
	_, err := s.Write(&na, s.cfg.BlockSize*2, []byte("x"))
	require.NoError(t, err)
	s.writeInode(a, na)

	na = s.readInode(a)
	require.Zero(t, s.resolveBlockMap(&na, 0), "a skipped logical block must remain an unallocated hole")
	require.Zero(t, s.resolveBlockMap(&na, 1), "a skipped logical block must remain an unallocated hole")

	buf := make([]byte, s.cfg.BlockSize)
	s.Read(&na, 0, buf)
	require.Equal(t, make([]byte, s.cfg.BlockSize), buf, "unwritten logical blocks must read back as zero")
}

func TestTruncateGrowthZeroFillsAndShares(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	b, _ := s.Create("/b", 0644, 1)

	require.NoError(t, s.Truncate(a, s.cfg.BlockSize*4))
	require.NoError(t, s.Truncate(b, s.cfg.BlockSize*4))

	na := s.readInode(a)
	nb := s.readInode(b)
	require.Equal(t, s.cfg.BlockSize*4, na.Size)
	require.Equal(t, s.cfg.BlockSize*4, nb.Size)

	// Truncate's growth path zero-fills through the normal dedup write
	// path, so both files' grown regions must resolve to one shared
	// physical block, not remain holes.
	physA := s.resolveBlockMap(&na, 2)
	physB := s.resolveBlockMap(&nb, 2)
	require.NotZero(t, physA, "truncate growth must allocate, not leave a hole")
	require.Equal(t, physA, physB, "zero-extended regions of distinct files must share one physical block")

	m := s.readBlockMgt(physA)
	require.Equal(t, uint64(8), m.Ref, "the shared zero block must be referenced by every zero-filled logical slot")

	buf := make([]byte, s.cfg.BlockSize)
	s.Read(&na, s.cfg.BlockSize*2, buf)
	require.Equal(t, make([]byte, s.cfg.BlockSize), buf)
}

func TestRoundTripAcrossIndirectBoundary(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	na := s.readInode(a)

	// directSlots blocks fit directly; push well past that into the
	// indirect chain.
	total := int(directSlots+5) * int(s.cfg.BlockSize)
	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i)
	}
	_, err := s.Write(&na, 0, src)
	require.NoError(t, err)
	s.writeInode(a, na)

	na = s.readInode(a)
	dst := make([]byte, total)
	n := s.Read(&na, 0, dst)
	require.Equal(t, total, n)
	require.Equal(t, src, dst)
}

func TestTruncateReleasesBlocks(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("/a", 0644, 1)
	baseUsed := s.sb.NBlockUsed // accounts for root directory's own content block(s)

	na := s.readInode(a)
	data := make([]byte, int(directSlots+3)*int(s.cfg.BlockSize))
	for i := range data {
		data[i] = 1
	}
	s.Write(&na, 0, data)
	s.writeInode(a, na)
	require.Greater(t, s.sb.NBlockUsed, baseUsed)

	require.NoError(t, s.Truncate(a, 0))
	require.Equal(t, baseUsed, s.sb.NBlockUsed, "truncating to zero must release every block, including indirect ones")
}
