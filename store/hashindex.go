package store

import (
	"bytes"
	"fmt"
)

// hashindex.go implements the content-hash index: a binary search tree
// over block-mgt records, keyed by the SHA-384 hash of the data each
// physical block holds. Tree links are physical block numbers (0 means
// "no child"/"empty tree"), so the tree needs no separate node storage
// beyond the block-mgt table itself.
//
// Grounded on the reference implementation's _block_search/_block_add/
// _block_delete, with one deliberate correction: the reference's
// single-right-child deletion case mistakenly re-tests the left child
// where it meant the right child, occasionally dropping a live subtree.
// This implementation uses the standard textbook delete (zero, one, or
// two children via in-order predecessor) throughout.

// hashCompare orders two hashes lexicographically.
func hashCompare(a, b [HashLen]byte) int {
	return bytes.Compare(a[:], b[:])
}

// hashSearch walks the BST looking for hash, returning the physical block
// number whose content produced it, or ok=false if no block matches.
func (s *Store) hashSearch(hash [HashLen]byte) (dataNr uint64, ok bool) {
	cur := s.sb.BlockMgtRoot
	for cur != 0 {
		m := s.readBlockMgt(cur)
		switch c := hashCompare(hash, m.Hash); {
		case c == 0:
			return cur, true
		case c < 0:
			cur = m.Left
		default:
			cur = m.Right
		}
	}
	return 0, false
}

// hashInsert adds dataNr, which already holds unique content hashing to
// hash, as a new leaf of the BST. The caller must have already populated
// dataNr's block-mgt record's Ref count; hashInsert only wires Hash and
// the tree links.
//
// An equal-key collision during the tree walk means two distinct physical
// blocks hash identically under SHA-384, which cannot happen within this
// image's address space; hashInsert reports it as corruption rather than
// silently routing the new block into a subtree.
func (s *Store) hashInsert(dataNr uint64, hash [HashLen]byte) error {
	m := s.readBlockMgt(dataNr)
	m.Hash = hash
	m.Left = 0
	m.Right = 0
	s.writeBlockMgt(dataNr, m)

	if s.sb.BlockMgtRoot == 0 {
		s.sb.BlockMgtRoot = dataNr
		s.writeSuperblock()
		return nil
	}

	cur := s.sb.BlockMgtRoot
	for {
		cm := s.readBlockMgt(cur)
		switch c := hashCompare(hash, cm.Hash); {
		case c == 0:
			return fmt.Errorf("%w: hash collision between blocks %d and %d", ErrCorrupt, dataNr, cur)
		case c < 0:
			if cm.Left == 0 {
				cm.Left = dataNr
				s.writeBlockMgt(cur, cm)
				return nil
			}
			cur = cm.Left
		default:
			if cm.Right == 0 {
				cm.Right = dataNr
				s.writeBlockMgt(cur, cm)
				return nil
			}
			cur = cm.Right
		}
	}
}

// hashDelete removes dataNr's node from the BST. Called once dataNr's
// reference count has dropped to zero and the block is about to be
// freed, so the node's own block-mgt record is not preserved.
func (s *Store) hashDelete(dataNr uint64) {
	var parent uint64
	isLeftChild := false
	cur := s.sb.BlockMgtRoot
	target := s.readBlockMgt(dataNr)

	for cur != dataNr {
		cm := s.readBlockMgt(cur)
		parent = cur
		if hashCompare(target.Hash, cm.Hash) < 0 {
			isLeftChild = true
			cur = cm.Left
		} else {
			isLeftChild = false
			cur = cm.Right
		}
	}

	var replacement uint64
	switch {
	case target.Left == 0 && target.Right == 0:
		replacement = 0
	case target.Left == 0:
		replacement = target.Right
	case target.Right == 0:
		replacement = target.Left
	default:
		// Two children: splice in the in-order predecessor (the
		// maximum node of the left subtree), which has at most a
		// left child of its own.
		predParent := dataNr
		pred := target.Left
		predM := s.readBlockMgt(pred)
		for predM.Right != 0 {
			predParent = pred
			pred = predM.Right
			predM = s.readBlockMgt(pred)
		}

		if predParent != dataNr {
			pm := s.readBlockMgt(predParent)
			pm.Right = predM.Left
			s.writeBlockMgt(predParent, pm)
			predM.Left = target.Left
		}
		predM.Right = target.Right
		s.writeBlockMgt(pred, predM)
		replacement = pred
	}

	if parent == 0 {
		s.sb.BlockMgtRoot = replacement
		s.writeSuperblock()
	} else {
		pm := s.readBlockMgt(parent)
		if isLeftChild {
			pm.Left = replacement
		} else {
			pm.Right = replacement
		}
		s.writeBlockMgt(parent, pm)
	}
}
