package foster

// traverse.go implements spec.md §4.7: lock-coupled descent that
// follows foster chains and opportunistically adopts a child's foster
// relationship into its parent along the way. It is grounded on the
// teacher's BufMgr.LoadPage (bufmgr.go), which is the same shape of
// algorithm (latch child, release parent, descend) minus the
// disk-paging/pinning machinery this module doesn't need, plus
// bltree.go's insertKey retry loop for the split-retry half of Put.

// stripPrefix removes n's stored-key prefix from a full key. Callers
// must already know key falls within n's declared prefix (true for any
// key that reached n through a correct traversal).
func stripPrefix(n *Node, key []byte) []byte {
	p := n.Prefix()
	if len(p) == 0 {
		return key
	}
	if len(key) < len(p) {
		return key
	}
	return key[len(p):]
}

// traverse descends from root to the leaf responsible for key, holding
// at most two latches at once (lock coupling). If forUpdate, the
// returned leaf is held with a write latch; otherwise a read latch.
// When adopt is true, opportunistic adoption is attempted at every
// branch level along the way.
func (t *Tree) traverse(key []byte, forUpdate, adopt bool) *Node {
	rootID := t.store.RootID()
	current := t.store.Get(rootID)
	currentWrite := forUpdate && current.IsLeaf()
	if currentWrite {
		current.latch.AcquireWrite()
	} else {
		current.latch.AcquireRead()
	}

	for {
		if current.IsLeaf() {
			break
		}
		// follow the foster chain at this level until current's range
		// covers key.
		for !current.KeyRangeContains(key) {
			fid, ok := current.FosterChildID()
			if !ok {
				if debugAsserts {
					invariantViolation("branch %d: foster chain invariant violated", current.id)
				}
				break
			}
			foster := t.store.Get(fid)
			foster.latch.AcquireRead()
			current.latch.ReleaseRead()
			current = foster
			currentWrite = false
		}

		relKey := stripPrefix(current, key)
		slot := findChildSlot(current, t.codec, relKey)
		_, childID := t.codec.DecodeBranch(current.page.GetPayloadForSlot(slot))
		child := t.store.Get(childID)
		childWrite := forUpdate && child.IsLeaf()
		if childWrite {
			child.latch.AcquireWrite()
		} else {
			child.latch.AcquireRead()
		}

		if adopt && child.HasFosterChild() {
			if t.tryAdopt(current, child, childWrite) {
				if childWrite {
					child.latch.ReleaseWrite()
				} else {
					child.latch.ReleaseRead()
				}
				if !current.KeyRangeContains(key) && !current.HasFosterChild() {
					// adoption grew the root and narrowed current's
					// range; restart the descent from the new root.
					current.latch.ReleaseRead()
					return t.traverse(key, forUpdate, adopt)
				}
				continue // restart at current, without releasing it
			}
		}

		if currentWrite {
			current.latch.ReleaseWrite()
		} else {
			current.latch.ReleaseRead()
		}
		current = child
		currentWrite = childWrite
	}

	// walk the foster chain at the leaf level.
	for !current.KeyRangeContains(key) {
		fid, ok := current.FosterChildID()
		if !ok {
			if debugAsserts {
				invariantViolation("leaf %d: foster chain invariant violated", current.id)
			}
			break
		}
		foster := t.store.Get(fid)
		if currentWrite {
			foster.latch.AcquireWrite()
			current.latch.ReleaseWrite()
		} else {
			foster.latch.AcquireRead()
			current.latch.ReleaseRead()
		}
		current = foster
	}
	return current
}

// tryAdopt implements spec.md §4.7's try_adopt(parent_in_read,
// child_with_foster): it upgrades both latches, installs the child's
// foster relationship as a separator in the parent (foster-splitting
// the parent first if it has no room), dissolves the child's foster
// link, and downgrades both latches back to their original mode.
// childIsWrite tells it whether child is already held for writing (so
// it must not be upgraded/downgraded).
func (t *Tree) tryAdopt(parent, child *Node, childIsWrite bool) bool {
	if !parent.latch.AttemptUpgrade() {
		return false
	}
	childUpgraded := false
	if !childIsWrite {
		if !child.latch.AttemptUpgrade() {
			parent.latch.Downgrade()
			return false
		}
		childUpgraded = true
	}

	chKey := child.FosterKey()
	if chKey == nil {
		chKey = child.HighKey()
	}
	chChildID, _ := child.FosterChildID()

	if !t.adoptInto(parent, chKey, chChildID) {
		parent.latch.Downgrade()
		if childUpgraded {
			child.latch.Downgrade()
		}
		return false
	}

	child.clearFosterLink()
	child.SetHighKey(chKey)
	child.MaybeGrowPrefix(t.codec)

	parent.latch.Downgrade()
	if childUpgraded {
		child.latch.Downgrade()
	}
	return true
}

// adoptInto inserts (key, childID) into parent, foster-splitting parent
// first (and growing the root, if parent is currently the root) when
// there is no room.
func (t *Tree) adoptInto(parent *Node, key []byte, childID uint64) bool {
	relKey := stripPrefix(parent, key)
	if insertBranch(parent, t.codec, relKey, childID) {
		return true
	}

	wasRoot := parent.id == t.store.RootID()
	newNode := t.store.Create(t.pageSize, parent.Level())
	if !Split(parent, newNode, t.codec, t.logger) {
		return false
	}
	if wasRoot {
		t.growRoot(parent)
	}

	// Retarget by key range, not plain fence containment: parent's
	// HighKey is still the pre-split value, so fence containment alone
	// can't tell the two sides apart. parent.KeyRangeContains also
	// checks key < FosterKey (=splitKey), which is what actually decides
	// which side of the split owns key (spec.md §4.7).
	target := parent
	if !parent.KeyRangeContains(key) {
		target = newNode
	}
	relKey2 := stripPrefix(target, key)
	return insertBranch(target, t.codec, relKey2, childID)
}
