package objtable

// MergeBehavior selects how SetAttributes combines new values with existing
// ones.
type MergeBehavior int

const (
	// MergeAddAndUpdate overwrites (or adds) the attribute.
	MergeAddAndUpdate MergeBehavior = iota
	// MergeAppendLists appends the new list elements onto an existing
	// list-valued attribute (creating it if absent).
	MergeAppendLists
	// MergeRemoveNull removes the attribute when its new value is the null
	// sentinel.
	MergeRemoveNull
	// MergeRemoveEmpty removes the attribute when its new value is an empty
	// string or empty list.
	MergeRemoveEmpty
)

// UpdateItem is one element of a batch passed to Table.Update.
type UpdateItem interface{ isUpdateItem() }

// AddObject creates a new object. IfNeeded makes it a no-op when an object of
// the same type and name already exists; otherwise re-adding is an error.
type AddObject struct {
	ID       ObjectID
	Attrs    map[string]AttrValue
	Pinned   bool
	Final    bool
	IfNeeded bool
}

// RemoveObject deletes an object and strips any links referencing it. Pinned
// objects cannot be removed.
type RemoveObject struct {
	ID ObjectID
}

// SetAttributes merges Attrs into the named object's attribute map per Merge.
type SetAttributes struct {
	ID    ObjectID
	Attrs map[string]AttrValue
	Merge MergeBehavior
}

// AddLink inserts a directed link. AutoUnlinkPriorByKey removes any existing
// outgoing link with the same (From, Key) first -- the mechanism used to
// re-home a Contains link on move. IfNeeded makes it a no-op when an
// identical (From, Key, To) link already exists.
type AddLink struct {
	Link                 Link
	AutoUnlinkPriorByKey bool
	IfNeeded             bool
}

// SyncExternal is a batch-boundary marker for downstream external consumers;
// it has no effect on table state.
type SyncExternal struct{}

func (AddObject) isUpdateItem()     {}
func (RemoveObject) isUpdateItem()  {}
func (SetAttributes) isUpdateItem() {}
func (AddLink) isUpdateItem()       {}
func (SyncExternal) isUpdateItem()  {}
