package objtable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"subflow/engine/internal/publisher"
)

var (
	// ErrNilBatch is returned by Update for a nil or empty batch -- a
	// programmer error per spec.md Error Handling Design.
	ErrNilBatch = errors.New("objtable: empty update batch")
)

type record struct {
	uuid   uuid.UUID
	attrs  map[string]AttrValue
	pinned bool
	final  bool
}

func (r *record) clone() *record {
	if r == nil {
		return nil
	}
	return &record{uuid: r.uuid, attrs: cloneAttrs(r.attrs), pinned: r.pinned, final: r.final}
}

// Table is a keyed store of objects with a forward and reverse link index.
// Updates are applied atomically: a batch is staged, validated against the
// invariants in spec.md section 3, and only then committed and published.
type Table struct {
	mu sync.Mutex

	objects  map[ObjectID]*record
	outLinks map[ObjectID]map[string][]ObjectID // from -> key -> []to
	inLinks  map[ObjectID]map[string][]ObjectID // to -> key -> []from

	publishers map[ObjectID]*publisher.Publisher[Object]
	batchSeq   uint64

	onCommit func(batchSeq uint64, touched []ObjectID)
}

// New constructs an empty Table.
func New() *Table {
	return &Table{
		objects:    make(map[ObjectID]*record),
		outLinks:   make(map[ObjectID]map[string][]ObjectID),
		inLinks:    make(map[ObjectID]map[string][]ObjectID),
		publishers: make(map[ObjectID]*publisher.Publisher[Object]),
	}
}

// OnCommit registers a hook invoked after each successfully committed batch
// with the batch's sequence number and the set of object ids it touched
// (including removed ones). No engine component registers a hook; it is not
// part of the core update contract.
func (t *Table) OnCommit(fn func(batchSeq uint64, touched []ObjectID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = fn
}

// Update applies an ordered batch atomically. No mutation and no publication
// occur if any item fails.
func (t *Table) Update(items []UpdateItem) error {
	if len(items) == 0 {
		return ErrNilBatch
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := newTxn(t)
	for _, it := range items {
		if err := tx.apply(it); err != nil {
			return err
		}
	}
	if err := tx.validateInvariants(); err != nil {
		return err
	}
	touched := tx.commit()
	if t.onCommit != nil {
		t.onCommit(t.batchSeq, touched)
	}
	return nil
}

// GetObject returns a snapshot of the named object, or false if absent.
func (t *Table) GetObject(id ObjectID) (*Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(id)
}

// GetPublisher returns (creating if necessary) the Publisher for id.
func (t *Table) GetPublisher(id ObjectID) *publisher.Publisher[Object] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.publisherLocked(id)
}

func (t *Table) publisherLocked(id ObjectID) *publisher.Publisher[Object] {
	p, ok := t.publishers[id]
	if !ok {
		p = publisher.New[Object]()
		t.publishers[id] = p
		if obj, present := t.snapshotLocked(id); present {
			p.Publish(obj)
		}
	}
	return p
}

func (t *Table) snapshotLocked(id ObjectID) (*Object, bool) {
	r, ok := t.objects[id]
	if !ok {
		return nil, false
	}
	obj := &Object{ID: id, UUID: r.uuid, Attrs: cloneAttrs(r.attrs), Pinned: r.pinned, Final: r.final}
	for key, tos := range t.outLinks[id] {
		for _, to := range tos {
			obj.Out = append(obj.Out, Link{From: id, Key: key, To: to})
		}
	}
	for key, froms := range t.inLinks[id] {
		for _, from := range froms {
			obj.In = append(obj.In, Link{From: from, Key: key, To: id})
		}
	}
	return obj, true
}

// republish publishes the current committed state (or a tombstone, if the
// object no longer exists) for every id in ids.
func (t *Table) republish(ids []ObjectID) {
	for _, id := range ids {
		p := t.publisherLocked(id)
		if obj, ok := t.snapshotLocked(id); ok {
			p.Publish(obj)
		} else {
			p.Publish(nil)
		}
	}
}

// --- staging transaction -----------------------------------------------

type txn struct {
	t *Table

	objs    map[ObjectID]*record
	out     map[ObjectID]map[string][]ObjectID
	in      map[ObjectID]map[string][]ObjectID
	removed map[ObjectID]bool
	touched map[ObjectID]bool
}

func newTxn(t *Table) *txn {
	return &txn{
		t:       t,
		objs:    make(map[ObjectID]*record),
		out:     make(map[ObjectID]map[string][]ObjectID),
		in:      make(map[ObjectID]map[string][]ObjectID),
		removed: make(map[ObjectID]bool),
		touched: make(map[ObjectID]bool),
	}
}

func (tx *txn) markTouched(id ObjectID) { tx.touched[id] = true }

func (tx *txn) getRecord(id ObjectID) (*record, bool) {
	if tx.removed[id] {
		return nil, false
	}
	if r, ok := tx.objs[id]; ok {
		return r, true
	}
	if r, ok := tx.t.objects[id]; ok {
		return r, true
	}
	return nil, false
}

func (tx *txn) getOut(id ObjectID) map[string][]ObjectID {
	if m, ok := tx.out[id]; ok {
		return m
	}
	m := make(map[string][]ObjectID)
	for k, v := range tx.t.outLinks[id] {
		cp := make([]ObjectID, len(v))
		copy(cp, v)
		m[k] = cp
	}
	tx.out[id] = m
	return m
}

func (tx *txn) getIn(id ObjectID) map[string][]ObjectID {
	if m, ok := tx.in[id]; ok {
		return m
	}
	m := make(map[string][]ObjectID)
	for k, v := range tx.t.inLinks[id] {
		cp := make([]ObjectID, len(v))
		copy(cp, v)
		m[k] = cp
	}
	tx.in[id] = m
	return m
}

func removeFromSlice(s []ObjectID, id ObjectID) []ObjectID {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (tx *txn) apply(item UpdateItem) error {
	switch it := item.(type) {
	case AddObject:
		return tx.applyAddObject(it)
	case RemoveObject:
		return tx.applyRemoveObject(it)
	case SetAttributes:
		return tx.applySetAttributes(it)
	case AddLink:
		return tx.applyAddLink(it)
	case SyncExternal:
		return nil
	default:
		return fmt.Errorf("objtable: unknown update item %T", item)
	}
}

func (tx *txn) applyAddObject(it AddObject) error {
	if it.ID.IsZero() {
		return errors.New("objtable: AddObject with empty id")
	}
	if _, exists := tx.getRecord(it.ID); exists {
		if it.IfNeeded {
			return nil
		}
		return fmt.Errorf("objtable: object %+v already exists", it.ID)
	}
	tx.objs[it.ID] = &record{uuid: uuid.New(), attrs: cloneAttrs(it.Attrs), pinned: it.Pinned, final: it.Final}
	delete(tx.removed, it.ID)
	tx.markTouched(it.ID)
	return nil
}

func (tx *txn) applyRemoveObject(it RemoveObject) error {
	r, exists := tx.getRecord(it.ID)
	if !exists {
		return fmt.Errorf("objtable: remove of unknown object %+v", it.ID)
	}
	if r.pinned {
		return fmt.Errorf("objtable: object %+v is pinned and cannot be removed", it.ID)
	}
	// Strip links where this object is the "from" side.
	out := tx.getOut(it.ID)
	for key, tos := range out {
		for _, to := range tos {
			in := tx.getIn(to)
			in[key] = removeFromSlice(in[key], it.ID)
			tx.markTouched(to)
		}
	}
	delete(tx.out, it.ID)
	tx.out[it.ID] = map[string][]ObjectID{}
	// Strip links where this object is the "to" side.
	in := tx.getIn(it.ID)
	for key, froms := range in {
		for _, from := range froms {
			o := tx.getOut(from)
			o[key] = removeFromSlice(o[key], it.ID)
			tx.markTouched(from)
		}
	}
	delete(tx.in, it.ID)
	tx.in[it.ID] = map[string][]ObjectID{}

	tx.removed[it.ID] = true
	delete(tx.objs, it.ID)
	tx.markTouched(it.ID)
	return nil
}

func (tx *txn) applySetAttributes(it SetAttributes) error {
	r, exists := tx.getRecord(it.ID)
	if !exists {
		return fmt.Errorf("objtable: SetAttributes on unknown object %+v", it.ID)
	}
	nr := r.clone()
	if nr.attrs == nil {
		nr.attrs = map[string]AttrValue{}
	}
	for name, v := range it.Attrs {
		switch it.Merge {
		case MergeAppendLists:
			cur := nr.attrs[name]
			if cur.Kind != AttrKindStringList {
				cur = AttrValue{Kind: AttrKindStringList}
			}
			cur.List = append(append([]string{}, cur.List...), v.List...)
			nr.attrs[name] = cur
		case MergeRemoveNull:
			if v.Kind == AttrKindNull {
				delete(nr.attrs, name)
			} else {
				nr.attrs[name] = v
			}
		case MergeRemoveEmpty:
			if v.IsEmpty() {
				delete(nr.attrs, name)
			} else {
				nr.attrs[name] = v
			}
		default: // MergeAddAndUpdate
			nr.attrs[name] = v
		}
	}
	tx.objs[it.ID] = nr
	tx.markTouched(it.ID)
	return nil
}

func (tx *txn) applyAddLink(it AddLink) error {
	l := it.Link
	if l.From.IsZero() || l.To.IsZero() || l.Key == "" {
		return errors.New("objtable: AddLink with empty endpoint or key")
	}
	if _, exists := tx.getRecord(l.From); !exists {
		return fmt.Errorf("objtable: AddLink from unknown object %+v", l.From)
	}
	if _, exists := tx.getRecord(l.To); !exists {
		return fmt.Errorf("objtable: AddLink to unknown object %+v", l.To)
	}

	out := tx.getOut(l.From)
	existing := out[l.Key]
	for _, to := range existing {
		if to == l.To {
			if it.IfNeeded {
				return nil
			}
			return fmt.Errorf("objtable: link %s/%+v -> %+v already exists", l.Key, l.From, l.To)
		}
	}
	if len(existing) > 0 {
		if l.Key == KeySrcLoc || l.Key == KeyDestLoc {
			return fmt.Errorf("objtable: %s is immutable once set on %+v", l.Key, l.From)
		}
		if !it.AutoUnlinkPriorByKey {
			return fmt.Errorf("objtable: object %+v already has an outgoing %s link", l.From, l.Key)
		}
		for _, prevTo := range existing {
			in := tx.getIn(prevTo)
			in[l.Key] = removeFromSlice(in[l.Key], l.From)
			tx.markTouched(prevTo)
		}
		out[l.Key] = nil
	}
	out[l.Key] = append(out[l.Key], l.To)
	in := tx.getIn(l.To)

	// Contains is the one link kind enforced from both sides (I1 and I2): a
	// move re-homes not just the new location's outgoing link (above) but
	// also clears whichever other location previously held this substrate.
	if l.Key == KeyContains {
		priorFrom := in[l.Key]
		if len(priorFrom) > 0 {
			if !it.AutoUnlinkPriorByKey {
				return fmt.Errorf("objtable: object %+v already has an incoming %s link", l.To, l.Key)
			}
			for _, prevFrom := range priorFrom {
				o := tx.getOut(prevFrom)
				o[l.Key] = removeFromSlice(o[l.Key], l.To)
				tx.markTouched(prevFrom)
			}
			in[l.Key] = nil
		}
	}
	in[l.Key] = append(in[l.Key], l.From)

	tx.markTouched(l.From)
	tx.markTouched(l.To)
	return nil
}

func (tx *txn) validateInvariants() error {
	for id := range tx.touched {
		r, exists := tx.getRecord(id)
		if !exists {
			continue
		}
		if id.Type == TypeSubstLoc {
			if n := len(tx.getOut(id)[KeyContains]); n > 1 {
				return fmt.Errorf("objtable: SubstLoc %+v has %d outgoing Contains links", id, n)
			}
		}
		if id.Type == TypeSubstrate {
			if n := len(tx.getIn(id)[KeyContains]); n > 1 {
				return fmt.Errorf("objtable: Substrate %+v is target of %d Contains links", id, n)
			}
			if _, ok := r.attrs[AttrSubstState]; !ok {
				return fmt.Errorf("objtable: Substrate %+v missing required attribute %s", id, AttrSubstState)
			}
			if _, ok := r.attrs[AttrSubstProcState]; !ok {
				return fmt.Errorf("objtable: Substrate %+v missing required attribute %s", id, AttrSubstProcState)
			}
		}
	}
	return nil
}

func (tx *txn) commit() []ObjectID {
	t := tx.t
	for id, r := range tx.objs {
		t.objects[id] = r
	}
	for id := range tx.removed {
		delete(t.objects, id)
	}
	for id, m := range tx.out {
		t.outLinks[id] = m
	}
	for id, m := range tx.in {
		t.inLinks[id] = m
	}
	t.batchSeq++

	ids := make([]ObjectID, 0, len(tx.touched))
	for id := range tx.touched {
		ids = append(ids, id)
	}
	t.republish(ids)
	return ids
}
