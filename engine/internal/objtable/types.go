// Package objtable implements the typed-object/link table: a keyed store of
// named objects with typed links and tagged-scalar attributes, supporting
// atomic multi-item updates and per-object snapshot publication.
package objtable

import "github.com/google/uuid"

// Object type names (spec-exact, bit-exact for interoperability).
const (
	TypeSubstrate = "Substrate"
	TypeSubstLoc  = "SubstLoc"
)

// Link keys (spec-exact).
const (
	KeyContains = "Contains"
	KeySrcLoc   = "SrcLoc"
	KeyDestLoc  = "DestLoc"
)

// Attribute names (spec-exact, bit-exact for round-trip interop).
const (
	AttrSubstProcState          = "SubstProcState"
	AttrPendingSPS              = "PendingSPS"
	AttrSubstState              = "SubstState"
	AttrLotID                   = "LotID"
	AttrSubstUsage              = "SubstUsage"
	AttrSJRS                    = "SJRS"
	AttrSJS                     = "SJS"
	AttrSPSList                 = "SPSList"
	AttrSPSLocList              = "SPSLocList"
	AttrSPSDateTimeList         = "SPSDateTimeList"
	AttrRemovedFromSubstLocName = "RemovedFromSubstLocName"
	AttrInstanceNum             = "InstanceNum"
	AttrMapSlotState            = "MapSlotState"
	AttrNotAccessibleReason     = "NotAccessibleReason"
)

// ObjectID is the stable, comparable identity of an object: (type, name).
type ObjectID struct {
	Type string
	Name string
}

func (id ObjectID) IsZero() bool { return id.Type == "" && id.Name == "" }

// AttrKind tags the scalar kind carried by an AttrValue.
type AttrKind int

const (
	AttrKindNull AttrKind = iota
	AttrKindInt
	AttrKindString
	AttrKindEnum
	AttrKindStringList
)

// AttrValue is an immutable tagged scalar: int, string, enum, or
// list-of-string. The Null kind is a sentinel used by SetAttributes'
// RemoveNull merge behavior; it is never stored.
type AttrValue struct {
	Kind AttrKind
	Int  int64
	Str  string
	List []string
}

func NullAttr() AttrValue             { return AttrValue{Kind: AttrKindNull} }
func IntAttr(v int64) AttrValue       { return AttrValue{Kind: AttrKindInt, Int: v} }
func StringAttr(v string) AttrValue   { return AttrValue{Kind: AttrKindString, Str: v} }
func EnumAttr(v string) AttrValue     { return AttrValue{Kind: AttrKindEnum, Str: v} }
func ListAttr(v []string) AttrValue {
	cp := make([]string, len(v))
	copy(cp, v)
	return AttrValue{Kind: AttrKindStringList, List: cp}
}

// IsEmpty reports whether the value is the empty string/list, used by the
// RemoveEmpty merge behavior.
func (a AttrValue) IsEmpty() bool {
	switch a.Kind {
	case AttrKindString, AttrKindEnum:
		return a.Str == ""
	case AttrKindStringList:
		return len(a.List) == 0
	default:
		return false
	}
}

func cloneAttrs(in map[string]AttrValue) map[string]AttrValue {
	out := make(map[string]AttrValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Link is a directed, keyed relation (fromID, key, toID).
type Link struct {
	From ObjectID
	Key  string
	To   ObjectID
}

// Object is an immutable-by-publication snapshot of a stored object.
type Object struct {
	ID     ObjectID
	UUID   uuid.UUID
	Attrs  map[string]AttrValue
	Pinned bool
	Final  bool
	Out    []Link
	In     []Link
}

// Attr returns the named attribute and whether it is present.
func (o *Object) Attr(name string) (AttrValue, bool) {
	if o == nil {
		return AttrValue{}, false
	}
	v, ok := o.Attrs[name]
	return v, ok
}

// OutLink returns the first outgoing link for key, if any.
func (o *Object) OutLink(key string) (Link, bool) {
	if o == nil {
		return Link{}, false
	}
	for _, l := range o.Out {
		if l.Key == key {
			return l, true
		}
	}
	return Link{}, false
}

// InLinks returns all incoming links for key.
func (o *Object) InLinks(key string) []Link {
	if o == nil {
		return nil
	}
	var out []Link
	for _, l := range o.In {
		if l.Key == key {
			out = append(out, l)
		}
	}
	return out
}
