package publisher

import "subflow/engine/internal/objtable"

// LocationAndSubstrate is the atomic projection a SubstLocObserver republishes:
// the SubstLoc snapshot together with whatever Substrate its Contains link
// currently targets (nil if unoccupied or the link target has no publisher
// yet).
type LocationAndSubstrate struct {
	Loc       *objtable.Object
	Substrate *objtable.Object
}

// PublisherLookup resolves the Publisher for an object id. Table satisfies
// this via its GetPublisher method; kept as an interface here so this
// package never imports objtable.Table (only the lightweight Object type).
type PublisherLookup interface {
	GetPublisher(id objtable.ObjectID) *Publisher[objtable.Object]
}

// SubstLocObserver follows a SubstLoc's Contains link and republishes a
// LocationAndSubstrate projection so a consumer sees the location and its
// contained substrate atomically with respect to the last visible batch.
type SubstLocObserver struct {
	lookup   PublisherLookup
	locID    objtable.ObjectID
	locObs   *Observer[objtable.Object]
	follow   bool
	substID  objtable.ObjectID
	substObs *Observer[objtable.Object]
}

// NewSubstLocObserver creates an observer for the SubstLoc identified by
// locID. When follow is true, the observer also tracks whichever Substrate
// the Contains link currently targets.
func NewSubstLocObserver(lookup PublisherLookup, locID objtable.ObjectID, follow bool) *SubstLocObserver {
	return &SubstLocObserver{
		lookup: lookup,
		locID:  locID,
		locObs: NewObserver(lookup.GetPublisher(locID)),
		follow: follow,
	}
}

// Update refreshes the location (and, if enabled, the contained substrate)
// and reports whether anything changed.
func (s *SubstLocObserver) Update() bool {
	changed := s.locObs.Update()
	if !s.follow {
		return changed
	}
	loc := s.locObs.Current()
	var curTarget objtable.ObjectID
	if l, ok := loc.OutLink(objtable.KeyContains); ok {
		curTarget = l.To
	}
	if curTarget != s.substID {
		s.substID = curTarget
		if curTarget.IsZero() {
			s.substObs = nil
		} else {
			s.substObs = NewObserver(s.lookup.GetPublisher(curTarget))
		}
		changed = true
	}
	if s.substObs != nil {
		if s.substObs.Update() {
			changed = true
		}
	}
	return changed
}

// Current returns the latest consumed projection.
func (s *SubstLocObserver) Current() LocationAndSubstrate {
	proj := LocationAndSubstrate{Loc: s.locObs.Current()}
	if s.substObs != nil {
		proj.Substrate = s.substObs.Current()
	}
	return proj
}
