package routing

import "subflow/engine/internal/objtable"

// ArmSet names the two robot-arm locations a Manager may use as temporary
// parking spots during a swap.
type ArmSet struct {
	ArmA objtable.ObjectID
	ArmB objtable.ObjectID
}

// ArmOccupancy reports which substrate (if any) currently occupies each arm.
type ArmOccupancy struct {
	ArmAOccupant objtable.ObjectID
	ArmBOccupant objtable.ObjectID
}

// chooseSwapArms implements spec.md 4.F's dual-arm swap arm-selection:
// require both arms free unless the primary substrate (substID) is already
// parked on one of them, in which case the other arm is used as the second
// parking spot. Arm A is preferred when either will do.
func chooseSwapArms(arms ArmSet, occ ArmOccupancy, substID objtable.ObjectID) (fromArm, toArm objtable.ObjectID, ok bool) {
	switch substID {
	case occ.ArmAOccupant:
		return arms.ArmA, arms.ArmB, occ.ArmBOccupant.IsZero()
	case occ.ArmBOccupant:
		return arms.ArmB, arms.ArmA, occ.ArmAOccupant.IsZero()
	}
	if occ.ArmAOccupant.IsZero() && occ.ArmBOccupant.IsZero() {
		return arms.ArmA, arms.ArmB, true
	}
	return objtable.ObjectID{}, objtable.ObjectID{}, false
}
