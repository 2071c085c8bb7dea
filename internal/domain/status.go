package domain

// StatusRule evaluates a transition between two consecutive positions for
// the same vehicle and decides whether it is worth a status-changed
// broadcast. A table of rules rather than a single function so new
// transition kinds can be added without touching the caller.
type StatusRule struct {
	Name      string
	Evaluator func(prev, next *Position) (changed bool, status string)
}

// DefaultStatusRules mirrors the single motion-state transition the
// broker's "status-changed" event exists to announce: a vehicle going
// idle or resuming motion.
var DefaultStatusRules = []StatusRule{
	{
		Name: "motion-state",
		Evaluator: func(prev, next *Position) (bool, string) {
			if prev == nil {
				return false, ""
			}
			if prev.IsMoving == next.IsMoving {
				return false, ""
			}
			if next.IsMoving {
				return true, VehicleStatusActive
			}
			return true, VehicleStatusInactive
		},
	},
}
