package cnst

// Partnership lifecycle statuses. Terminated is absorbing.
const (
	PartnershipPending    = "pending"
	PartnershipActive     = "active"
	PartnershipSuspended  = "suspended"
	PartnershipTerminated = "terminated"
)
