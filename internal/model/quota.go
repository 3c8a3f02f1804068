package model

// InvocationQuota is the per-(user, interface) call budget. It is mutated
// only through compare-and-swap on Version; InvokedCount + LeftNum is
// conserved across a consume/rollback pair.
type InvocationQuota struct {
	UserID       int64 `json:"user_id" db:"user_id"`
	InterfaceID  int64 `json:"interface_id" db:"interface_id"`
	InvokedCount int64 `json:"invoked_count" db:"invoked_count"`
	LeftNum      int64 `json:"left_num" db:"left_num"`
	Version      int64 `json:"version" db:"version"`
}
