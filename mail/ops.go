package mail

// LogOp is the operation recorded by one transaction log entry.
type LogOp string

const (
	OpInsert LogOp = "insert"
	OpUpdate LogOp = "update"
	OpDelete LogOp = "delete"
)

func (o LogOp) IsValid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}
