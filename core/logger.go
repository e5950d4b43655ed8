package core

// Logger is the app-wide logging interface.
// args may carry an error, a map[string]interface{} of extras and the user.User the log entry is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Outcomes of a write conflict.
const (
	ConflictRetried = "retried"
	ConflictFailed  = "failed"
)

// Metrics records domain events.
type Metrics interface {
	ObserveGrant(amount int)
	ObservePurchase(xpCost int)
	ObservePurchaseRejected(reason string)
	// ObserveConflict counts a guarded write that lost a race. outcome is ConflictRetried or ConflictFailed.
	ObserveConflict(operation, outcome string)
}
