package logger

// Security event names. Dashboards and alerts key on these values.
const (
	EventTrapTriggered   = "trap_triggered"
	EventSessionTakeover = "session_takeover"
	EventBlockedLogin    = "blocked_login"
	EventAccountBlocked  = "account_blocked"
	EventAccountUnblock  = "account_unblocked"
	EventDecoyServed     = "decoy_served"
)

// Security logs a security event at WARN with stable event and category
// attributes ahead of args.
func Security(l Logger, event, msg string, args ...any) {
	if l == nil {
		l = Default()
	}
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, "category", "security", "event", event)
	l.Warn(msg, append(attrs, args...)...)
}
