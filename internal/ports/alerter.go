package ports

// Alerter shows a transient, best-effort message to the local user.
type Alerter interface {
	Alert(message string)
}
