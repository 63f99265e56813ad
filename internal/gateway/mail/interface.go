package mail

// OperatorNotifier alerts a human operator.
type OperatorNotifier interface {
	NotifyOperator(subject, body string)
}
