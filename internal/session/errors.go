package session

// OpError is a manager-operation failure carrying a stable wire error
// code (protocol.Code*) and an operator-readable message, per spec §4.6.
type OpError struct {
	Code    string
	Message string
}

func (e *OpError) Error() string { return e.Message }
