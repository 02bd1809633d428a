package interfaces

import "errors"

var (
	ErrAuditDisabled = errors.New("connection auditing is disabled")
)
