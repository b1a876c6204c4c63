package hotcache

import "errors"

// Recoverable errors are always returned to the caller, never surfaced
// as a panic or process abort; ErrAccountingFault is the one internal
// condition that degrades admissions without affecting reads, failing
// open on the read path.
var (
	ErrUnknownTenant  = errors.New("hotcache: unknown tenant")
	ErrInvalidInput   = errors.New("hotcache: invalid input")
	ErrVersionRegress = errors.New("hotcache: version older than recorded version")
	ErrPressure       = errors.New("hotcache: admission refused under memory pressure")
	ErrAccountingFault = errors.New("hotcache: governor accounting fault, admissions refused until reconciled")
)
