package observability

import "go.uber.org/zap"

// Field helpers re-exported so call sites depend on the observability package
// rather than on zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Float64  = zap.Float64
	Duration = zap.Duration
	Time     = zap.Time
	Error    = zap.Error
	Strings  = zap.Strings
	Any      = zap.Any
)
