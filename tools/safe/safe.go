package safe

import (
	"chatcore/tools/errs"

	"go.uber.org/zap"
)

// Go starts f on a new goroutine that recovers from panic, so a bug in a
// background task never takes the process down.
func Go(log *zap.Logger, name string, f func()) {
	go Run(log, name, f)
}

// Run calls f and logs a recovered panic with its stack. Reports whether f
// returned normally.
func Run(log *zap.Logger, name string, f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("panic recovered", zap.String("task", name), zap.Error(errs.ErrPanic(r)))
			}
			ok = false
		}
	}()
	f()
	return true
}
