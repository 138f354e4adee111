package kernel

import (
	"fmt"
	"runtime/debug"
)

// RecoveredPanic is the error produced when a guarded operation panics.
type RecoveredPanic struct {
	Operation string
	Value     any
	Stack     string
}

func (e *RecoveredPanic) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

func recovered(logger Logger, operation string, r any) *RecoveredPanic {
	p := &RecoveredPanic{Operation: operation, Value: r, Stack: string(debug.Stack())}
	if logger != nil {
		logger.Error("panic_recovered",
			"operation", operation,
			"panic", fmt.Sprint(r),
			"stack", p.Stack,
		)
	}
	return p
}

// SafeExecute runs fn, converting a panic into a *RecoveredPanic error.
// The operation name is used for logging context.
func SafeExecute(logger Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(logger, operation, r)
		}
	}()
	return fn()
}

// SafeExecuteWithResult is SafeExecute for functions that also return a value.
// On panic the zero value is returned.
func SafeExecuteWithResult[T any](logger Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = recovered(logger, operation, r)
		}
	}()
	return fn()
}

// SafeGo runs fn in a goroutine. A panic is logged and passed to onPanic.
func SafeGo(logger Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("goroutine_panic_recovered",
						"operation", operation,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
				}
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
