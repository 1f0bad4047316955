package errs

import "fmt"

// TimeoutError is returned once a time budget has been spent. Rest is the
// remaining budget in milliseconds at the moment of the check and is zero or
// negative when the deadline has passed.
type TimeoutError struct {
	Message string
	Rest    int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] %s (rest %d ms)", ErrCodeTimeout, e.Message, e.Rest)
}

// Is lets errors.Is(err, &TimeoutError{}) match any timeout.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, rest int64) *TimeoutError {
	return &TimeoutError{Message: message, Rest: rest}
}
