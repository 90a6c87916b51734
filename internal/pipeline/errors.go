package pipeline

import (
	"errors"

	"github.com/sells-group/london-crime/internal/model"
)

// StageError reports which kind of failure ended a run.
type StageError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or "" when err did not come
// from a pipeline stage.
func KindOf(err error) model.ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
