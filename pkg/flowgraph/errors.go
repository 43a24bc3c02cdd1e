package flowgraph

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// ErrDuplicateEntry is returned when a second entry node is added to a graph.
var ErrDuplicateEntry = errors.New("duplicate entry node")

// UnsupportedError reports a syntax shape the builder has no rule for.
type UnsupportedError struct {
	Type   string
	Line   int
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported construct %s at line %d: %s", e.Type, e.Line, e.Reason)
	}
	return fmt.Sprintf("unsupported construct %s at line %d", e.Type, e.Line)
}

func unsupported(n syntax.Node, reason string) error {
	if n == nil {
		return &UnsupportedError{Type: "<missing>", Reason: reason}
	}
	return &UnsupportedError{Type: n.Type(), Line: n.Line(), Reason: reason}
}

// IsUnsupported reports whether err is, or wraps, an UnsupportedError.
func IsUnsupported(err error) bool {
	var u *UnsupportedError
	return errors.As(err, &u)
}
