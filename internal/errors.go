package internal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// errNotFound marks any resource lookup that came up empty.
	errNotFound = errors.New("not found")

	// errBadRequest marks malformed or incomplete input.
	errBadRequest = errors.New("invalid request")
)

// resourceErr is an errNotFound that remembers which resource was missing,
// so handlers can surface a useful message with the 404.
type resourceErr struct {
	resource string
	id       string
}

func (e resourceErr) Error() string {
	return fmt.Sprintf("%s %q not found", e.resource, e.id)
}

func (e resourceErr) Unwrap() error { return errNotFound }

func notFound(resource string, id fmt.Stringer) error {
	return resourceErr{resource: resource, id: id.String()}
}

// statusErr represents a non-2XX response from an upstream.
type statusErr int

func (s statusErr) Error() string {
	text := http.StatusText(int(s))
	if text == "" {
		text = "unknown"
	}
	return fmt.Sprintf("upstream status %d (%s)", int(s), text)
}

// isForeignKeyErr recognizes sqlite foreign key violations, which we
// translate to not-found on the parent resource where the caller knows it.
func isForeignKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
