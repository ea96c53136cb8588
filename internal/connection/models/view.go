package models

import (
	"fmt"

	"connection/pkg/platform/sentinel"
)

// View names a read projection.
type View string

const (
	ViewConnected    View = "connected"
	ViewDisconnected View = "disconnected"
	ViewException    View = "exception"
	ViewDiscrepancy  View = "discrepancy"
)

// ClassifiedViews are the mutually exclusive views a record occupies exactly
// one of. Discrepancy is derived separately.
var ClassifiedViews = []View{ViewConnected, ViewDisconnected, ViewException}

// AllViews lists every view store, including the auxiliary discrepancy view.
var AllViews = []View{ViewConnected, ViewDisconnected, ViewException, ViewDiscrepancy}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	v := View(s)
	switch v {
	case ViewConnected, ViewDisconnected, ViewException, ViewDiscrepancy:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q: %w", s, sentinel.ErrNotFound)
}

func (v View) String() string { return string(v) }
