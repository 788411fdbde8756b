package realtime

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidBinding = errors.New("invalid binding")

// Tables that carry change triggers.
var Tables = map[string]bool{
	"end_clients": true,
	"projects":    true,
	"chatbots":    true,
	"leads":       true,
	"analytics":   true,
	"requests":    true,
	"assets":      true,
}

// filterColumns are the keys present in every notification payload.
var filterColumns = map[string]bool{
	"id":            true,
	"project_id":    true,
	"end_client_id": true,
	"chatbot_id":    true,
	"creator_id":    true,
}

// Binding selects one table, optionally filtered by column equality.
type Binding struct {
	Table  string
	Column string
	Value  string
}

func (b Binding) String() string {
	if b.Column == "" {
		return b.Table
	}
	return b.Table + ":" + b.Column + "=eq." + b.Value
}

// ParseBinding accepts "table" or "table:column=eq.value".
func ParseBinding(raw string) (Binding, error) {
	raw = strings.TrimSpace(raw)
	table, filter, hasFilter := strings.Cut(raw, ":")
	if !Tables[table] {
		return Binding{}, fmt.Errorf("%w: unknown table %q", ErrInvalidBinding, table)
	}
	binding := Binding{Table: table}
	if !hasFilter {
		return binding, nil
	}

	column, expr, ok := strings.Cut(filter, "=")
	if !ok {
		return Binding{}, fmt.Errorf("%w: filter %q must be column=eq.value", ErrInvalidBinding, filter)
	}
	value, ok := strings.CutPrefix(expr, "eq.")
	if !ok {
		return Binding{}, fmt.Errorf("%w: only the eq operator is supported", ErrInvalidBinding)
	}
	if !filterColumns[column] {
		return Binding{}, fmt.Errorf("%w: column %q cannot be filtered", ErrInvalidBinding, column)
	}
	if strings.TrimSpace(value) == "" {
		return Binding{}, fmt.Errorf("%w: filter value is empty", ErrInvalidBinding)
	}
	binding.Column = column
	binding.Value = value
	return binding, nil
}

// ParseBindings parses every raw binding; at least one is required.
func ParseBindings(raw []string) ([]Binding, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one binding is required", ErrInvalidBinding)
	}
	bindings := make([]Binding, 0, len(raw))
	for _, item := range raw {
		binding, err := ParseBinding(item)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

// Matches reports whether n satisfies the binding. Filters fall back to the
// resolved owner for project_id and end_client_id, so a leads binding on
// project_id matches even though lead rows only carry chatbot_id.
func (b Binding) Matches(n Notification) bool {
	if b.Table != n.Table {
		return false
	}
	if b.Column == "" {
		return true
	}
	value := n.Keys[b.Column]
	if value == "" {
		switch b.Column {
		case "project_id":
			value = n.Owner.ProjectID
		case "end_client_id":
			value = n.Owner.EndClientID
		}
	}
	return value == b.Value
}
