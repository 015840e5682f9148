package event

// Presence distinguishes an omitted patch field from an explicit clear.
type Presence uint8

const (
	// Absent leaves the prior value untouched.
	Absent Presence = iota
	// Cleared removes the prior value.
	Cleared
	// Present replaces the prior value.
	Present
)

// Optional is a tri-state string used by Patch background and music.
type Optional struct {
	Presence Presence
	Value    string
}

// Set returns an Optional carrying value.
func Set(value string) Optional {
	return Optional{Presence: Present, Value: value}
}

// Clear returns an Optional that clears the field.
func Clear() Optional {
	return Optional{Presence: Cleared}
}

// Apply returns the field value after applying o to current.
func (o Optional) Apply(current *string) *string {
	switch o.Presence {
	case Present:
		return String(o.Value)
	case Cleared:
		return nil
	default:
		return CloneString(current)
	}
}

// Ref returns the set value, or nil when the field is absent or cleared.
func (o Optional) Ref() *string {
	if o.Presence != Present {
		return nil
	}
	return String(o.Value)
}
