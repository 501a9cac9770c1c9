// Package change decides whether two snapshots of the same contact entity
// differ in a way that must be propagated downstream.
package change

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrTypeMismatch = errors.New("snapshots are of different entity kinds")

// Kind names an entity type (email profile, add-ons, newsletter...).
type Kind string

// Snapshot is one versioned aspect of a contact. Fields returns only the
// comparable fields, in a fixed order; bookkeeping fields are never listed.
type Snapshot interface {
	Kind() Kind
	Fields() []Field
}

// Field is a normalized comparable value.
type Field struct {
	Name    string
	present bool
	value   string
}

func (f Field) equal(o Field) bool {
	if f.Name != o.Name || f.present != o.present {
		return false
	}
	return !f.present || f.value == o.value
}

// Present reports whether the field carries a value after normalization.
func (f Field) Present() bool { return f.present }

func (f Field) String() string {
	if !f.present {
		return f.Name + "=<absent>"
	}
	return f.Name + "=" + f.value
}

// Text normalizes nil and the empty string to absent.
func Text(name string, v *string) Field {
	if v == nil || *v == "" {
		return Field{Name: name}
	}
	return Field{Name: name, present: true, value: *v}
}

// String is Text for required values.
func String(name, v string) Field {
	return Text(name, &v)
}

// Enum compares by exact value; the empty string is a legal enum member.
func Enum(name, v string) Field {
	return Field{Name: name, present: true, value: v}
}

func Bool(name string, v bool) Field {
	if v {
		return Field{Name: name, present: true, value: "true"}
	}
	return Field{Name: name, present: true, value: "false"}
}

// Set treats a comma-separated list as an unordered set of values.
func Set(name string, v *string) Field {
	if v == nil {
		return Field{Name: name}
	}
	var members []string
	for _, m := range strings.Split(*v, ",") {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return Field{Name: name}
	}
	slices.Sort(members)
	members = slices.Compact(members)
	return Field{Name: name, present: true, value: strings.Join(members, ",")}
}

// Date compares calendar dates in UTC.
func Date(name string, v *time.Time) Field {
	if v == nil || v.IsZero() {
		return Field{Name: name}
	}
	return Field{Name: name, present: true, value: v.UTC().Format(time.DateOnly)}
}

func UUID(name string, v uuid.NullUUID) Field {
	if !v.Valid {
		return Field{Name: name}
	}
	return Field{Name: name, present: true, value: v.UUID.String()}
}

// IsMaterialChange reports whether next differs from prev in any comparable
// field. It is pure and safe for concurrent use.
func IsMaterialChange(prev, next Snapshot) (bool, error) {
	if prev.Kind() != next.Kind() {
		return false, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, prev.Kind(), next.Kind())
	}

	a, b := prev.Fields(), next.Fields()
	if len(a) != len(b) {
		return true, nil
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return true, nil
		}
	}
	return false, nil
}

// Changed lists the names of differing fields, for logging.
func Changed(prev, next Snapshot) ([]string, error) {
	if prev.Kind() != next.Kind() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, prev.Kind(), next.Kind())
	}

	a, b := prev.Fields(), next.Fields()
	byName := make(map[string]Field, len(a))
	for _, f := range a {
		byName[f.Name] = f
	}

	var names []string
	for _, f := range b {
		old, ok := byName[f.Name]
		if !ok || !old.equal(f) {
			names = append(names, f.Name)
		}
		delete(byName, f.Name)
	}
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// IsDefault reports whether every field is absent or false, i.e. the
// snapshot carries no business data.
func IsDefault(s Snapshot) bool {
	for _, f := range s.Fields() {
		if f.present && f.value != "false" {
			return false
		}
	}
	return true
}
