package merge

import (
	"strings"

	"github.com/memohai/deckcrm/internal/store"
)

const defaultLanguage = "en"

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReconcileString returns target when it is non-empty, else source when non-empty, else "".
// Whitespace-only values count as empty.
func ReconcileString(target, source string) string {
	if !isBlank(target) {
		return target
	}
	if !isBlank(source) {
		return source
	}
	return ""
}

// ReconcileField is ReconcileString over nullable columns; an empty result is nil.
func ReconcileField(target, source *string) *string {
	value := ReconcileString(deref(target), deref(source))
	if value == "" {
		return nil
	}
	return &value
}

// MergeNotes concatenates both notes under a "Merged from" separator when both are present,
// otherwise keeps whichever side has notes.
func MergeNotes(target, source, sourceName string) string {
	switch {
	case !isBlank(target) && !isBlank(source):
		return target + "\n\n--- Merged from " + sourceName + " ---\n" + source
	case !isBlank(target):
		return target
	case !isBlank(source):
		return source
	default:
		return ""
	}
}

// MergeFields computes the state the target takes after absorbing source.
func MergeFields(target, source store.Customer) Fields {
	fields := Fields{
		FullName:    ReconcileString(target.FullName, source.FullName),
		Email:       ReconcileField(target.Email, source.Email),
		Phone:       ReconcileField(target.Phone, source.Phone),
		Address:     ReconcileField(target.Address, source.Address),
		Language:    ReconcileString(target.Language, source.Language),
		AccessToken: ReconcileField(target.AccessToken, source.AccessToken),
	}
	if fields.Language == "" {
		fields.Language = defaultLanguage
	}
	if notes := MergeNotes(deref(target.InternalNotes), deref(source.InternalNotes), source.FullName); notes != "" {
		fields.InternalNotes = &notes
	}
	return fields
}

// Conflicts lists the contact fields where target and source disagree.
func Conflicts(target, source store.Customer) []Conflict {
	merged := MergeFields(target, source)
	pairs := []struct {
		field          string
		target, source string
		result         string
	}{
		{"full_name", target.FullName, source.FullName, merged.FullName},
		{"email", deref(target.Email), deref(source.Email), deref(merged.Email)},
		{"phone", deref(target.Phone), deref(source.Phone), deref(merged.Phone)},
		{"address", deref(target.Address), deref(source.Address), deref(merged.Address)},
		{"language", target.Language, source.Language, merged.Language},
	}
	conflicts := make([]Conflict, 0)
	for _, p := range pairs {
		if isBlank(p.target) || isBlank(p.source) || p.target == p.source {
			continue
		}
		conflicts = append(conflicts, Conflict{Field: p.field, Target: p.target, Source: p.source, Result: p.result})
	}
	return conflicts
}
