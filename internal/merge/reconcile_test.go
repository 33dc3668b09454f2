package merge

import (
	"testing"

	"github.com/memohai/deckcrm/internal/store"
)

func TestReconcileString(t *testing.T) {
	tests := []struct {
		name           string
		target, source string
		want           string
	}{
		{name: "target wins", target: "a", source: "b", want: "a"},
		{name: "empty target", target: "", source: "b", want: "b"},
		{name: "whitespace target", target: "   ", source: "b", want: "b"},
		{name: "empty source", target: "a", source: "", want: "a"},
		{name: "both empty", target: "", source: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReconcileString(tt.target, tt.source); got != tt.want {
				t.Errorf("ReconcileString(%q, %q) = %q, want %q", tt.target, tt.source, got, tt.want)
			}
		})
	}
}

func TestReconcileField(t *testing.T) {
	tests := []struct {
		name           string
		target, source *string
		want           *string
	}{
		{name: "target wins", target: strPtr("a"), source: strPtr("b"), want: strPtr("a")},
		{name: "nil target", target: nil, source: strPtr("b"), want: strPtr("b")},
		{name: "empty target", target: strPtr(""), source: strPtr("b"), want: strPtr("b")},
		{name: "both nil", target: nil, source: nil, want: nil},
		{name: "both blank", target: strPtr(""), source: strPtr(" "), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReconcileField(tt.target, tt.source)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ReconcileField() = %q, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("ReconcileField() = nil, want %q", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("ReconcileField() = %q, want %q", *got, *tt.want)
			}
		})
	}
}

func TestMergeNotes(t *testing.T) {
	tests := []struct {
		target, source string
		want           string
	}{
		{target: "A", source: "B", want: "A\n\n--- Merged from Bob ---\nB"},
		{target: "", source: "B", want: "B"},
		{target: "A", source: "", want: "A"},
		{target: "", source: "", want: ""},
	}
	for _, tt := range tests {
		if got := MergeNotes(tt.target, tt.source, "Bob"); got != tt.want {
			t.Errorf("MergeNotes(%q, %q) = %q, want %q", tt.target, tt.source, got, tt.want)
		}
	}
}

func TestMergeFieldsLanguageTargetWins(t *testing.T) {
	target := store.Customer{FullName: "T", Language: "fr"}
	source := store.Customer{FullName: "S", Language: "en", Address: strPtr("1 Main St")}

	fields := MergeFields(target, source)
	if fields.Language != "fr" {
		t.Errorf("Language = %q, want fr", fields.Language)
	}
	if fields.Address == nil || *fields.Address != "1 Main St" {
		t.Errorf("Address = %v, want 1 Main St", fields.Address)
	}
	if fields.InternalNotes != nil {
		t.Errorf("InternalNotes = %q, want nil", *fields.InternalNotes)
	}

	fields = MergeFields(store.Customer{FullName: "T"}, store.Customer{FullName: "S"})
	if fields.Language != "en" {
		t.Errorf("default Language = %q, want en", fields.Language)
	}
}

func TestMergeFieldsAccessTokenFallsBackToSource(t *testing.T) {
	fields := MergeFields(store.Customer{FullName: "T"}, store.Customer{FullName: "S", AccessToken: strPtr("portal-1")})
	if fields.AccessToken == nil || *fields.AccessToken != "portal-1" {
		t.Errorf("AccessToken = %v, want portal-1", fields.AccessToken)
	}
}
