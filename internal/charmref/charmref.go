// Package charmref parses charm references of the form [namespace/]name[-revision].
package charmref

import (
	"regexp"
	"strings"
)

var revisionSuffix = regexp.MustCompile(`-\d+$`)

// Reference is an immutable, parsed charm reference.
type Reference struct {
	provided       string
	bareName       string
	namespacedName string
	revision       string
}

// Parse splits raw into its namespace, bare name and revision.
// Parse never fails: a missing namespace or revision leaves the
// corresponding part of the input untouched.
func Parse(raw string) Reference {
	nameWithRevision := raw[strings.LastIndex(raw, "/")+1:]
	ref := Reference{
		provided:       raw,
		bareName:       nameWithRevision,
		namespacedName: raw,
	}
	suffix := revisionSuffix.FindString(nameWithRevision)
	if suffix == "" {
		return ref
	}
	ref.bareName = strings.TrimSuffix(nameWithRevision, suffix)
	ref.namespacedName = strings.TrimSuffix(raw, suffix)
	ref.revision = suffix[1:]
	return ref
}

// Provided returns the reference exactly as it was parsed.
func (r Reference) Provided() string {
	return r.provided
}

// BareName returns the name without namespace and revision.
func (r Reference) BareName() string {
	return r.bareName
}

// NamespacedName returns the reference with the revision suffix removed.
func (r Reference) NamespacedName() string {
	return r.namespacedName
}

// Revision returns the revision digits, or "" when the reference carries none.
func (r Reference) Revision() string {
	return r.revision
}

// HasRevision reports whether a revision suffix was stripped.
func (r Reference) HasRevision() bool {
	return r.revision != ""
}

// Ambiguous reports references whose bare name is empty or purely numeric.
// Such names cannot be told apart from a revision, so parsing keeps the
// regex behavior and callers only get to know about it.
func (r Reference) Ambiguous() bool {
	if r.bareName == "" {
		return true
	}
	for _, c := range r.bareName {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String returns the provided form.
func (r Reference) String() string {
	return r.provided
}
