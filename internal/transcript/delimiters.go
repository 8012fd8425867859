// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies who authored a turn.
type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleAssistant
	RoleSystem
)

// String returns the provider-facing role name.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Roles lists the three roles in marker order.
var Roles = []Role{RoleUser, RoleAssistant, RoleSystem}

// =============================================================================
// DELIMITER SET
// =============================================================================

// MarkerSuffix terminates every role token in the buffer.
const MarkerSuffix = ":"

// DelimiterSet holds the role tokens that, followed by MarkerSuffix, mark the
// start of each turn. Tokens are stored lower-cased and matched without
// regard to case.
type DelimiterSet struct {
	User      string
	Assistant string
	System    string
}

// DefaultDelimiters returns the stock user/assistant/system tokens.
func DefaultDelimiters() DelimiterSet {
	return DelimiterSet{User: "user", Assistant: "assistant", System: "system"}
}

// NewDelimiterSet normalises and validates the three tokens.
func NewDelimiterSet(user, assistant, system string) (DelimiterSet, error) {
	d := DelimiterSet{
		User:      normalizeToken(user),
		Assistant: normalizeToken(assistant),
		System:    normalizeToken(system),
	}
	if err := d.Validate(); err != nil {
		return DelimiterSet{}, err
	}
	return d, nil
}

// normalizeToken trims the token, drops a trailing colon a user may have typed
// out of habit and lower-cases the rest.
func normalizeToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, MarkerSuffix)
	return strings.ToLower(strings.TrimSpace(s))
}

// DelimiterError describes why a token was rejected.
type DelimiterError struct {
	Role   Role
	Reason string
}

func (e *DelimiterError) Error() string {
	return fmt.Sprintf("%s delimiter: %s", e.Role, e.Reason)
}

// Validate checks that every token is non-empty, contains no colon and that
// the three tokens are pairwise distinct.
func (d DelimiterSet) Validate() error {
	var errs []error
	for _, role := range Roles {
		token := d.Token(role)
		switch {
		case strings.TrimSpace(token) == "":
			errs = append(errs, &DelimiterError{Role: role, Reason: "must not be empty"})
		case strings.Contains(token, MarkerSuffix):
			errs = append(errs, &DelimiterError{Role: role, Reason: "must not contain ':'"})
		}
	}

	fold := cases.Fold()
	seen := make(map[string]Role, 3)
	for _, role := range Roles {
		key := fold.String(d.Token(role))
		if key == "" {
			continue
		}
		if other, ok := seen[key]; ok {
			errs = append(errs, &DelimiterError{
				Role:   role,
				Reason: fmt.Sprintf("must differ from the %s delimiter", other),
			})
			continue
		}
		seen[key] = role
	}

	return errors.Join(errs...)
}

// Token returns the bare token for a role.
func (d DelimiterSet) Token(r Role) string {
	switch r {
	case RoleUser:
		return d.User
	case RoleAssistant:
		return d.Assistant
	case RoleSystem:
		return d.System
	default:
		return ""
	}
}

// Marker returns the token with its colon, e.g. "user:".
func (d DelimiterSet) Marker(r Role) string {
	return d.Token(r) + MarkerSuffix
}

// RoleOf reports the role whose marker prefixes s, ignoring case.
func (d DelimiterSet) RoleOf(s string) Role {
	folded := cases.Fold().String(s)
	for _, role := range Roles {
		if strings.HasPrefix(folded, cases.Fold().String(d.Marker(role))) {
			return role
		}
	}
	return RoleUnknown
}

// Equal reports whether two sets mark roles identically.
func (d DelimiterSet) Equal(other DelimiterSet) bool {
	fold := cases.Fold()
	for _, role := range Roles {
		if fold.String(d.Token(role)) != fold.String(other.Token(role)) {
			return false
		}
	}
	return true
}

// MarkerChange is one marker rename produced by a delimiter edit.
type MarkerChange struct {
	Old string
	New string
}

// Changes lists the markers that differ between old and new, in role order.
func Changes(old, new DelimiterSet) []MarkerChange {
	var out []MarkerChange
	for _, role := range Roles {
		if old.Token(role) != new.Token(role) {
			out = append(out, MarkerChange{Old: old.Marker(role), New: new.Marker(role)})
		}
	}
	return out
}
