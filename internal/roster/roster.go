// Package roster implements the bounded-membership admission rule shared by
// course enrollment and event registration. Both workflows gather their state
// under a per-record lock and then ask Admission for a verdict, so the
// ordering of the checks is identical everywhere a roster appears.
package roster

import "errors"

// Sentinel verdicts returned by Admission.Check.
var (
	ErrClosed        = errors.New("roster closed to new members")
	ErrAlreadyMember = errors.New("already a member")
	ErrFull          = errors.New("roster full")
)

// Admission captures the state of one bounded roster at decision time.
// Checks run in a fixed order: closed, membership, capacity, eligibility.
type Admission struct {
	// Closed is non-nil when the roster does not accept new members at all
	// (inactive course, passed registration deadline). It is returned as-is
	// when set, so callers can carry a domain-specific error through.
	Closed error

	// AlreadyMember is true when the candidate is on the roster now.
	AlreadyMember bool

	// Size and Capacity bound the membership set.
	Size     int
	Capacity int

	// Ineligible is non-nil when the candidate fails the roster's
	// eligibility rule (semester standing for courses; events have none).
	Ineligible error
}

// Check returns the first failing verdict, or nil when the candidate may join.
func (a Admission) Check() error {
	if a.Closed != nil {
		return a.Closed
	}
	if a.AlreadyMember {
		return ErrAlreadyMember
	}
	if a.Size >= a.Capacity {
		return ErrFull
	}
	if a.Ineligible != nil {
		return a.Ineligible
	}
	return nil
}
