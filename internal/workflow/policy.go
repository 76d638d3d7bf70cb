package workflow

import (
	"sort"
	"strings"
)

// DeletePolicy decides which statuses allow deleting a subject.
type DeletePolicy string

const (
	// DeleteRejectedLocksOut allows deleting DRAFT and APPROVED records but never REJECTED ones.
	DeleteRejectedLocksOut DeletePolicy = "rejected_locks_out"
	// DeleteDraftOnly allows deleting only DRAFT records.
	DeleteDraftOnly DeletePolicy = "draft_only"
)

// Allows reports whether a subject in status s may be deleted.
func (p DeletePolicy) Allows(s Status) bool {
	switch p {
	case DeleteRejectedLocksOut:
		return s == StatusDraft || s == StatusApproved
	case DeleteDraftOnly:
		return s == StatusDraft
	default:
		return false
	}
}

func (p DeletePolicy) valid() bool {
	return p == DeleteRejectedLocksOut || p == DeleteDraftOnly
}

const DefaultRequestPrefix = "CR"

// ClassPolicy holds the per-class rules the engine must not hard-code.
type ClassPolicy struct {
	Class  SubjectClass
	Delete DeletePolicy

	// ReopenOnEdit lets Update on an APPROVED record demote it to DRAFT first.
	ReopenOnEdit bool

	// RequestPrefix is used in change request numbers.
	RequestPrefix string
}

// Policies is an immutable lookup of class policies.
type Policies struct {
	byClass map[SubjectClass]ClassPolicy
}

// DefaultClassPolicies mirrors the HR suite's configuration and change-request record types.
func DefaultClassPolicies() []ClassPolicy {
	return []ClassPolicy{
		{Class: "pay_grade", Delete: DeleteRejectedLocksOut},
		{Class: "pay_type", Delete: DeleteRejectedLocksOut},
		{Class: "allowance", Delete: DeleteRejectedLocksOut},
		{Class: "signing_bonus", Delete: DeleteRejectedLocksOut},
		{Class: "termination_benefit", Delete: DeleteRejectedLocksOut},
		{Class: "payroll_policy", Delete: DeleteRejectedLocksOut},
		{Class: "insurance_bracket", Delete: DeleteDraftOnly},
		{Class: "tax_rule", Delete: DeleteRejectedLocksOut, ReopenOnEdit: true},
		{Class: "org_structure", Delete: DeleteDraftOnly, RequestPrefix: "SCR"},
		{Class: "offboarding", Delete: DeleteDraftOnly, RequestPrefix: "OFF"},
		{Class: "leave", Delete: DeleteDraftOnly, RequestPrefix: "LV"},
	}
}

// NewPolicies validates and indexes policies. Later entries override earlier ones for the same class.
func NewPolicies(list ...ClassPolicy) (Policies, error) {
	out := Policies{byClass: make(map[SubjectClass]ClassPolicy, len(list))}
	for _, p := range list {
		p.Class = SubjectClass(strings.TrimSpace(string(p.Class)))
		if p.Class == "" {
			return Policies{}, Configurationf("policy class name is required")
		}
		if !p.Delete.valid() {
			return Policies{}, Configurationf("class %q: unknown delete policy %q", p.Class, p.Delete)
		}
		if p.RequestPrefix == "" {
			p.RequestPrefix = DefaultRequestPrefix
		}
		out.byClass[p.Class] = p
	}
	return out, nil
}

// MustDefaultPolicies panics only if the built-in table is malformed.
func MustDefaultPolicies() Policies {
	p, err := NewPolicies(DefaultClassPolicies()...)
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup returns ErrConfiguration for classes nobody configured.
func (p Policies) Lookup(class SubjectClass) (ClassPolicy, error) {
	cp, ok := p.byClass[class]
	if !ok {
		return ClassPolicy{}, Configurationf("unknown subject class %q", class)
	}
	return cp, nil
}

func (p Policies) Classes() []SubjectClass {
	out := make([]SubjectClass, 0, len(p.byClass))
	for c := range p.byClass {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
