package enums

import "fmt"

// UserPlan represents a subscription tier.
type UserPlan string

const (
	UserPlanFree     UserPlan = "FREE"
	UserPlanPro      UserPlan = "PRO"
	UserPlanCreative UserPlan = "CREATIVE"
)

var validUserPlans = []UserPlan{
	UserPlanFree,
	UserPlanPro,
	UserPlanCreative,
}

// planOrdinals orders tiers for "has at least" comparisons.
var planOrdinals = map[UserPlan]int{
	UserPlanFree:     0,
	UserPlanPro:      1,
	UserPlanCreative: 2,
}

// String implements fmt.Stringer.
func (p UserPlan) String() string {
	return string(p)
}

// IsValid reports whether the value is a known UserPlan.
func (p UserPlan) IsValid() bool {
	for _, candidate := range validUserPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// Ordinal returns the plan's position in the tier ordering, -1 for unknown plans.
func (p UserPlan) Ordinal() int {
	if ord, ok := planOrdinals[p]; ok {
		return ord
	}
	return -1
}

// AtLeast reports whether the plan ranks at or above the required tier.
func (p UserPlan) AtLeast(required UserPlan) bool {
	return p.Ordinal() >= required.Ordinal() && p.Ordinal() >= 0
}

// ParseUserPlan converts raw input into a UserPlan.
func ParseUserPlan(value string) (UserPlan, error) {
	for _, candidate := range validUserPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user plan %q", value)
}
