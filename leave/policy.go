/*
policy.go - Policy resolution and pre-built configurations

PURPOSE:
  PolicyConfig rows are versioned per (role, leave type): administrators
  append new rows instead of mutating old ones, and the engine reads the
  row with the latest effective date not after "today". Superseded rows
  stay for audit; the engine never deletes them.

SEE ALSO:
  - types.go: PolicyConfig definition
  - scheduler/accrual.go: the consumer of credit/bonus fields
*/
package leave

// ResolvePolicy picks the authoritative PolicyConfig from the given
// versions: the one with the latest EffectiveFrom that is not after asOf.
// Returns ErrNotFound (wrapped) when no version is effective yet.
func ResolvePolicy(versions []PolicyConfig, asOf Date) (*PolicyConfig, error) {
	var best *PolicyConfig
	for i := range versions {
		v := &versions[i]
		if v.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || v.EffectiveFrom.After(best.EffectiveFrom) {
			best = v
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// =============================================================================
// PRE-BUILT POLICIES
// =============================================================================

// DefaultPolicies returns a starter policy set for every (role, leave type)
// pair, effective from the given date. Real deployments replace these via
// the admin surface; they exist so a fresh database is usable immediately.
func DefaultPolicies(effectiveFrom Date) []PolicyConfig {
	var out []PolicyConfig
	for _, role := range AllRoles {
		annualCasual := 12.0
		if role == RoleIntern {
			annualCasual = 6.0
		}
		out = append(out,
			PolicyConfig{
				Role:              role,
				LeaveType:         LeaveCasual,
				AnnualCredit:      NewDays(annualCasual),
				AnnualMax:         NewDays(annualCasual + 5),
				CarryForwardLimit: NewDays(5),
				MaxPerMonth:       NewDays(3),
				Anniversary3Bonus: NewDays(2),
				Anniversary5Bonus: NewDays(5),
				EffectiveFrom:     effectiveFrom,
			},
			PolicyConfig{
				Role:              role,
				LeaveType:         LeaveSick,
				AnnualCredit:      NewDays(6),
				AnnualMax:         NewDays(6),
				CarryForwardLimit: ZeroDays(), // sick leave does not roll over
				EffectiveFrom:     effectiveFrom,
			},
			PolicyConfig{
				Role:              role,
				LeaveType:         LeaveLOP,
				AnnualCredit:      NewDays(24),
				AnnualMax:         NewDays(24),
				CarryForwardLimit: ZeroDays(),
				MaxPerMonth:       NewDays(4),
				EffectiveFrom:     effectiveFrom,
			},
		)
	}
	return out
}
