package identity

import "fmt"

// MaxAdmins is the number of ADMIN seats.
const MaxAdmins = 3

// CheckAdminCapacity rejects an ADMIN request once every seat is taken.
func CheckAdminCapacity(requested Role, adminCount int) error {
	if requested != RoleAdmin {
		return nil
	}
	if adminCount >= MaxAdmins {
		return fmt.Errorf("%w (currently %d)", ErrAdminCapacityExceeded, adminCount)
	}
	return nil
}

// CheckUpgradeEligibility allows STUDENT and TEACHER only for a current USER.
func CheckUpgradeEligibility(current, requested Role) error {
	if current == RoleUser {
		return nil
	}
	if requested == RoleStudent || requested == RoleTeacher {
		return fmt.Errorf("%w: current role %s", ErrRoleUpgradeDenied, current)
	}
	return nil
}

// CheckRoleChange evaluates both role predicates against a snapshot of the
// admin count. Callers must take the snapshot inside the transaction that
// commits the change.
func CheckRoleChange(current, requested Role, adminCount int) error {
	if err := CheckAdminCapacity(requested, adminCount); err != nil {
		return err
	}
	return CheckUpgradeEligibility(current, requested)
}
