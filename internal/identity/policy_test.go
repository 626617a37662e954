package identity

import (
	"errors"
	"testing"
)

func TestCheckAdminCapacityBoundary(t *testing.T) {
	for count := 0; count < MaxAdmins; count++ {
		if err := CheckAdminCapacity(RoleAdmin, count); err != nil {
			t.Fatalf("admin with %d existing admins should pass: %v", count, err)
		}
	}
	if err := CheckAdminCapacity(RoleAdmin, MaxAdmins); !errors.Is(err, ErrAdminCapacityExceeded) {
		t.Fatalf("expected capacity error at %d admins, got %v", MaxAdmins, err)
	}
	if err := CheckAdminCapacity(RoleStudent, 10); err != nil {
		t.Fatalf("non-admin roles ignore capacity: %v", err)
	}
}

func TestCheckUpgradeEligibility(t *testing.T) {
	cases := []struct {
		current, requested Role
		denied             bool
	}{
		{RoleUser, RoleStudent, false},
		{RoleUser, RoleTeacher, false},
		{RoleUser, RoleAdmin, false},
		{RoleTeacher, RoleStudent, true},
		{RoleStudent, RoleTeacher, true},
		{RoleAdmin, RoleStudent, true},
		{RoleTeacher, RoleAdmin, false},
		{RoleStudent, RoleUser, false},
	}
	for _, tc := range cases {
		err := CheckUpgradeEligibility(tc.current, tc.requested)
		if tc.denied != errors.Is(err, ErrRoleUpgradeDenied) {
			t.Fatalf("%s -> %s: unexpected result %v", tc.current, tc.requested, err)
		}
	}
}

func TestCheckRoleChangeEvaluatesCapacityFirst(t *testing.T) {
	err := CheckRoleChange(RoleTeacher, RoleAdmin, MaxAdmins)
	if !errors.Is(err, ErrAdminCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}
