package infra

import (
	"tn-work/internal/domain"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

const (
	groupAttendanceAdmin = "attendance_admin"
	groupAttendanceUser  = "attendance_user"
)

// NewEnforcer builds an in-memory enforcer seeded with the attendance policy.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{groupAttendanceUser, "attendance", "create"},
		{groupAttendanceUser, "attendance", "read"},
		{groupAttendanceAdmin, "attendance_live", "read"},
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, err
	}

	groupings := [][]string{{domain.RoleEmployee, groupAttendanceUser}}
	for _, role := range domain.PrivilegedRoles {
		groupings = append(groupings,
			[]string{role, groupAttendanceUser},
			[]string{role, groupAttendanceAdmin},
		)
	}
	if _, err := e.AddGroupingPolicies(groupings); err != nil {
		return nil, err
	}
	return e, nil
}
