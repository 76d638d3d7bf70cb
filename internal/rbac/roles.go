package rbac

import "fmt"

// Role is a closed set. Keep values stable; they are part of auth/RBAC contracts.
type Role string

const (
	RoleEmployee          Role = "employee"
	RoleDepartmentHead    Role = "department_head"
	RoleHRManager         Role = "hr_manager"
	RoleHRAdmin           Role = "hr_admin"
	RolePayrollSpecialist Role = "payroll_specialist"
	RolePayrollManager    Role = "payroll_manager"
	RoleSystemAdmin       Role = "system_admin"
)

// ParseRole rejects anything outside the closed set.
func ParseRole(v string) (Role, error) {
	r := Role(v)
	if _, ok := capabilities[r]; ok || r == RoleSystemAdmin {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

func IsSystemAdmin(r Role) bool { return r == RoleSystemAdmin }

// Operation is a capability checked before invoking the workflow engine.
type Operation string

const (
	OpConfigRead          Operation = "config.read"
	OpConfigWrite         Operation = "config.write"
	OpConfigApprove       Operation = "config.approve"
	OpChangeRequestCreate Operation = "change_request.create"
	OpChangeRequestRead   Operation = "change_request.read"
	OpChangeRequestManage Operation = "change_request.manage"
	OpApprovalDecide      Operation = "approval.decide"
	OpDelegationManage    Operation = "delegation.manage"
	OpAuditRead           Operation = "audit.read"
	OpReportRead          Operation = "report.read"
)

func ops(list ...Operation) map[Operation]struct{} {
	m := make(map[Operation]struct{}, len(list))
	for _, o := range list {
		m[o] = struct{}{}
	}
	return m
}

// capabilities is the role -> permitted operations table.
// system_admin is absent on purpose: it bypasses the table.
var capabilities = map[Role]map[Operation]struct{}{
	RoleEmployee: ops(
		OpChangeRequestCreate, OpChangeRequestRead, OpApprovalDecide, OpDelegationManage,
	),
	RoleDepartmentHead: ops(
		OpChangeRequestCreate, OpChangeRequestRead, OpChangeRequestManage,
		OpApprovalDecide, OpDelegationManage, OpReportRead,
	),
	RoleHRManager: ops(
		OpConfigRead, OpConfigWrite,
		OpChangeRequestCreate, OpChangeRequestRead, OpChangeRequestManage,
		OpApprovalDecide, OpDelegationManage, OpAuditRead, OpReportRead,
	),
	RoleHRAdmin: ops(
		OpConfigRead, OpConfigWrite, OpConfigApprove,
		OpChangeRequestCreate, OpChangeRequestRead, OpChangeRequestManage,
		OpApprovalDecide, OpDelegationManage, OpAuditRead, OpReportRead,
	),
	RolePayrollSpecialist: ops(
		OpConfigRead, OpConfigWrite,
		OpChangeRequestCreate, OpChangeRequestRead, OpApprovalDecide, OpDelegationManage,
	),
	RolePayrollManager: ops(
		OpConfigRead, OpConfigWrite, OpConfigApprove,
		OpChangeRequestCreate, OpChangeRequestRead, OpApprovalDecide, OpDelegationManage,
		OpAuditRead, OpReportRead,
	),
}

// Can reports whether role may perform op.
func Can(r Role, op Operation) bool {
	if IsSystemAdmin(r) {
		return true
	}
	_, ok := capabilities[r][op]
	return ok
}
