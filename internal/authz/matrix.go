// Package authz implements the authorization core for Casefile: the static
// role/permission effect matrix, the tier-aware evaluator, program-scope
// resolution, access grants, field-level visibility and the two-person-rule
// review workflow.
package authz

import (
	"fmt"
	"log/slog"
	"sort"
)

// Role is a program-level role tag. The admin flag on a user is orthogonal
// and never appears in the matrix.
type Role string

const (
	RoleReceptionist   Role = "receptionist"
	RoleStaff          Role = "staff"
	RoleProgramManager Role = "program_manager"
	RoleExecutive      Role = "executive"
)

// roleRank orders roles so the highest one can be picked when a user holds
// several across programs.
var roleRank = map[Role]int{
	RoleReceptionist:   1,
	RoleStaff:          2,
	RoleProgramManager: 3,
	RoleExecutive:      4,
}

// Roles lists all program roles in rank order.
func Roles() []Role {
	return []Role{RoleReceptionist, RoleStaff, RoleProgramManager, RoleExecutive}
}

// KnownRole reports whether r is a defined program role.
func KnownRole(r Role) bool {
	_, ok := roleRank[r]
	return ok
}

// HigherRole returns the higher-ranked of a and b.
func HigherRole(a, b Role) Role {
	if roleRank[b] > roleRank[a] {
		return b
	}
	return a
}

// Key is a stable identifier for one capability. Keys are a closed set: the
// matrix below is the only place that interprets them, and an unknown key
// always evaluates to Deny.
type Key string

const (
	KeyClientView         Key = "client.view"
	KeyClientEdit         Key = "client.edit"
	KeyClientViewClinical Key = "client.view_clinical"
	KeyNoteView           Key = "note.view"
	KeyNoteCreate         Key = "note.create"
	KeyNoteDownload       Key = "note.download"
	KeyPlanView           Key = "plan.view"
	KeyPlanEdit           Key = "plan.edit"
	KeyEventView          Key = "event.view"
	KeyCommView           Key = "comm.view"
	KeyReportAggregate    Key = "report.aggregate"
	KeyReportDataExtract  Key = "report.data_extract"
	KeyDataExport         Key = "data.export"
	KeyDataImport         Key = "data.import"
)

// Effect is the matrix verdict for a (role, key) pair. The zero value is
// Deny so that missing entries fail closed.
type Effect int

const (
	Deny Effect = iota
	Allow
	Program
	Scoped
	Gated
)

func (e Effect) String() string {
	switch e {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Program:
		return "program"
	case Scoped:
		return "scoped"
	case Gated:
		return "gated"
	default:
		return fmt.Sprintf("effect(%d)", int(e))
	}
}

// definition describes one permission key: its per-role effects, whether the
// key targets an individual client record (which feeds the blanket-deny
// redirect predicate), and whether admins bypass it. Admin bypass is opted
// into per key for operational permissions only; it is never a blanket rule.
type definition struct {
	effects      map[Role]Effect
	clientScoped bool
	adminExempt  bool
}

var matrix = map[Key]definition{
	KeyClientView: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Program,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyClientEdit: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Scoped,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyClientViewClinical: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Gated,
			RoleProgramManager: Gated,
			RoleExecutive:      Deny,
		},
	},
	KeyNoteView: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Program,
			RoleProgramManager: Gated,
			RoleExecutive:      Deny,
		},
	},
	KeyNoteCreate: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyNoteDownload: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Gated,
			RoleProgramManager: Gated,
			RoleExecutive:      Deny,
		},
	},
	KeyPlanView: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyPlanEdit: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Scoped,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyEventView: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Program,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyCommView: {
		clientScoped: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Program,
			RoleStaff:          Program,
			RoleProgramManager: Program,
			RoleExecutive:      Deny,
		},
	},
	KeyReportAggregate: {
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Deny,
			RoleProgramManager: Allow,
			RoleExecutive:      Allow,
		},
	},
	KeyReportDataExtract: {
		adminExempt: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Deny,
			RoleProgramManager: Gated,
			RoleExecutive:      Allow,
		},
	},
	KeyDataExport: {
		adminExempt: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Deny,
			RoleProgramManager: Deny,
			RoleExecutive:      Deny,
		},
	},
	KeyDataImport: {
		adminExempt: true,
		effects: map[Role]Effect{
			RoleReceptionist:   Deny,
			RoleStaff:          Deny,
			RoleProgramManager: Deny,
			RoleExecutive:      Deny,
		},
	},
}

// CanAccess returns the matrix effect for a (role, key) pair. Unknown keys
// and unknown roles fail closed with Deny; that is a configuration anomaly,
// so it is logged rather than surfaced as an error.
func CanAccess(role Role, key Key) Effect {
	def, ok := matrix[key]
	if !ok {
		slog.Warn("unknown permission key, denying", "key", string(key), "role", string(role))
		return Deny
	}
	effect, ok := def.effects[role]
	if !ok {
		slog.Warn("role missing from permission matrix, denying", "key", string(key), "role", string(role))
		return Deny
	}
	return effect
}

// AdminExempt reports whether admins bypass the matrix for this key. Only
// operational keys (export, import, extract) opt in.
func AdminExempt(key Key) bool {
	return matrix[key].adminExempt
}

// ClientScopedKeys returns, in stable order, every key that targets an
// individual client record. The set is derived from the definitions so a
// newly added resource-scoped key is automatically included.
func ClientScopedKeys() []Key {
	keys := make([]Key, 0, len(matrix))
	for k, def := range matrix {
		if def.clientScoped {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ValidateMatrix checks at startup that every key defines an effect for
// every program role, so a gap is a boot failure instead of a silent
// runtime Deny.
func ValidateMatrix() error {
	for key, def := range matrix {
		for _, role := range Roles() {
			if _, ok := def.effects[role]; !ok {
				return fmt.Errorf("permission matrix: key %q has no effect for role %q", key, role)
			}
		}
	}
	return nil
}
