package authz

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/models"
)

// FieldAccess is the computed visibility/editability of one client field
// for a given role.
type FieldAccess struct {
	Visible  bool `json:"visible"`
	Editable bool `json:"editable"`
}

// Configurable core client fields the front-desk policy covers.
var coreFields = []string{
	"first_name",
	"last_name",
	"preferred_name",
	"pronouns",
	"phone",
	"email",
	"address",
	"emergency_contact",
	"birth_date",
}

// alwaysVisible fields can never be hidden from the front desk: without
// them the role cannot identify the record at all.
var alwaysVisible = map[string]bool{
	"first_name":     true,
	"last_name":      true,
	"preferred_name": true,
	"pronouns":       true,
}

// clinicalFields are forced hidden for the front desk regardless of
// configuration, and gated behind the clinical-view permission for every
// other role.
var clinicalFields = map[string]bool{
	"birth_date": true,
}

// safeDefaults applies when no FieldAccessConfig row exists for a field.
var safeDefaults = map[string]string{
	"phone":             models.FieldAccessEdit,
	"email":             models.FieldAccessEdit,
	"address":           models.FieldAccessView,
	"emergency_contact": models.FieldAccessView,
	"birth_date":        models.FieldAccessNone,
}

// safeDefaultsTier3 tightens the defaults at the strictest tier: email
// drops from editable to view-only.
var safeDefaultsTier3 = map[string]string{
	"phone":             models.FieldAccessEdit,
	"email":             models.FieldAccessView,
	"address":           models.FieldAccessView,
	"emergency_contact": models.FieldAccessNone,
	"birth_date":        models.FieldAccessNone,
}

// FieldPolicy computes per-field visibility for client records.
type FieldPolicy struct {
	DB *gorm.DB
}

// VisibleFields returns the access map over all core fields for the given
// role at the given tier.
//
// For the front-desk role, alwaysVisible fields are forced visible, clinical
// fields forced hidden, and the rest consult FieldAccessConfig rows with the
// tier-sensitive built-in defaults as fallback. For every other role all
// fields are visible and editable except clinical fields, which follow the
// tier-resolved effect of the clinical-view permission (a Gated outcome at
// tier 3 hides them here; the clinical endpoint handles grant-based access).
func (p *FieldPolicy) VisibleFields(role Role, tier Tier) (map[string]FieldAccess, error) {
	result := make(map[string]FieldAccess, len(coreFields))

	if role != RoleReceptionist {
		clinicalVisible := Effective(role, KeyClientViewClinical, tier) == Allow
		for _, field := range coreFields {
			if clinicalFields[field] {
				result[field] = FieldAccess{Visible: clinicalVisible, Editable: clinicalVisible}
				continue
			}
			result[field] = FieldAccess{Visible: true, Editable: true}
		}
		return result, nil
	}

	overrides, err := p.configOverrides()
	if err != nil {
		return nil, err
	}
	defaults := safeDefaults
	if tier >= Tier3 {
		defaults = safeDefaultsTier3
	}

	for _, field := range coreFields {
		if clinicalFields[field] {
			result[field] = FieldAccess{}
			continue
		}
		if alwaysVisible[field] {
			access := FieldAccess{Visible: true}
			if overrides[field] == models.FieldAccessEdit {
				access.Editable = true
			}
			result[field] = access
			continue
		}
		level, ok := overrides[field]
		if !ok {
			level = defaults[field]
		}
		result[field] = accessFromLevel(level)
	}
	return result, nil
}

// CustomFieldAccess evaluates a dynamically defined field for the front
// desk. Custom fields carry their own three-state access and are not tier
// sensitive; every other role sees them fully.
func (p *FieldPolicy) CustomFieldAccess(role Role, field models.CustomField) FieldAccess {
	if role != RoleReceptionist {
		return FieldAccess{Visible: true, Editable: true}
	}
	return accessFromLevel(field.FrontDeskAccess)
}

func (p *FieldPolicy) configOverrides() (map[string]string, error) {
	var rows []models.FieldAccessConfig
	if err := p.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading field access config: %w", err)
	}
	overrides := make(map[string]string, len(rows))
	for _, row := range rows {
		overrides[row.FieldName] = row.FrontDeskAccess
	}
	return overrides, nil
}

func accessFromLevel(level string) FieldAccess {
	switch level {
	case models.FieldAccessEdit:
		return FieldAccess{Visible: true, Editable: true}
	case models.FieldAccessView:
		return FieldAccess{Visible: true}
	default:
		return FieldAccess{}
	}
}

// CoreFields lists the configurable core field names in declaration order.
func CoreFields() []string {
	fields := make([]string, len(coreFields))
	copy(fields, coreFields)
	return fields
}
