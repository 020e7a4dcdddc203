package authz

import (
	"log/slog"
	"strconv"

	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/models"
)

// Tier is the organization-wide access strictness setting. Tier 1 is the
// laxest default, tier 3 ("Clinical Safeguards") the strictest.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// TierSource resolves the current access tier. Implementations must read
// fresh state on every call: tier changes are rare but must affect the very
// next evaluation.
type TierSource interface {
	Current() Tier
}

// SettingsTierSource reads the tier from the persisted settings table.
// Missing or malformed values resolve to tier 1 and are logged as
// anomalies.
type SettingsTierSource struct {
	DB *gorm.DB
}

func (s *SettingsTierSource) Current() Tier {
	var setting models.Settings
	if err := s.DB.Where("key = ?", models.SettingAccessTier).First(&setting).Error; err != nil {
		return Tier1
	}
	n, err := strconv.Atoi(setting.Value)
	if err != nil || n < 1 || n > 3 {
		slog.Warn("malformed access tier setting, defaulting to 1", "value", setting.Value)
		return Tier1
	}
	return Tier(n)
}

// ResolveTier applies the tier modifier to a matrix effect. Gated is the
// only tier-sensitive effect: below tier 3 it relaxes to Allow; at tier 3
// it stays Gated for the caller to resolve against a live access grant.
func ResolveTier(effect Effect, tier Tier) Effect {
	if effect == Gated && tier < Tier3 {
		return Allow
	}
	return effect
}

// Effective combines the matrix lookup and the tier modifier.
func Effective(role Role, key Key, tier Tier) Effect {
	return ResolveTier(CanAccess(role, key), tier)
}
