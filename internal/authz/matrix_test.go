package authz

import (
	"testing"
)

func TestCanAccess_UnknownKeyFailsClosed(t *testing.T) {
	if got := CanAccess(RoleStaff, Key("client.telepathy")); got != Deny {
		t.Fatalf("unknown key: got %v, want deny", got)
	}
}

func TestCanAccess_UnknownRoleFailsClosed(t *testing.T) {
	if got := CanAccess(Role("intern"), KeyClientView); got != Deny {
		t.Fatalf("unknown role: got %v, want deny", got)
	}
}

func TestEffective_DenyIsDenyAtEveryTier(t *testing.T) {
	for key, def := range matrix {
		for role, effect := range def.effects {
			if effect != Deny {
				continue
			}
			for _, tier := range []Tier{Tier1, Tier2, Tier3} {
				if got := Effective(role, key, tier); got != Deny {
					t.Errorf("(%s, %s) at tier %d: got %v, want deny", role, key, tier, got)
				}
			}
		}
	}
}

func TestEffective_GatedRelaxesBelowTier3(t *testing.T) {
	found := false
	for key, def := range matrix {
		for role, effect := range def.effects {
			if effect != Gated {
				continue
			}
			found = true
			if got := Effective(role, key, Tier1); got != Allow {
				t.Errorf("(%s, %s) at tier 1: got %v, want allow", role, key, got)
			}
			if got := Effective(role, key, Tier2); got != Allow {
				t.Errorf("(%s, %s) at tier 2: got %v, want allow", role, key, got)
			}
			if got := Effective(role, key, Tier3); got != Gated {
				t.Errorf("(%s, %s) at tier 3: got %v, want gated", role, key, got)
			}
		}
	}
	if !found {
		t.Fatal("matrix defines no gated pairs; test is vacuous")
	}
}

func TestEffective_NoteViewForProgramManager(t *testing.T) {
	if got := Effective(RoleProgramManager, KeyNoteView, Tier1); got != Allow {
		t.Errorf("tier 1: got %v, want allow", got)
	}
	if got := Effective(RoleProgramManager, KeyNoteView, Tier3); got != Gated {
		t.Errorf("tier 3: got %v, want gated", got)
	}
}

func TestResolveTier_IdentityForNonGated(t *testing.T) {
	for _, effect := range []Effect{Allow, Deny, Program, Scoped} {
		for _, tier := range []Tier{Tier1, Tier2, Tier3} {
			if got := ResolveTier(effect, tier); got != effect {
				t.Errorf("ResolveTier(%v, %d) = %v, want %v", effect, tier, got, effect)
			}
		}
	}
}

func TestValidateMatrix(t *testing.T) {
	if err := ValidateMatrix(); err != nil {
		t.Fatalf("ValidateMatrix: %v", err)
	}
}

func TestClientScopedKeys_DerivedFromDefinitions(t *testing.T) {
	keys := ClientScopedKeys()
	set := make(map[Key]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}

	for _, want := range []Key{KeyClientView, KeyClientViewClinical, KeyNoteView, KeyPlanEdit} {
		if !set[want] {
			t.Errorf("expected %s in client-scoped key set", want)
		}
	}
	for _, not := range []Key{KeyReportAggregate, KeyDataExport} {
		if set[not] {
			t.Errorf("did not expect %s in client-scoped key set", not)
		}
	}
}

func TestAdminExempt_PerKeyOnly(t *testing.T) {
	if !AdminExempt(KeyDataExport) {
		t.Error("data.export should be admin exempt")
	}
	if !AdminExempt(KeyDataImport) {
		t.Error("data.import should be admin exempt")
	}
	if AdminExempt(KeyClientView) {
		t.Error("client.view must never be admin exempt")
	}
	if AdminExempt(KeyNoteView) {
		t.Error("note.view must never be admin exempt")
	}
}

func TestHigherRole(t *testing.T) {
	if got := HigherRole(RoleStaff, RoleProgramManager); got != RoleProgramManager {
		t.Errorf("got %s, want program_manager", got)
	}
	if got := HigherRole(RoleExecutive, RoleReceptionist); got != RoleExecutive {
		t.Errorf("got %s, want executive", got)
	}
	if got := HigherRole(RoleStaff, RoleStaff); got != RoleStaff {
		t.Errorf("got %s, want staff", got)
	}
}
