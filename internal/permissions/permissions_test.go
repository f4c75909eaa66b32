package permissions

import "testing"

// Permission algebra: for all masks P and bits b, has(P, b) iff
// (P & ADMINISTRATOR) != 0 or (P & b) != 0.
func TestHasAlgebra(t *testing.T) {
	bits := []uint64{ManageChannels, ManageServer, KickMembers, BanMembers, SendMessages, ManageMessages}

	allCombos := []uint64{0}
	for _, b := range bits {
		n := len(allCombos)
		for i := 0; i < n; i++ {
			allCombos = append(allCombos, allCombos[i]|b)
		}
	}

	for _, p := range allCombos {
		for _, variant := range []uint64{p, p | Administrator} {
			for _, b := range bits {
				want := variant&Administrator != 0 || variant&b != 0
				got := Has(variant, b)
				if got != want {
					t.Fatalf("Has(%#x, %#x) = %v, want %v", variant, b, got, want)
				}
			}
		}
	}
}

func TestAdministratorBypassesEverything(t *testing.T) {
	for _, b := range []uint64{ManageChannels, ManageServer, KickMembers, BanMembers, SendMessages, ManageMessages} {
		if !Has(Administrator, b) {
			t.Fatalf("Administrator should imply bit %#x", b)
		}
	}
}

func TestEffectiveIsUnionOfRolesAndEveryone(t *testing.T) {
	everyone := SendMessages
	roles := []Role{
		{ID: "r1", Permissions: ManageChannels},
		{ID: "r2", Permissions: KickMembers},
	}
	got := Effective(everyone, roles)
	want := SendMessages | ManageChannels | KickMembers
	if got != want {
		t.Fatalf("Effective = %#x, want %#x", got, want)
	}
}

func TestNamesOrderIsStable(t *testing.T) {
	got := Names(ManageMessages | ManageChannels)
	want := []string{"ManageChannels", "ManageMessages"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names = %v, want %v", got, want)
		}
	}
}

func TestStringNone(t *testing.T) {
	if s := String(0); s != "none" {
		t.Fatalf("String(0) = %q, want \"none\"", s)
	}
}
