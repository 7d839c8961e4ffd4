package models

import "testing"

func TestMergeRoleGroups_DedupesById(t *testing.T) {
	ana := &User{ID: 1, Nombre: "Ana", Role: RoleSupervisor}
	luis := &User{ID: 2, Nombre: "Luis", Roles: []string{RoleSupervisor}}
	anaAgain := &User{ID: 1, Nombre: "Ana", Roles: []string{RoleSupervisor}}

	merged := MergeRoleGroups([]*User{ana, luis}, []*User{anaAgain, luis})
	if len(merged) != 2 {
		t.Fatalf("merged %d users, want 2", len(merged))
	}
}

func TestMergeRoleGroups_PreservesFirstAppearanceOrder(t *testing.T) {
	first := []*User{{ID: 3}, {ID: 1}}
	second := []*User{{ID: 2}, {ID: 3}}

	merged := MergeRoleGroups(first, second)
	want := []int{3, 1, 2}
	if len(merged) != len(want) {
		t.Fatalf("merged %d users, want %d", len(merged), len(want))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Fatalf("merged[%d].ID = %d, want %d", i, merged[i].ID, id)
		}
	}
}

func TestMergeRoleGroups_SkipsNilAndEmpty(t *testing.T) {
	merged := MergeRoleGroups(nil, []*User{nil, {ID: 5}}, []*User{})
	if len(merged) != 1 || merged[0].ID != 5 {
		t.Fatalf("merged = %v, want single user 5", merged)
	}
}
