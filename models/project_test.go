package models

import "testing"

func TestProjectClone_SurvivesMutationOfOriginal(t *testing.T) {
	project := &Project{
		ID:                    1,
		AssignedTechnicianIds: []int{7},
		TechnicianStatus:      map[int]TechnicianStatus{7: TechnicianStatusUnseen},
		ClientInvoiceIds:      []int{10},
		ProviderInvoiceIds:    []int{20},
	}

	old := project.Clone()

	project.TechnicianStatus[7] = TechnicianStatusInProgress
	project.AssignedTechnicianIds = append(project.AssignedTechnicianIds, 8)
	project.ClientInvoiceIds[0] = 99
	project.ProviderInvoiceIds = removeId(project.ProviderInvoiceIds, 20)

	if old.TechnicianStatus[7] != TechnicianStatusUnseen {
		t.Fatalf("snapshot technician status = %q, want Unseen", old.TechnicianStatus[7])
	}
	if len(old.AssignedTechnicianIds) != 1 || old.AssignedTechnicianIds[0] != 7 {
		t.Fatalf("snapshot assigned technicians = %v, want [7]", old.AssignedTechnicianIds)
	}
	if old.ClientInvoiceIds[0] != 10 {
		t.Fatalf("snapshot client invoices = %v, want [10]", old.ClientInvoiceIds)
	}
	if len(old.ProviderInvoiceIds) != 1 || old.ProviderInvoiceIds[0] != 20 {
		t.Fatalf("snapshot provider invoices = %v, want [20]", old.ProviderInvoiceIds)
	}
}

func TestRemoveId_LeavesInputIntact(t *testing.T) {
	ids := []int{1, 2, 3}
	got := removeId(ids, 2)

	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("removeId = %v, want [1 3]", got)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("input mutated: %v", ids)
	}
}
