package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/serviconsa/portal_backend/models"
)

func strPtr(s string) *string { return &s }

func TestPlanLifecycleEffects_FinalReviewOutcomes(t *testing.T) {
	cases := []struct {
		to          models.ProjectEstado
		deleteEv    bool
		purge       bool
		archiveDocs bool
	}{
		{models.EstadoPendienteDeFactura, true, true, false},
		{models.EstadoArchivado, true, false, false},
		{models.EstadoActivo, false, true, false},
		{models.EstadoTerminadoInterno, false, true, false},
	}
	for _, tc := range cases {
		old := baseProject()
		old.Estado = models.EstadoEnRevisionFinal
		updated := baseProject()
		updated.Estado = tc.to

		plan := PlanLifecycleEffects(old, updated)
		if plan.DeleteEvidence != tc.deleteEv {
			t.Fatalf("to=%s: DeleteEvidence = %v, want %v", tc.to, plan.DeleteEvidence, tc.deleteEv)
		}
		if plan.PurgeLogsAndEvidenceFields != tc.purge {
			t.Fatalf("to=%s: PurgeLogsAndEvidenceFields = %v, want %v", tc.to, plan.PurgeLogsAndEvidenceFields, tc.purge)
		}
		if plan.ArchiveSourceDocs != tc.archiveDocs {
			t.Fatalf("to=%s: ArchiveSourceDocs = %v, want %v", tc.to, plan.ArchiveSourceDocs, tc.archiveDocs)
		}
	}
}

func TestPlanLifecycleEffects_InvoicedArchivesSourceDocs(t *testing.T) {
	old := baseProject()
	old.Estado = models.EstadoPendienteDeFactura
	updated := baseProject()
	updated.Estado = models.EstadoFacturado

	plan := PlanLifecycleEffects(old, updated)
	if !plan.ArchiveSourceDocs {
		t.Fatal("expected source documents to be archived on → Facturado")
	}

	// Facturado → Facturado is not a transition; no re-archive.
	plan = PlanLifecycleEffects(updated, updated)
	if plan.ArchiveSourceDocs {
		t.Fatal("expected no archive on a repeated Facturado observation")
	}
}

func TestPlanLifecycleEffects_AutoReactivationGuard(t *testing.T) {
	old := baseProject()
	old.Estado = models.EstadoPendienteDeFactura
	old.BillingPhase = models.BillingPhasePreliminary
	updated := baseProject()
	updated.Estado = models.EstadoFacturado
	updated.BillingPhase = models.BillingPhasePreliminary

	if !PlanLifecycleEffects(old, updated).AutoReactivate {
		t.Fatal("expected auto-reactivation for Facturado with Preliminary phase")
	}

	// Idempotence: after the flip the project is Activo/Phase2Pending and
	// the guard no longer holds.
	flippedOld := *updated
	flipped := baseProject()
	flipped.Estado = models.EstadoActivo
	flipped.BillingPhase = models.BillingPhasePhase2Pending
	if PlanLifecycleEffects(&flippedOld, flipped).AutoReactivate {
		t.Fatal("expected no re-trigger once estado is no longer Facturado")
	}

	// A fully-billed project (no Preliminary phase) never reactivates.
	updated.BillingPhase = models.BillingPhaseNone
	if PlanLifecycleEffects(old, updated).AutoReactivate {
		t.Fatal("expected no reactivation without a Preliminary billing phase")
	}
}

func TestApprovalOutcome_RequiresFinalReview(t *testing.T) {
	project := baseProject()
	project.Estado = models.EstadoActivo
	if _, _, _, err := ApprovalOutcome(project); !errors.Is(err, ErrorNotInFinalReview) {
		t.Fatalf("expected ErrorNotInFinalReview, got %v", err)
	}
}

func TestApprovalOutcome_PreliminaryDelivery(t *testing.T) {
	project := baseProject()
	project.Estado = models.EstadoEnRevisionFinal

	estado, estadoCliente, phase, err := ApprovalOutcome(project)
	if err != nil {
		t.Fatal(err)
	}
	if estado != models.EstadoPendienteDeFactura {
		t.Fatalf("estado = %s, want Pendiente de Factura", estado)
	}
	if phase != models.BillingPhasePreliminary {
		t.Fatalf("billing phase = %s, want Preliminary", phase)
	}
	if estadoCliente != models.ClienteEstadoActivo {
		t.Fatalf("client estado = %s, want Activo", estadoCliente)
	}
}

func TestApprovalOutcome_FinalDelivery_NotYetBilled(t *testing.T) {
	project := baseProject()
	project.Estado = models.EstadoEnRevisionFinal
	project.FinalDocument2Url = strPtr("https://storage.googleapis.com/portal/entrega2.pdf")

	estado, estadoCliente, _, err := ApprovalOutcome(project)
	if err != nil {
		t.Fatal(err)
	}
	if estado != models.EstadoPendienteDeFactura {
		t.Fatalf("estado = %s, want Pendiente de Factura", estado)
	}
	if estadoCliente != models.ClienteEstadoTerminado {
		t.Fatalf("client estado = %s, want Terminado", estadoCliente)
	}
}

func TestApprovalOutcome_FinalDelivery_Phase2PendingWithoutBilling(t *testing.T) {
	// Phase2Pending alone is not proof of a first billing; without an
	// attached client invoice the project must still pass through
	// Pendiente de Factura, not jump to Archivado.
	project := baseProject()
	project.Estado = models.EstadoEnRevisionFinal
	project.BillingPhase = models.BillingPhasePhase2Pending
	project.FinalDocument2Url = strPtr("https://storage.googleapis.com/portal/entrega2.pdf")

	estado, _, _, err := ApprovalOutcome(project)
	if err != nil {
		t.Fatal(err)
	}
	if estado != models.EstadoPendienteDeFactura {
		t.Fatalf("estado = %s, want Pendiente de Factura", estado)
	}
}

func TestApprovalOutcome_FinalDelivery_AlreadyBilled_Archives(t *testing.T) {
	project := baseProject()
	project.Estado = models.EstadoEnRevisionFinal
	project.BillingPhase = models.BillingPhasePhase2Pending
	project.ClientInvoiceIds = []int{42}
	project.FinalDocument2Url = strPtr("https://storage.googleapis.com/portal/entrega2.pdf")

	estado, estadoCliente, _, err := ApprovalOutcome(project)
	if err != nil {
		t.Fatal(err)
	}
	if estado != models.EstadoArchivado {
		t.Fatalf("estado = %s, want Archivado", estado)
	}
	if estadoCliente != models.ClienteEstadoTerminado {
		t.Fatalf("client estado = %s, want Terminado", estadoCliente)
	}
}

func TestRejectProject_EmptyReasonFailsBeforeAnyWrite(t *testing.T) {
	if _, err := RejectProject(context.Background(), 1, "   "); !errors.Is(err, ErrorEmptyRejectionReason) {
		t.Fatalf("expected ErrorEmptyRejectionReason, got %v", err)
	}
}

func TestBillingComplete(t *testing.T) {
	project := baseProject()
	project.ProveedorNombre = "Externo SA"

	if BillingComplete(project) {
		t.Fatal("no invoices attached; billing must not be complete")
	}

	project.ClientInvoiceIds = []int{1}
	if BillingComplete(project) {
		t.Fatal("external provider without provider invoice must not complete billing")
	}

	project.ProviderInvoiceIds = []int{2}
	if !BillingComplete(project) {
		t.Fatal("client + provider invoices must complete billing")
	}

	// Internal provider needs no provider invoice; match is case-insensitive
	// and trimmed.
	internal := baseProject()
	internal.ProveedorNombre = "  SERVICONSA "
	internal.ClientInvoiceIds = []int{1}
	if !BillingComplete(internal) {
		t.Fatal("internal provider with client invoice must complete billing")
	}
}
