package workflow

import (
	"context"
	"errors"
	"os"
	"strings"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// This file is the single authoritative home of the project lifecycle state
// machine: the trigger-driven side effects of estado transitions, plus the
// human-triggered approve / reject / attach-invoice operations.

var (
	ErrorNotInFinalReview     = errors.New("project is not in En Revisión Final")
	ErrorEmptyRejectionReason = errors.New("rejection reason must not be empty")
	ErrorNotPendingInvoice    = errors.New("project is not in Pendiente de Factura")
	ErrorInvoiceProjectMatch  = errors.New("invoice does not belong to this project")
)

// SideEffectPlan is what a single estado transition owes the rest of the
// system, beyond notifications.
type SideEffectPlan struct {
	// Delete technician evidence files 1/2 from the object store.
	DeleteEvidence bool
	// Storage-class downgrade of client quote, client PO, provider quote,
	// provider PO.
	ArchiveSourceDocs bool
	// Bulk-delete the project's log entries and remove the evidence fields
	// from the document.
	PurgeLogsAndEvidenceFields bool
	// Two-phase billing: flip back to Activo, reset technician statuses,
	// advance the billing phase.
	AutoReactivate bool
}

// PlanLifecycleEffects evaluates the transition table against a before/after
// pair. Effects are edge-triggered except auto-reactivation, whose guard is
// the observed state itself (estado == Facturado with a Preliminary phase),
// which also makes it idempotent: once flipped back to Activo the guard no
// longer holds.
func PlanLifecycleEffects(old *models.Project, updated *models.Project) SideEffectPlan {
	var plan SideEffectPlan

	fromFinalReview := old.Estado == models.EstadoEnRevisionFinal && old.Estado != updated.Estado

	if fromFinalReview {
		switch updated.Estado {
		case models.EstadoPendienteDeFactura, models.EstadoArchivado:
			plan.DeleteEvidence = true
		}
		switch updated.Estado {
		case models.EstadoActivo, models.EstadoTerminadoInterno, models.EstadoPendienteDeFactura:
			plan.PurgeLogsAndEvidenceFields = true
		}
	}

	if updated.Estado == models.EstadoFacturado && old.Estado != models.EstadoFacturado {
		plan.ArchiveSourceDocs = true
	}

	if updated.Estado == models.EstadoFacturado && updated.BillingPhase == models.BillingPhasePreliminary {
		plan.AutoReactivate = true
	}

	return plan
}

// ApplyLifecycleEffects executes a plan. File and log operations are
// fire-and-forget relative to the document update that produced the plan: a
// failed storage call leaves the project legally in its new estado with the
// file still present.
func ApplyLifecycleEffects(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, store ObjectStore, updated *models.Project, plan SideEffectPlan) {
	if plan.DeleteEvidence {
		deleteStoredFile(ctx, logger, store, updated.EvidenciaTecnico1Url)
		deleteStoredFile(ctx, logger, store, updated.EvidenciaTecnico2Url)
	}

	if plan.ArchiveSourceDocs {
		for _, url := range []*string{
			updated.CotizacionClienteUrl,
			updated.OrdenCompraClienteUrl,
			updated.CotizacionProveedorUrl,
			updated.OrdenCompraProveedorUrl,
		} {
			archiveStoredFile(ctx, logger, store, url)
		}
	}

	if plan.PurgeLogsAndEvidenceFields {
		if _, err := models.DeleteLogEntriesByProject(tx, updated.ID); err != nil {
			config.LogError(logger, "lifecycle.go", "ApplyLifecycleEffects", "DeleteLogEntriesByProject", updated.ID, err)
		}
		deleteStoredFile(ctx, logger, store, updated.EvidenciaTecnico1Url)
		deleteStoredFile(ctx, logger, store, updated.EvidenciaTecnico2Url)
		if err := models.ClearEvidenceFields(tx, updated.ID); err != nil {
			config.LogError(logger, "lifecycle.go", "ApplyLifecycleEffects", "ClearEvidenceFields", updated.ID, err)
		}
	}

	if plan.AutoReactivate {
		if err := reactivateForSecondPhase(ctx, tx, updated.ID); err != nil {
			config.LogError(logger, "lifecycle.go", "ApplyLifecycleEffects", "reactivateForSecondPhase", updated.ID, err)
		}
	}
}

func deleteStoredFile(ctx context.Context, logger *logrus.Logger, store ObjectStore, url *string) {
	if url == nil || strings.TrimSpace(*url) == "" {
		return
	}
	if !utils.IsStorageURL(*url) {
		config.LogSkip(logger, "lifecycle.go", "deleteStoredFile", "url does not match storage host", *url)
		return
	}
	if err := store.Delete(ctx, *url); err != nil {
		config.LogError(logger, "lifecycle.go", "deleteStoredFile", "Delete", *url, err)
	}
}

func archiveStoredFile(ctx context.Context, logger *logrus.Logger, store ObjectStore, url *string) {
	if url == nil || strings.TrimSpace(*url) == "" {
		return
	}
	if !utils.IsStorageURL(*url) {
		config.LogSkip(logger, "lifecycle.go", "archiveStoredFile", "url does not match storage host", *url)
		return
	}
	if err := store.SetRetentionClass(ctx, *url, utils.RetentionClassArchive); err != nil {
		config.LogError(logger, "lifecycle.go", "archiveStoredFile", "SetRetentionClass", *url, err)
	}
}

// reactivateForSecondPhase flips a preliminarily-billed project back into
// work: the first invoice only covered partial delivery.
func reactivateForSecondPhase(ctx context.Context, tx *gorm.DB, projectId int) error {
	project, err := models.GetProjectById(ctx, tx, projectId)
	if err != nil {
		return err
	}
	// Guard on the stored document: a concurrent observer may have flipped
	// it already.
	if project.Estado != models.EstadoFacturado || project.BillingPhase != models.BillingPhasePreliminary {
		return nil
	}

	old := project.Clone()
	project.Estado = models.EstadoActivo
	project.EstadoCliente = models.ClienteEstadoActivo
	project.BillingPhase = models.BillingPhasePhase2Pending
	for _, id := range project.AssignedTechnicianIds {
		if project.TechnicianStatus == nil {
			project.TechnicianStatus = map[int]models.TechnicianStatus{}
		}
		project.TechnicianStatus[id] = models.TechnicianStatusInProgress
	}
	return models.SaveProjectUpdate(ctx, tx, old, project)
}

// ApprovalOutcome decides where an approved project in final review goes.
// Returns the new estado, client estado and billing phase without writing.
func ApprovalOutcome(project *models.Project) (models.ProjectEstado, models.ClienteEstado, models.BillingPhase, error) {
	if project.Estado != models.EstadoEnRevisionFinal {
		return "", "", "", ErrorNotInFinalReview
	}

	secondDelivery := project.FinalDocument2Url != nil && strings.TrimSpace(*project.FinalDocument2Url) != ""
	if secondDelivery {
		// Final delivery. Straight to Archivado only when the first phase
		// was actually billed; Phase2Pending alone is not proof of billing.
		billedOnce := project.BillingPhase == models.BillingPhasePhase2Pending && project.ClientInvoiceAttached()
		if billedOnce {
			return models.EstadoArchivado, models.ClienteEstadoTerminado, project.BillingPhase, nil
		}
		return models.EstadoPendienteDeFactura, models.ClienteEstadoTerminado, project.BillingPhase, nil
	}

	// Preliminary delivery: bill the first phase.
	return models.EstadoPendienteDeFactura, project.EstadoCliente, models.BillingPhasePreliminary, nil
}

// ApproveProject applies the approval decision to a project in final review.
func ApproveProject(ctx context.Context, projectId int) (*models.Project, error) {
	db := config.GetDB()
	project, err := models.GetProjectById(ctx, db, projectId)
	if err != nil {
		return nil, err
	}

	estado, estadoCliente, phase, err := ApprovalOutcome(project)
	if err != nil {
		return nil, err
	}

	old := project.Clone()
	project.Estado = estado
	project.EstadoCliente = estadoCliente
	project.BillingPhase = phase
	if err := models.SaveProjectUpdate(ctx, db, old, project); err != nil {
		return nil, err
	}
	return project, nil
}

// RejectProject reverts a project in final review to Terminado Internamente
// with a mandatory reason. An empty reason is a validation error rejected
// before any write.
func RejectProject(ctx context.Context, projectId int, reason string) (*models.Project, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrorEmptyRejectionReason
	}

	db := config.GetDB()
	project, err := models.GetProjectById(ctx, db, projectId)
	if err != nil {
		return nil, err
	}
	if project.Estado != models.EstadoEnRevisionFinal {
		return nil, ErrorNotInFinalReview
	}

	old := project.Clone()
	project.Estado = models.EstadoTerminadoInterno
	project.MotivoRechazo = &reason
	if err := models.SaveProjectUpdate(ctx, db, old, project); err != nil {
		return nil, err
	}
	return project, nil
}

// AttachInvoiceToProject references the invoice on the project and completes
// the Pendiente de Factura → Facturado edge once the billing condition
// holds: a client invoice attached AND (internal provider OR a provider
// invoice attached).
func AttachInvoiceToProject(ctx context.Context, projectId int, invoiceId int) (*models.Project, error) {
	db := config.GetDB()

	invoice, err := models.GetInvoiceById(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if invoice.ProjectId != nil && *invoice.ProjectId != projectId {
		return nil, ErrorInvoiceProjectMatch
	}

	project, err := models.GetProjectById(ctx, db, projectId)
	if err != nil {
		return nil, err
	}
	if project.Estado != models.EstadoPendienteDeFactura {
		return nil, ErrorNotPendingInvoice
	}

	old := project.Clone()
	if invoice.Type == models.InvoiceTypeClient {
		if !containsId(project.ClientInvoiceIds, invoiceId) {
			project.ClientInvoiceIds = append(project.ClientInvoiceIds, invoiceId)
		}
	} else {
		if !containsId(project.ProviderInvoiceIds, invoiceId) {
			project.ProviderInvoiceIds = append(project.ProviderInvoiceIds, invoiceId)
		}
	}

	if BillingComplete(project) {
		project.Estado = models.EstadoFacturado
	}

	if err := models.SaveProjectUpdate(ctx, db, old, project); err != nil {
		return nil, err
	}
	return project, nil
}

// BillingComplete reports whether the attached invoices satisfy the
// Facturado condition.
func BillingComplete(project *models.Project) bool {
	if !project.ClientInvoiceAttached() {
		return false
	}
	return IsInternalProvider(project.ProveedorNombre) || project.ProviderInvoiceAttached()
}

// IsInternalProvider matches the self-provider by name, case-insensitive and
// whitespace-trimmed.
func IsInternalProvider(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), internalProviderName())
}

func internalProviderName() string {
	if v := strings.TrimSpace(os.Getenv("INTERNAL_PROVIDER_NAME")); v != "" {
		return v
	}
	return "Serviconsa"
}

func containsId(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
