package models

// ProjectEstado is the internal/operational state track of a project.
type ProjectEstado string

const (
	EstadoCotizacion           ProjectEstado = "Cotización"
	EstadoActivo               ProjectEstado = "Activo"
	EstadoTerminadoInterno     ProjectEstado = "Terminado Internamente"
	EstadoEnRevisionFinal      ProjectEstado = "En Revisión Final"
	EstadoPendienteDeFactura   ProjectEstado = "Pendiente de Factura"
	EstadoFacturado            ProjectEstado = "Facturado"
	EstadoArchivado            ProjectEstado = "Archivado"
)

// ClienteEstado is the simplified client-visible state track.
type ClienteEstado string

const (
	ClienteEstadoActivo    ClienteEstado = "Activo"
	ClienteEstadoTerminado ClienteEstado = "Terminado"
)

// BillingPhase tracks the two-phase billing workflow.
type BillingPhase string

const (
	BillingPhaseNone          BillingPhase = "None"
	BillingPhasePreliminary   BillingPhase = "Preliminary"
	BillingPhasePhase2Pending BillingPhase = "Phase2Pending"
)

// TechnicianStatus is the per-technician progress marker on a project.
type TechnicianStatus string

const (
	TechnicianStatusUnseen     TechnicianStatus = "Unseen"
	TechnicianStatusInProgress TechnicianStatus = "InProgress"
)

// InvoiceEstado is the payment state of an invoice.
type InvoiceEstado string

const (
	InvoiceEstadoPending   InvoiceEstado = "Pending"
	InvoiceEstadoPaid      InvoiceEstado = "Paid"
	InvoiceEstadoCancelled InvoiceEstado = "Cancelled"
)

// InvoiceType distinguishes client billing from provider cost invoices.
type InvoiceType string

const (
	InvoiceTypeClient   InvoiceType = "client"
	InvoiceTypeProvider InvoiceType = "provider"
)

// Role names used as notification audiences.
const (
	RoleSupervisor  = "supervisor"
	RolePracticante = "practicante"
	RoleFinanzas    = "finanzas"
	RoleTecnico     = "tecnico"
	RoleAdmin       = "admin"
)

// Trigger-event collections.
const (
	CollectionProjects      = "projects"
	CollectionLogs          = "logs"
	CollectionTimeRecords   = "time-records"
	CollectionInvoices      = "invoices"
	CollectionNotifications = "notifications"
	CollectionPresence      = "presence"
)

// PriorityBaseline is the value a missing priority defaults to before any
// changed-priority comparison.
const PriorityBaseline = "Normal"

// Counter domains.
const (
	CounterDomainProjects      = "projects"
	CounterDomainDeliveryNotes = "delivery-notes"
)
