package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project is the central entity of the portal. Every dashboard role mutates
// it; the workflow processors react to its update events.
type Project struct {
	ID     int    `gorm:"primary_key" json:"id"`
	NPU    string `gorm:"size:30;uniqueIndex;not null" json:"npu"`
	Nombre string `gorm:"size:255;not null" json:"nombre" binding:"required"`

	ClienteNombre      string `gorm:"size:255" json:"cliente_nombre"`
	ClienteNumericId   int    `gorm:"not null" json:"cliente_numeric_id"`
	ServicioNumericId  int    `gorm:"not null" json:"servicio_numeric_id"`
	ProveedorNombre    string `gorm:"size:255" json:"proveedor_nombre"`
	ProveedorNumericId int    `gorm:"not null" json:"proveedor_numeric_id"`

	Estado        ProjectEstado `gorm:"size:50;not null;default:'Cotización'" json:"estado"`
	EstadoCliente ClienteEstado `gorm:"size:50;not null;default:'Activo'" json:"estado_cliente"`
	Prioridad     string        `gorm:"size:50" json:"prioridad"`

	// Stored as a list though UI policy keeps at most one active element.
	AssignedTechnicianIds []int                    `gorm:"serializer:json;type:json" json:"assigned_technician_ids"`
	TechnicianStatus      map[int]TechnicianStatus `gorm:"serializer:json;type:json" json:"technician_status"`

	ClientQuotedPrice decimal.Decimal `gorm:"type:decimal(20,6)" json:"client_quoted_price"`
	ProviderCost      decimal.Decimal `gorm:"type:decimal(20,6)" json:"provider_cost"`
	BillingPhase      BillingPhase    `gorm:"size:30;not null;default:'None'" json:"billing_phase"`

	ClientInvoiceIds   []int `gorm:"serializer:json;type:json" json:"client_invoice_ids"`
	ProviderInvoiceIds []int `gorm:"serializer:json;type:json" json:"provider_invoice_ids"`

	// Document pointers into the object store. Nil means the field was removed,
	// which is distinct from an empty string.
	CotizacionClienteUrl    *string `gorm:"size:1024" json:"cotizacion_cliente_url,omitempty"`
	OrdenCompraClienteUrl   *string `gorm:"size:1024" json:"orden_compra_cliente_url,omitempty"`
	CotizacionProveedorUrl  *string `gorm:"size:1024" json:"cotizacion_proveedor_url,omitempty"`
	OrdenCompraProveedorUrl *string `gorm:"size:1024" json:"orden_compra_proveedor_url,omitempty"`
	EvidenciaTecnico1Url    *string `gorm:"size:1024" json:"evidencia_tecnico_1_url,omitempty"`
	EvidenciaTecnico2Url    *string `gorm:"size:1024" json:"evidencia_tecnico_2_url,omitempty"`
	FinalDocument1Url       *string `gorm:"size:1024" json:"final_document_1_url,omitempty"`
	FinalDocument2Url       *string `gorm:"size:1024" json:"final_document_2_url,omitempty"`
	ViewerLinkUrl           *string `gorm:"size:1024" json:"viewer_link_url,omitempty"`

	MotivoRechazo *string `gorm:"type:text" json:"motivo_rechazo,omitempty"`

	FechaApertura          time.Time  `gorm:"not null" json:"fecha_apertura"`
	FechaAsignacionTecnico *time.Time `json:"fecha_asignacion_tecnico,omitempty"`
	FechaLimiteInterna     *time.Time `json:"fecha_limite_interna,omitempty"`
	FechaTerminoFase1      *time.Time `json:"fecha_termino_fase_1,omitempty"`
	FechaTerminoFase2      *time.Time `json:"fecha_termino_fase_2,omitempty"`

	// Monotonically non-decreasing outside explicit corrections.
	RecordedHours float64 `gorm:"not null;default:0" json:"recorded_hours"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Nombre             string          `json:"nombre" binding:"required"`
	ClienteNombre      string          `json:"cliente_nombre" binding:"required"`
	ClienteNumericId   int             `json:"cliente_numeric_id" binding:"required"`
	ServicioNumericId  int             `json:"servicio_numeric_id" binding:"required"`
	ProveedorNombre    string          `json:"proveedor_nombre" binding:"required"`
	ProveedorNumericId int             `json:"proveedor_numeric_id" binding:"required"`
	ClientQuotedPrice  decimal.Decimal `json:"client_quoted_price"`
	ProviderCost       decimal.Decimal `json:"provider_cost"`
	FechaLimiteInterna *time.Time      `json:"fecha_limite_interna"`
}

func GetProjectById(ctx context.Context, db *gorm.DB, id int) (*Project, error) {
	var project Project
	err := db.WithContext(ctx).First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &project, nil
}

// CreateProject runs the intake flow: allocates the year-scoped NPU and
// inserts the document in Cotización. Sequence exhaustion or a counter
// conflict that outlives the transaction retry surfaces to the caller.
func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	db := config.GetDB()
	now := time.Now()

	sequence, err := NextSequence(ctx, db, CounterDomainProjects, now.Year())
	if err != nil {
		return nil, err
	}

	project := Project{
		NPU:                FormatNPU(input.ClienteNumericId, input.ServicioNumericId, input.ProveedorNumericId, sequence, now.Year()),
		Nombre:             input.Nombre,
		ClienteNombre:      input.ClienteNombre,
		ClienteNumericId:   input.ClienteNumericId,
		ServicioNumericId:  input.ServicioNumericId,
		ProveedorNombre:    input.ProveedorNombre,
		ProveedorNumericId: input.ProveedorNumericId,
		Estado:             EstadoCotizacion,
		EstadoCliente:      ClienteEstadoActivo,
		Prioridad:          PriorityBaseline,
		BillingPhase:       BillingPhaseNone,
		ClientQuotedPrice:  input.ClientQuotedPrice,
		ProviderCost:       input.ProviderCost,
		FechaApertura:      now,
		FechaLimiteInterna: input.FechaLimiteInterna,
		TechnicianStatus:   map[int]TechnicianStatus{},
	}

	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}

	PublishTrigger(ctx, CollectionProjects, project.ID, config.TriggerActionCreate, nil, &project)
	return &project, nil
}

// SaveProjectUpdate persists the mutated document and publishes the
// before/after pair. Field merges are last-write-wins; there is no
// all-or-nothing semantics here.
func SaveProjectUpdate(ctx context.Context, db *gorm.DB, old *Project, updated *Project) error {
	if err := db.WithContext(ctx).Save(updated).Error; err != nil {
		return err
	}
	PublishTrigger(ctx, CollectionProjects, updated.ID, config.TriggerActionUpdate, old, updated)
	return nil
}

// AssignTechnicians appends technicians to the project's ordered set, marks
// them Unseen and stamps the assignment date. Already-assigned ids are
// ignored.
func AssignTechnicians(ctx context.Context, projectId int, technicianIds []int) (*Project, error) {
	db := config.GetDB()
	project, err := GetProjectById(ctx, db, projectId)
	if err != nil {
		return nil, err
	}

	old := project.Clone()
	now := time.Now()
	changed := false
	for _, id := range technicianIds {
		if project.HasTechnician(id) {
			continue
		}
		project.AssignedTechnicianIds = append(project.AssignedTechnicianIds, id)
		if project.TechnicianStatus == nil {
			project.TechnicianStatus = map[int]TechnicianStatus{}
		}
		project.TechnicianStatus[id] = TechnicianStatusUnseen
		changed = true
	}
	if !changed {
		return project, nil
	}
	project.FechaAsignacionTecnico = &now

	if err := SaveProjectUpdate(ctx, db, old, project); err != nil {
		return nil, err
	}
	return project, nil
}

// SetTechnicianStatus flips one technician's progress marker (e.g. Unseen →
// InProgress when work starts).
func SetTechnicianStatus(ctx context.Context, projectId int, technicianId int, status TechnicianStatus) (*Project, error) {
	db := config.GetDB()
	project, err := GetProjectById(ctx, db, projectId)
	if err != nil {
		return nil, err
	}
	if !project.HasTechnician(technicianId) {
		return nil, errors.New("technician is not assigned to this project")
	}

	old := project.Clone()
	if project.TechnicianStatus == nil {
		project.TechnicianStatus = map[int]TechnicianStatus{}
	}
	project.TechnicianStatus[technicianId] = status

	if err := SaveProjectUpdate(ctx, db, old, project); err != nil {
		return nil, err
	}
	return project, nil
}

// IncrementRecordedHours atomically adds the computed duration to the hour
// accumulator. A missing project is a resolution miss for the caller.
func IncrementRecordedHours(tx *gorm.DB, projectId int, hours float64) error {
	result := tx.Model(&Project{}).
		Where("id = ?", projectId).
		UpdateColumn("recorded_hours", gorm.Expr("recorded_hours + ?", hours))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// ClearEvidenceFields removes the phase evidence pointers from the document.
// Field removal, not empty strings.
func ClearEvidenceFields(tx *gorm.DB, projectId int) error {
	return tx.Model(&Project{}).
		Where("id = ?", projectId).
		Updates(map[string]interface{}{
			"evidencia_tecnico_1_url": nil,
			"evidencia_tecnico_2_url": nil,
		}).Error
}

// Clone deep-copies the document so a before snapshot survives later
// mutation of the original's maps and slices. Pointer fields stay shared:
// updates replace the pointer, never the pointee.
func (p *Project) Clone() *Project {
	clone := *p
	if p.AssignedTechnicianIds != nil {
		clone.AssignedTechnicianIds = append([]int(nil), p.AssignedTechnicianIds...)
	}
	if p.TechnicianStatus != nil {
		clone.TechnicianStatus = make(map[int]TechnicianStatus, len(p.TechnicianStatus))
		for id, status := range p.TechnicianStatus {
			clone.TechnicianStatus[id] = status
		}
	}
	if p.ClientInvoiceIds != nil {
		clone.ClientInvoiceIds = append([]int(nil), p.ClientInvoiceIds...)
	}
	if p.ProviderInvoiceIds != nil {
		clone.ProviderInvoiceIds = append([]int(nil), p.ProviderInvoiceIds...)
	}
	return &clone
}

func (p *Project) HasTechnician(technicianId int) bool {
	for _, id := range p.AssignedTechnicianIds {
		if id == technicianId {
			return true
		}
	}
	return false
}

// PriorityOrBaseline defaults a missing priority before comparisons.
func (p *Project) PriorityOrBaseline() string {
	if p.Prioridad == "" {
		return PriorityBaseline
	}
	return p.Prioridad
}

func (p *Project) ClientInvoiceAttached() bool {
	return len(p.ClientInvoiceIds) > 0
}

func (p *Project) ProviderInvoiceAttached() bool {
	return len(p.ProviderInvoiceIds) > 0
}
