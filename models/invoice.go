package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"github.com/shopspring/decimal"
)

// Invoice is a client or provider invoice, attached to one project or kept
// as a general (project-less) document.
type Invoice struct {
	ID        int         `gorm:"primary_key" json:"id"`
	Type      InvoiceType `gorm:"size:20;not null" json:"type"`
	ProjectId *int        `gorm:"index" json:"project_id,omitempty"` // nil = "general"
	Folio     string      `gorm:"size:100;not null" json:"folio" binding:"required"`

	Amount    decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount"`
	IssueDate time.Time       `gorm:"not null" json:"issue_date"`

	Estado              InvoiceEstado `gorm:"size:20;not null;default:'Pending'" json:"estado"`
	PromisedPaymentDate *time.Time    `json:"promised_payment_date,omitempty"`
	ActualPaymentDate   *time.Time    `json:"actual_payment_date,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	Type                InvoiceType     `json:"type" binding:"required,oneof=client provider"`
	ProjectId           *int            `json:"project_id"`
	Folio               string          `json:"folio" binding:"required"`
	Amount              decimal.Decimal `json:"amount"`
	IssueDate           time.Time       `json:"issue_date" binding:"required"`
	PromisedPaymentDate *time.Time      `json:"promised_payment_date"`
}

var ErrorInvoiceCancelled = errors.New("a cancelled invoice is terminal")

func GetInvoiceById(ctx context.Context, id int) (*Invoice, error) {
	db := config.GetDB()
	var invoice Invoice
	if err := db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	db := config.GetDB()

	invoice := Invoice{
		Type:                input.Type,
		ProjectId:           input.ProjectId,
		Folio:               input.Folio,
		Amount:              input.Amount,
		IssueDate:           input.IssueDate,
		Estado:              InvoiceEstadoPending,
		PromisedPaymentDate: input.PromisedPaymentDate,
	}
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}

	PublishTrigger(ctx, CollectionInvoices, invoice.ID, config.TriggerActionCreate, nil, &invoice)
	return &invoice, nil
}

// SetInvoiceEstado applies the invoice state machine:
// Pending→Paid sets the payment date, Paid→Pending clears it, any→Cancelled
// is terminal and reverses the owning project's invoice-attached flag.
func SetInvoiceEstado(ctx context.Context, id int, estado InvoiceEstado, paymentDate *time.Time) (*Invoice, error) {
	db := config.GetDB()

	invoice, err := GetInvoiceById(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Estado == InvoiceEstadoCancelled {
		return nil, ErrorInvoiceCancelled
	}

	old := *invoice
	switch estado {
	case InvoiceEstadoPaid:
		invoice.Estado = InvoiceEstadoPaid
		if paymentDate == nil {
			now := time.Now()
			paymentDate = &now
		}
		invoice.ActualPaymentDate = paymentDate
	case InvoiceEstadoPending:
		invoice.Estado = InvoiceEstadoPending
		invoice.ActualPaymentDate = nil
	case InvoiceEstadoCancelled:
		invoice.Estado = InvoiceEstadoCancelled
	default:
		return nil, errors.New("unknown invoice state")
	}

	if err := db.WithContext(ctx).Save(invoice).Error; err != nil {
		return nil, err
	}

	if invoice.Estado == InvoiceEstadoCancelled && invoice.ProjectId != nil {
		if err := detachInvoiceFromProject(ctx, invoice); err != nil {
			config.LogError(config.GetLogger(), "invoice.go", "SetInvoiceEstado", "detachInvoiceFromProject", invoice.ID, err)
		}
	}

	PublishTrigger(ctx, CollectionInvoices, invoice.ID, config.TriggerActionUpdate, &old, invoice)
	return invoice, nil
}

func detachInvoiceFromProject(ctx context.Context, invoice *Invoice) error {
	db := config.GetDB()
	project, err := GetProjectById(ctx, db, *invoice.ProjectId)
	if err != nil {
		return err
	}

	old := project.Clone()
	if invoice.Type == InvoiceTypeClient {
		project.ClientInvoiceIds = removeId(project.ClientInvoiceIds, invoice.ID)
	} else {
		project.ProviderInvoiceIds = removeId(project.ProviderInvoiceIds, invoice.ID)
	}
	return SaveProjectUpdate(ctx, db, old, project)
}

// removeId allocates a fresh slice; compacting in place would overwrite the
// backing array a before snapshot still points at.
func removeId(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func ListInvoices(ctx context.Context) ([]*Invoice, error) {
	db := config.GetDB()
	var invoices []*Invoice
	if err := db.WithContext(ctx).Order("issue_date").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}
