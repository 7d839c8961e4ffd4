package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notice is one planned notification batch: either role-group audiences,
// individual technician ids, or both.
type Notice struct {
	Roles   []string
	UserIds []int
	Text    string
}

// PlanProjectNotices evaluates the before/after snapshots and returns the
// notices this update fires. Every condition is edge-triggered on the
// transition, so an update that leaves a field unchanged plans nothing for
// that condition.
func PlanProjectNotices(old *models.Project, updated *models.Project) []Notice {
	var notices []Notice

	// Cotización → Activo: ready for technician assignment.
	if old.Estado == models.EstadoCotizacion && updated.Estado == models.EstadoActivo {
		notices = append(notices, Notice{
			Roles: []string{models.RoleSupervisor},
			Text:  fmt.Sprintf("Proyecto %s aprobado: listo para asignar técnico.", updated.NPU),
		})
	}

	// Newly assigned technicians (set difference after − before), one notice
	// per technician, fired exactly once.
	if added := addedTechnicians(old.AssignedTechnicianIds, updated.AssignedTechnicianIds); len(added) > 0 {
		notices = append(notices, Notice{
			UserIds: added,
			Text:    fmt.Sprintf("Nueva tarea asignada: proyecto %s.", updated.NPU),
		})
	}

	// Priority change, defaulting a missing value before comparing.
	if old.PriorityOrBaseline() != updated.PriorityOrBaseline() && len(updated.AssignedTechnicianIds) > 0 {
		notices = append(notices, Notice{
			UserIds: append([]int(nil), updated.AssignedTechnicianIds...),
			Text:    fmt.Sprintf("La prioridad del proyecto %s cambió a %s.", updated.NPU, updated.PriorityOrBaseline()),
		})
	}

	// First technician to start in this update batch. The loop break keeps
	// it to a single supervisor notice even when several technicians start
	// simultaneously.
	for _, id := range updated.AssignedTechnicianIds {
		if updated.TechnicianStatus[id] == models.TechnicianStatusInProgress &&
			old.TechnicianStatus[id] != models.TechnicianStatusInProgress {
			notices = append(notices, Notice{
				Roles: []string{models.RoleSupervisor},
				Text:  fmt.Sprintf("Un técnico comenzó a trabajar en el proyecto %s.", updated.NPU),
			})
			break
		}
	}

	if old.Estado != updated.Estado {
		switch updated.Estado {
		case models.EstadoTerminadoInterno:
			notices = append(notices, Notice{
				Roles: []string{models.RoleSupervisor, models.RolePracticante},
				Text:  fmt.Sprintf("Proyecto %s terminado internamente: pendiente de documentación.", updated.NPU),
			})
		case models.EstadoPendienteDeFactura:
			notices = append(notices, Notice{
				Roles: []string{models.RoleFinanzas},
				Text:  fmt.Sprintf("Proyecto %s pendiente de factura.", updated.NPU),
			})
		case models.EstadoFacturado:
			notices = append(notices, Notice{
				Roles: []string{models.RoleSupervisor, models.RoleFinanzas},
				Text:  fmt.Sprintf("Proyecto %s facturado.", updated.NPU),
			})
		}
	}

	return notices
}

func addedTechnicians(before []int, after []int) []int {
	seen := make(map[int]bool, len(before))
	for _, id := range before {
		seen[id] = true
	}
	var added []int
	for _, id := range after {
		if !seen[id] {
			added = append(added, id)
			seen[id] = true
		}
	}
	return added
}

// ProcessLogCreated notifies the supervisor role group about a new log
// entry. A missing owning project short-circuits silently.
func ProcessLogCreated(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, gw MessagingGateway, entry *models.LogEntry) error {
	project, err := models.GetProjectById(ctx, tx, entry.ProjectId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			config.LogSkip(logger, "notificationFanout.go", "ProcessLogCreated", "project not found for log entry", entry.ProjectId)
			return nil
		}
		return err
	}

	text := fmt.Sprintf("Nueva nota de %s en el proyecto %s.", entry.AutorNombre, project.NPU)
	sendToRoles(ctx, tx, logger, gw, []string{models.RoleSupervisor}, project.ID, text)
	return nil
}

// SendProjectNotices resolves and delivers every planned notice. Each
// resolution miss or delivery failure is logged and skipped.
func SendProjectNotices(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, gw MessagingGateway, project *models.Project, notices []Notice) {
	for _, notice := range notices {
		if len(notice.Roles) > 0 {
			sendToRoles(ctx, tx, logger, gw, notice.Roles, project.ID, notice.Text)
		}
		for _, userId := range notice.UserIds {
			user, err := models.GetUserById(ctx, tx, userId)
			if err != nil {
				config.LogSkip(logger, "notificationFanout.go", "SendProjectNotices", "user not found", userId)
				continue
			}
			sendToUser(ctx, tx, logger, gw, user, project.ID, notice.Text)
		}
	}
}

func sendToRoles(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, gw MessagingGateway, roles []string, projectId int, text string) {
	for _, role := range roles {
		users, err := models.GetUsersByRole(ctx, tx, role)
		if err != nil {
			config.LogError(logger, "notificationFanout.go", "sendToRoles", "GetUsersByRole", role, err)
			continue
		}
		for _, user := range users {
			sendToUser(ctx, tx, logger, gw, user, projectId, text)
		}
	}
}

func sendToUser(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, gw MessagingGateway, user *models.User, projectId int, text string) {
	notification := models.Notification{
		UserId:    user.ID,
		ProjectId: &projectId,
		Mensaje:   text,
	}
	if err := models.CreateNotification(tx, &notification); err != nil {
		config.LogError(logger, "notificationFanout.go", "sendToUser", "CreateNotification", user.ID, err)
	}

	deliverToUser(ctx, logger, gw, user, text)
}

// deliverToUser runs the email → handle → direct-message ladder. Every miss
// is a logged skip; a chat message is a best-effort extra on top of the
// in-app notification row.
func deliverToUser(ctx context.Context, logger *logrus.Logger, gw MessagingGateway, user *models.User, text string) {
	if user.Email == "" {
		config.LogSkip(logger, "notificationFanout.go", "deliverToUser", "user has no email", user.ID)
		return
	}

	handle, err := gw.LookupHandle(ctx, user.Email)
	if err != nil {
		if errors.Is(err, utils.ErrorHandleNotFound) {
			config.LogSkip(logger, "notificationFanout.go", "deliverToUser", "no messaging handle for email", user.Email)
		} else {
			config.LogError(logger, "notificationFanout.go", "deliverToUser", "LookupHandle", user.Email, err)
		}
		return
	}

	if err := gw.SendDirectMessage(ctx, handle, text); err != nil {
		config.LogError(logger, "notificationFanout.go", "deliverToUser", "SendDirectMessage", handle, err)
	}
}
