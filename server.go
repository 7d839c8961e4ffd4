package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/middlewares"
	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/models/reports"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"bitbucket.org/serviconsa/portal_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// PubSubPushMessage is the envelope Google wraps around push deliveries.
type PubSubPushMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// triggerPushHandler receives trigger events over Pub/Sub push delivery.
// Malformed payloads are acked and dropped to avoid retry loops; processor
// errors return non-2xx so Pub/Sub redelivers.
func triggerPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubPushMessage
		logger := config.GetLogger()
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "triggerPushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "triggerPushHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var event config.TriggerEvent
		if err := json.Unmarshal(msg.Message.Data, &event); err != nil {
			config.LogError(logger, "server.go", "triggerPushHandler", "Unmarshal trigger event", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		if event.Collection == "" || event.Action == "" {
			config.LogError(logger, "server.go", "triggerPushHandler", "Invalid trigger event (missing required fields)", event, fmt.Errorf("collection/action required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := event.CorrelationId
		if correlationID == "" {
			correlationID = msg.Message.ID
		}

		// Best-effort cross-instance lock per document. Reliability must not
		// depend on Redis; without the lock we still process, events for the
		// same document just may interleave across instances.
		var lock *redislock.Lock
		lockKey := fmt.Sprintf("lock:%s:%d", event.Collection, event.DocumentId)
		if redisLock != nil {
			lock, err = redisLock.Obtain(c.Request.Context(), lockKey, 30*time.Second, nil)
			if err != nil {
				if !errors.Is(err, redislock.ErrNotObtained) {
					logger.WithFields(logrus.Fields{
						"field":      "triggerPushHandler",
						"collection": event.Collection,
						"document":   event.DocumentId,
						"message_id": msg.Message.ID,
					}).Warn("error obtaining redis lock; proceeding without: " + err.Error())
				}
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":      "triggerPushHandler",
					"collection": event.Collection,
					"document":   event.DocumentId,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := utils.SetUserNameInContext(c.Request.Context(), "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		if err := workflow.ProcessTriggerEvent(ctx, logger, event); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "triggerPushHandler",
				"collection":     event.Collection,
				"document":       event.DocumentId,
				"message_id":     msg.Message.ID,
				"correlation_id": correlationID,
			}).Error("trigger processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func loginHandler() gin.HandlerFunc {
	type loginRequest struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		token, user, err := models.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  gin.H{"id": user.ID, "nombre": user.Nombre, "role": user.Role},
		})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			if utils.IsDuplicateEntry(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func createProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProject
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		project, err := models.CreateProject(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, project)
	}
}

func approveProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		project, err := workflow.ApproveProject(c.Request.Context(), id)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrorRecordNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func rejectProjectHandler() gin.HandlerFunc {
	type rejectRequest struct {
		Motivo string `json:"motivo" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "motivo is required"})
			return
		}
		project, err := workflow.RejectProject(c.Request.Context(), id, req.Motivo)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrorRecordNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func assignTechniciansHandler() gin.HandlerFunc {
	type assignRequest struct {
		TechnicianIds []int `json:"technician_ids" binding:"required,min=1"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req assignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "technician_ids is required"})
			return
		}
		project, err := models.AssignTechnicians(c.Request.Context(), id, req.TechnicianIds)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func attachInvoiceHandler() gin.HandlerFunc {
	type attachRequest struct {
		InvoiceId int `json:"invoice_id" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req attachRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice_id is required"})
			return
		}
		project, err := workflow.AttachInvoiceToProject(c.Request.Context(), id, req.InvoiceId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func createInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoice, err := models.CreateInvoice(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, invoice)
	}
}

func invoiceStateHandler() gin.HandlerFunc {
	type stateRequest struct {
		Estado      models.InvoiceEstado `json:"estado" binding:"required,oneof=Pending Paid Cancelled"`
		PaymentDate *time.Time           `json:"payment_date"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req stateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoice, err := models.SetInvoiceEstado(c.Request.Context(), id, req.Estado, req.PaymentDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func createLogEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLogEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry, err := models.CreateLogEntry(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func createTimeRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTimeRecord
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := models.CreateTimeRecord(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func presenceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status models.PresenceStatus
		if err := c.ShouldBindJSON(&status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if status.UserId == 0 {
			if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
				status.UserId = userId
			}
		}
		if err := models.SetPresenceStatus(c.Request.Context(), &status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func markNotificationReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.MarkNotificationRead(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func invoiceReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reports.WriteInvoiceLedgerExcel(c.Request.Context(), c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}

func pathId(c *gin.Context) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())
	r.POST("/triggers/pubsub", triggerPushHandler())

	authorized := r.Group("/", middlewares.AuthMiddleware())
	authorized.POST("/users", middlewares.RequireRole(models.RoleAdmin), createUserHandler())
	authorized.POST("/projects", middlewares.RequireRole(models.RoleAdmin, models.RoleSupervisor), createProjectHandler())
	authorized.POST("/projects/:id/approve", middlewares.RequireRole(models.RoleAdmin, models.RoleSupervisor), approveProjectHandler())
	authorized.POST("/projects/:id/reject", middlewares.RequireRole(models.RoleAdmin, models.RoleSupervisor), rejectProjectHandler())
	authorized.POST("/projects/:id/technicians", middlewares.RequireRole(models.RoleAdmin, models.RoleSupervisor), assignTechniciansHandler())
	authorized.POST("/projects/:id/invoices", middlewares.RequireRole(models.RoleAdmin, models.RoleFinanzas), attachInvoiceHandler())
	authorized.POST("/invoices", middlewares.RequireRole(models.RoleAdmin, models.RoleFinanzas), createInvoiceHandler())
	authorized.PATCH("/invoices/:id/state", middlewares.RequireRole(models.RoleAdmin, models.RoleFinanzas), invoiceStateHandler())
	authorized.GET("/reports/invoices.xlsx", middlewares.RequireRole(models.RoleAdmin, models.RoleFinanzas), invoiceReportHandler())
	authorized.POST("/logs", createLogEntryHandler())
	authorized.POST("/time-records", createTimeRecordHandler())
	authorized.POST("/presence", presenceHandler())
	authorized.POST("/notifications/:id/read", markNotificationReadHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.Migrate(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Streaming trigger subscriber (alternative to /triggers/pubsub push).
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TRIGGER_SUBSCRIBER_ENABLED")), "true") {
		if err := RunTriggerWorkflow(); err != nil {
			config.LogError(logger, "server.go", "main", "RunTriggerWorkflow", nil, err)
		}
	}

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received; draining")
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "server.go", "main", "ListenAndServe", nil, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
