package handler

import (
	"net/http"
	"strconv"

	"sgjobs_backend/internal/jobs/service"
	"sgjobs_backend/internal/jobs/transport"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/httpkit"
	"sgjobs_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const (
	msgInvalidRequest = "invalid request"
	qrCodeSize        = 256
)

// Handler handles HTTP requests for jobs
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new jobs handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterDispatcherRoutes registers routes that require a dispatcher token.
func (h *Handler) RegisterDispatcherRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id/audit", h.ListAudit)
	rg.POST("/:id/billable", h.MarkBillable)
	rg.POST("/:id/reproject", h.Reproject)
	rg.POST("/:id/link", h.RotateLink)
	rg.PATCH("/:id/positions/:positionId", h.ClassifyPosition)
	rg.GET("/:id/qr.png", h.QRCode)
}

// RegisterScopedRoutes registers routes open to dispatchers and to the
// installer of the addressed job.
func (h *Handler) RegisterScopedRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetByID)
}

// RegisterInstallerRoutes registers routes that require the job's installer token.
func (h *Handler) RegisterInstallerRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/done", h.MarkDone)
}

// RegisterPublicRoutes registers the magic-link routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/:token", h.GetByToken)
	rg.POST("/:token/uploads", h.CreateUpload)
}

// Create handles POST /api/v1/jobs
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.CreateJob(c.Request.Context(), req, identity.ActorID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

// GetByID handles GET /api/v1/jobs/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetJobByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// ListAudit handles GET /api/v1/jobs/:id/audit
func (h *Handler) ListAudit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListAudit(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": result})
}

// MarkDone handles POST /api/v1/jobs/:id/done
func (h *Handler) MarkDone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req transport.MarkDoneRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
			return
		}
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if httpkit.HandleError(c, h.svc.MarkDone(c.Request.Context(), id, req.Comment, identity.ActorID())) {
		return
	}

	httpkit.OK(c, transport.StatusResponse{Status: "done"})
}

// MarkBillable handles POST /api/v1/jobs/:id/billable
func (h *Handler) MarkBillable(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if httpkit.HandleError(c, h.svc.MarkBillable(c.Request.Context(), id, identity.ActorID())) {
		return
	}

	httpkit.OK(c, transport.StatusResponse{Status: "billable"})
}

// Reproject handles POST /api/v1/jobs/:id/reproject
func (h *Handler) Reproject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	uid, err := h.svc.Reproject(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ReprojectResponse{CalDAVEventUID: uid})
}

// RotateLink handles POST /api/v1/jobs/:id/link
func (h *Handler) RotateLink(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	publicURL, err := h.svc.RotateLink(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"public_job_url": publicURL})
}

// ClassifyPosition handles PATCH /api/v1/jobs/:id/positions/:positionId
func (h *Handler) ClassifyPosition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	positionID, ok := parseID(c, "positionId")
	if !ok {
		return
	}

	var req transport.ClassifyPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	if httpkit.HandleError(c, h.svc.ClassifyPosition(c.Request.Context(), id, positionID, req.WorkType)) {
		return
	}

	c.Status(http.StatusNoContent)
}

// QRCode handles GET /api/v1/jobs/:id/qr.png
func (h *Handler) QRCode(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.svc.GetJobByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	if job.PublicJobURL == "" {
		httpkit.HandleError(c, apperr.NotFound("job has no installer link yet"))
		return
	}

	png, err := qrcode.Encode(job.PublicJobURL, qrcode.Medium, qrCodeSize)
	if httpkit.HandleError(c, err) {
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// GetByToken handles GET /api/v1/jobs/by-token/:token
func (h *Handler) GetByToken(c *gin.Context) {
	result, err := h.svc.GetJobByToken(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}

	c.Header("Cache-Control", "no-store")
	httpkit.OK(c, result)
}

// CreateUpload handles POST /api/v1/jobs/by-token/:token/uploads
func (h *Handler) CreateUpload(c *gin.Context) {
	var req transport.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	result, err := h.svc.CreateUpload(c.Request.Context(), c.Param("token"), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		httpkit.HandleError(c, apperr.BadRequest("invalid "+param))
		return 0, false
	}
	return id, true
}
