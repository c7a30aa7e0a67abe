package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/formline/backend/internal/forms"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	tenantContextKey    = "forms_tenant_id"
	defaultTenantHeader = "X-Forms-Tenant"
)

var errMissingFormsService = errors.New("forms service dependency required")

// Dependencies wires the engine into the HTTP surface. Identity and
// tenant resolution happen upstream; the router trusts the tenant
// header injected by that layer.
type Dependencies struct {
	FormsService *forms.Service
	TenantHeader string
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the engine operations.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.FormsService == nil {
		return nil, errMissingFormsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tenantHeader := deps.TenantHeader
	if tenantHeader == "" {
		tenantHeader = defaultTenantHeader
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", tenantHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service:      deps.FormsService,
		tenantHeader: tenantHeader,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)

	scoped := router.Group("/")
	scoped.Use(handler.resolveTenant)
	scoped.POST("/documents", handler.handleCreate)
	scoped.GET("/documents/:id", handler.handleGet)
	scoped.GET("/documents/:id/live", handler.handleGetLive)
	scoped.GET("/documents/:id/lineage", handler.handleLineage)
	scoped.POST("/documents/:id/publish", handler.handlePublish)
	scoped.POST("/documents/:id/retire", handler.handleRetire)
	scoped.PATCH("/documents/:id", handler.handleUpdate)
	scoped.POST("/documents/:id/visibility", handler.handleVisibility)
	scoped.POST("/documents/:id/submissions", handler.handleSubmit)
	scoped.GET("/submissions/:id", handler.handleGetSubmission)

	return router, nil
}

type httpHandler struct {
	service      *forms.Service
	tenantHeader string
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) resolveTenant(c *gin.Context) {
	tenant := strings.TrimSpace(c.GetHeader(h.tenantHeader))
	if tenant == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_tenant"})
		return
	}
	c.Set(tenantContextKey, tenant)
	c.Next()
}

type createDocumentPayload struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Sections       []forms.Section `json:"sections"`
	Recurrence     string          `json:"recurrence"`
	ReminderDays   int             `json:"reminder_days"`
	SuccessMessage string          `json:"success_message"`
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	var request createDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	tenantID, err := forms.NewTenantID(c.GetString(tenantContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_tenant"})
		return
	}

	document, err := h.service.Create(c.Request.Context(), forms.NewDocumentInput{
		TenantID:       tenantID,
		Title:          request.Title,
		Description:    request.Description,
		Sections:       request.Sections,
		Recurrence:     request.Recurrence,
		ReminderDays:   request.ReminderDays,
		SuccessMessage: request.SuccessMessage,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, document)
}

func (h *httpHandler) handleGet(c *gin.Context) {
	document, ok := h.loadDocument(c, h.service.Get)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleGetLive(c *gin.Context) {
	document, ok := h.loadDocument(c, h.service.GetLive)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleLineage(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}
	lineage, err := h.service.ListLineage(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	filtered := lineage[:0]
	for _, document := range lineage {
		if document.TenantID.String() == c.GetString(tenantContextKey) {
			filtered = append(filtered, document)
		}
	}
	if len(filtered) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": filtered})
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}
	if !h.authorizeDocument(c, documentID) {
		return
	}
	document, err := h.service.Publish(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleRetire(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}
	if !h.authorizeDocument(c, documentID) {
		return
	}
	document, err := h.service.Retire(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

type updateDocumentPayload struct {
	Title          *string          `json:"title"`
	Description    *string          `json:"description"`
	Sections       *[]forms.Section `json:"sections"`
	Recurrence     *string          `json:"recurrence"`
	ReminderDays   *int             `json:"reminder_days"`
	SuccessMessage *string          `json:"success_message"`
	Structural     bool             `json:"structural"`
}

func (h *httpHandler) handleUpdate(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}

	var request updateDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.authorizeDocument(c, documentID) {
		return
	}
	document, err := h.service.Update(c.Request.Context(), documentID, forms.DocumentPatch{
		Title:          request.Title,
		Description:    request.Description,
		Sections:       request.Sections,
		Recurrence:     request.Recurrence,
		ReminderDays:   request.ReminderDays,
		SuccessMessage: request.SuccessMessage,
	}, request.Structural)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

type visibilityRequestPayload struct {
	Answers map[string]any `json:"answers"`
}

func (h *httpHandler) handleVisibility(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}

	var request visibilityRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.authorizeDocument(c, documentID) {
		return
	}
	visible, err := h.service.Visibility(c.Request.Context(), documentID, toAnswerSet(request.Answers))
	if err != nil {
		h.respondError(c, err)
		return
	}

	ids := make([]string, 0, len(visible))
	for id := range visible {
		ids = append(ids, id.String())
	}
	c.JSON(http.StatusOK, gin.H{"visible_question_ids": ids})
}

type submissionRequestPayload struct {
	Answers     map[string]any `json:"answers"`
	SubmitterID string         `json:"submitter_id"`
	Draft       bool           `json:"draft"`
}

type submissionResponsePayload struct {
	Accepted     bool                   `json:"accepted"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	Violations   []forms.Violation      `json:"violations,omitempty"`
	Snapshot     *forms.Snapshot        `json:"snapshot,omitempty"`
	Status       forms.SubmissionStatus `json:"status,omitempty"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return
	}

	var request submissionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.authorizeDocument(c, documentID) {
		return
	}
	outcome, err := h.service.Submit(c.Request.Context(), forms.SubmitInput{
		DocumentID:  documentID,
		Answers:     toAnswerSet(request.Answers),
		SubmitterID: request.SubmitterID,
		AsDraft:     request.Draft,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := submissionResponsePayload{
		Accepted:   outcome.Result.OK,
		Violations: outcome.Result.Violations,
	}
	if outcome.Submission != nil {
		response.SubmissionID = outcome.Submission.ID
		response.Snapshot = &outcome.Submission.Snapshot
		response.Status = outcome.Submission.Status
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetSubmission(c *gin.Context) {
	submission, err := h.service.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if submission.TenantID.String() != c.GetString(tenantContextKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             submission.ID,
		"document_id":    submission.DocumentID.String(),
		"snapshot":       submission.Snapshot,
		"answers":        submission.Answers,
		"status":         submission.Status,
		"submitted_at_s": submission.SubmittedAt,
		"submitter_id":   submission.SubmitterID,
	})
}

func (h *httpHandler) pathDocumentID(c *gin.Context) (forms.DocumentID, bool) {
	documentID, err := forms.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return "", false
	}
	return documentID, true
}

func (h *httpHandler) loadDocument(c *gin.Context, load func(ctx context.Context, id forms.DocumentID) (forms.Document, error)) (forms.Document, bool) {
	documentID, ok := h.pathDocumentID(c)
	if !ok {
		return forms.Document{}, false
	}
	document, err := load(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return forms.Document{}, false
	}
	if !h.tenantOwns(c, document) {
		return forms.Document{}, false
	}
	return document, true
}

func (h *httpHandler) authorizeDocument(c *gin.Context, id forms.DocumentID) bool {
	document, err := h.service.GetLive(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return false
	}
	return h.tenantOwns(c, document)
}

func (h *httpHandler) tenantOwns(c *gin.Context, document forms.Document) bool {
	if document.TenantID.String() != c.GetString(tenantContextKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return false
	}
	return true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, forms.ErrNotFound), errors.Is(err, forms.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, forms.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "version_conflict"})
	case errors.Is(err, forms.ErrCyclicLogic):
		c.JSON(http.StatusConflict, gin.H{"error": "cyclic_logic"})
	case errors.Is(err, forms.ErrNotPublished):
		c.JSON(http.StatusConflict, gin.H{"error": "not_published"})
	case errors.Is(err, forms.ErrInvalidDocument), errors.Is(err, forms.ErrInvalidQuestion),
		errors.Is(err, forms.ErrInvalidCondition), errors.Is(err, forms.ErrInvalidTenantID),
		errors.Is(err, forms.ErrInvalidDocumentID), errors.Is(err, forms.ErrInvalidQuestionID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document", "detail": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func toAnswerSet(raw map[string]any) forms.AnswerSet {
	answers := make(forms.AnswerSet, len(raw))
	for key, value := range raw {
		answers[forms.QuestionID(key)] = value
	}
	return answers
}
