package resumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resumes-api/internal/shared/server/middleware"
	"resumes-api/internal/shared/server/respond"
	"resumes-api/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc             *Service
	MaxPayloadBytes int
	StoreTimeout    time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxPayloadBytes int, storeTimeout time.Duration) *Handler {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Handler{Svc: svc, MaxPayloadBytes: maxPayloadBytes, StoreTimeout: storeTimeout}
}

// RegisterRoutes attaches the resume routes. They are the only routes served.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/resumes", h.list)
	r.POST("/resumes", h.create)
	r.GET("/resumes/:resumeId", h.get)
	r.PUT("/resumes/:resumeId", h.replace)
	r.DELETE("/resumes/:resumeId", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	list, err := h.Svc.List(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toResponses(list))
}

func (h *Handler) create(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	in, err := ParsePayload(body, "", h.MaxPayloadBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if in.ID != "" {
		c.Set("resumeId", in.ID)
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	resume, err := h.Svc.Create(ctx, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set("resumeId", resume.ID)
	c.Header("Location", "/resumes/"+resume.ID)
	c.Header("ETag", etag(resume.Version))
	respond.Created(c, toResponse(resume))
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("resumeId")
	c.Set("resumeId", id)
	if !ValidID(id) {
		h.writeError(c, fmt.Errorf("%w: %s", ErrNotFound, id))
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	resume, err := h.Svc.Get(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("ETag", etag(resume.Version))
	respond.OK(c, toResponse(resume))
}

func (h *Handler) replace(c *gin.Context) {
	id := c.Param("resumeId")
	c.Set("resumeId", id)
	if !ValidID(id) {
		h.writeError(c, fmt.Errorf("%w: %s", ErrNotFound, id))
		return
	}

	expected, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	body, err := h.readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	in, err := ParsePayload(body, id, h.MaxPayloadBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	resume, err := h.Svc.Replace(ctx, id, in, expected)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("ETag", etag(resume.Version))
	respond.OK(c, toResponse(resume))
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("resumeId")
	c.Set("resumeId", id)
	if !ValidID(id) {
		h.writeError(c, fmt.Errorf("%w: %s", ErrNotFound, id))
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	if err := h.Svc.Delete(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	respond.NoContent(c)
}

// storeContext detaches store calls from client cancellation: a write that has
// reached the store finishes even if the caller hangs up.
func (h *Handler) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.StoreTimeout)
}

// readBody reads at most one byte past the limit so ParsePayload can reject
// oversized bodies without buffering them whole.
func (h *Handler) readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(h.MaxPayloadBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read request body", ErrInvalidPayload)
	}
	return body, nil
}

// parseIfMatch turns an If-Match header into an expected version. An absent
// header or "*" means any existing version.
func parseIfMatch(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	unquoted, err := strconv.Unquote(raw)
	if err != nil {
		unquoted = raw
	}
	version, err := strconv.ParseInt(unquoted, 10, 64)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("%w: If-Match must be a resume version such as \"3\"", ErrInvalidPayload)
	}
	return version, nil
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		respond.Error(c, http.StatusBadRequest, respond.KindInvalidPayload, err.Error())
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.KindNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, respond.KindConflict, err.Error())
	case errors.Is(err, ErrIdentifierExhausted):
		respond.Error(c, http.StatusServiceUnavailable, respond.KindIdentifierExhausted, "could not allocate a unique resume id, retry later")
	case errors.Is(err, ErrStoreUnavailable):
		logCause(c, err)
		respond.Error(c, http.StatusServiceUnavailable, respond.KindStoreUnavailable, "record store unavailable, retry later")
	default:
		logCause(c, err)
		respond.Error(c, http.StatusInternalServerError, respond.KindInternal, "unexpected server error")
	}
}

func logCause(c *gin.Context, err error) {
	telemetry.Error("resume.operation_failed", map[string]any{
		"request_id": middleware.RequestIDFromContext(c),
		"resume_id":  c.GetString("resumeId"),
		"error":      err.Error(),
	})
}
