package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"

	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
)

const problemContentType = "application/problem+json"

var kindStatus = map[workflow.Kind]int{
	workflow.KindNotFound:          http.StatusNotFound,
	workflow.KindInvalidTransition: http.StatusConflict,
	workflow.KindConflict:          http.StatusConflict,
	workflow.KindUnauthorized:      http.StatusForbidden,
	workflow.KindValidation:        http.StatusBadRequest,
	workflow.KindUnavailable:       http.StatusServiceUnavailable,
}

func writeProblem(c *gin.Context, status int, problemType, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(problemType).
		WithDetail(detail)

	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(status, problem)
}

func badRequest(c *gin.Context, err error) {
	detail := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		detail = verrs[0].Field() + " failed " + verrs[0].Tag()
		if p := verrs[0].Param(); p != "" {
			detail += "=" + p
		}
	}
	writeProblem(c, http.StatusBadRequest, string(workflow.KindValidation), detail)
}

// handleEngineError maps an engine error kind to a problem document.
// Errors without a kind are internal and their detail is not exposed.
func (h *Handlers) handleEngineError(c *gin.Context, err error) {
	kind := workflow.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		h.logger.Error("Unexpected error", "path", c.Request.URL.Path, "error", err)
		writeProblem(c, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "kind", kind, "error", err)
	}
	writeProblem(c, status, string(kind), err.Error())
}
