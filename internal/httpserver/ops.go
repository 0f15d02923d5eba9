package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
)

func (h *handlers) listTasks(c *gin.Context) {
	if !actorFrom(c).Can(auth.PermOpsRead) {
		writeError(c, fmt.Errorf("%w: %s", domain.ErrForbidden, auth.PermOpsRead))
		return
	}
	if h.deps.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("unavailable", "task store not configured"))
		return
	}
	status := domain.TaskStatus(c.DefaultQuery("status", string(domain.TaskDead)))
	switch status {
	case domain.TaskPending, domain.TaskDone, domain.TaskDead:
	default:
		writeError(c, domain.Validationf("unknown task status %q", status))
		return
	}
	tasks, err := h.deps.Tasks.List(c.Request.Context(), status, queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"results": tasks, "count": len(tasks)})
}
