package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/deploy"
	"github.com/mcpship/mcpship/internal/service/router"
)

type createDeploymentRequest struct {
	UserID       string   `json:"userId"`
	ArtifactID   string   `json:"artifactId"`
	TargetType   string   `json:"targetType"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	IsPrivate    bool     `json:"isPrivate"`
	Tools        []string `json:"tools"`
	Devcontainer bool     `json:"devcontainer"`
}

func (r *Router) handleCreateDeployment(w http.ResponseWriter, req *http.Request) {
	var body createDeploymentRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.UserID == "" || body.ArtifactID == "" {
		writeError(w, http.StatusBadRequest, "userId and artifactId are required")
		return
	}

	result, err := r.routes.Route(req.Context(), body.UserID, body.ArtifactID, router.Options{
		TargetType: body.TargetType,
		Deploy: deploy.Options{
			Name:         body.Name,
			Description:  body.Description,
			IsPrivate:    body.IsPrivate,
			Tools:        body.Tools,
			Devcontainer: body.Devcontainer,
		},
	})
	if err != nil {
		r.writeRouteError(w, err)
		return
	}
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (r *Router) writeRouteError(w http.ResponseWriter, err error) {
	var permErr *domain.PermissionError
	var tierErr *domain.TierRestrictionError
	switch {
	case errors.Is(err, router.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &permErr):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":        permErr.Error(),
			"code":         "QUOTA_EXCEEDED",
			"currentUsage": permErr.CurrentUsage,
			"limit":        permErr.Limit,
			"currentTier":  permErr.CurrentTier,
			"upgradeUrl":   permErr.UpgradeURL,
		})
	case errors.As(err, &tierErr):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":        tierErr.Error(),
			"code":         "TIER_RESTRICTION",
			"currentTier":  tierErr.CurrentTier,
			"requiredTier": tierErr.RequiredTier,
			"targetType":   tierErr.TargetType,
			"upgradeUrl":   tierErr.UpgradeURL,
		})
	default:
		r.logger.Error("deployment routing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "deployment failed")
	}
}

func (r *Router) handleListDeployments(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	records, err := r.deploy.ListDeployments(req.Context(), domain.DeploymentFilter{
		ArtifactID: query.Get("artifactId"),
		TargetType: query.Get("targetType"),
		Status:     query.Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		r.logger.Error("list deployments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list deployments failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deployments": records})
}

func (r *Router) handleGetDeployment(w http.ResponseWriter, req *http.Request) {
	record, err := r.deploy.GetDeployment(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("get deployment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get deployment failed")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (r *Router) handleDeleteDeployment(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	record, err := r.deploy.GetDeployment(req.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("delete deployment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete deployment failed")
		return
	}

	switch record.TargetType {
	case domain.TargetSnippet:
		err = r.deploy.DeleteSnippetDeployment(req.Context(), id)
	default:
		err = r.deploy.DeleteRepoDeployment(req.Context(), id)
	}
	if err != nil {
		r.logger.Error("delete deployment failed", "deployment_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "external resource delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retryRequest struct {
	NewName    string `json:"newName"`
	ForceRetry bool   `json:"forceRetry"`
}

func (r *Router) handleRetryDeployment(w http.ResponseWriter, req *http.Request) {
	var body retryRequest
	if !decodeBody(w, req, &body) {
		return
	}
	result, err := r.deploy.RetryDeployment(req.Context(), req.PathValue("id"), body.NewName, body.ForceRetry)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("retry deployment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (r *Router) handleUpdateSnippet(w http.ResponseWriter, req *http.Request) {
	result, err := r.deploy.UpdateSnippetDeployment(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("update snippet failed", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (r *Router) handleCanRollback(w http.ResponseWriter, req *http.Request) {
	ok, err := r.rollback.CanRollback(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("rollback preflight failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rollback preflight failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canRollback": ok})
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleRollback(w http.ResponseWriter, req *http.Request) {
	var body rollbackRequest
	if !decodeBody(w, req, &body) {
		return
	}
	result, err := r.rollback.Rollback(req.Context(), req.PathValue("id"), body.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		r.logger.Error("rollback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rollback failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleCheckPermission(w http.ResponseWriter, req *http.Request) {
	permission, err := r.routes.CheckDeploymentPermission(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, router.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		r.logger.Error("permission check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "permission check failed")
		return
	}
	writeJSON(w, http.StatusOK, permission)
}
