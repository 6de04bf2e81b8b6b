package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/repository"
)

type deployServerRequest struct {
	ArtifactID string `json:"artifactId"`
}

func (r *Router) handleDeployServer(w http.ResponseWriter, req *http.Request) {
	var body deployServerRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.ArtifactID == "" {
		writeError(w, http.StatusBadRequest, "artifactId is required")
		return
	}
	result, err := r.hosting.DeployToCloud(req.Context(), body.ArtifactID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no deployment found for artifact")
			return
		}
		r.logger.Error("server deploy failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server deploy failed")
		return
	}
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (r *Router) handleListServers(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	servers, err := r.hosting.ListServers(req.Context(), limit, offset)
	if err != nil {
		r.logger.Error("list servers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list servers failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	server, err := r.hosting.GetServer(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		r.logger.Error("get server failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get server failed")
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (r *Router) handleStopServer(w http.ResponseWriter, req *http.Request) {
	r.lifecycle(w, req, "stop", r.hosting.StopServer)
}

func (r *Router) handleStartServer(w http.ResponseWriter, req *http.Request) {
	r.lifecycle(w, req, "start", r.hosting.StartServer)
}

func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	r.lifecycle(w, req, "delete", r.hosting.DeleteServer)
}

func (r *Router) lifecycle(w http.ResponseWriter, req *http.Request, name string, op func(context.Context, string) (*domain.HostingResult, error)) {
	result, err := op(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		r.logger.Error("server lifecycle operation failed", "op", name, "error", err)
		writeError(w, http.StatusInternalServerError, "server "+name+" failed")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (r *Router) handleTrackRequest(w http.ResponseWriter, req *http.Request) {
	if err := r.hosting.TrackRequest(req.Context(), req.PathValue("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		r.logger.Error("track request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "track request failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
