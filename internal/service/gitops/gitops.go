// Package gitops maintains the desired-state repository that the cluster
// reconciler watches. Every hosted server owns a servers/{id}/ directory of
// manifests; publishing and removal are single commits.
package gitops

import (
	"context"
	"path"

	"github.com/mcpship/mcpship/internal/service/manifest"
)

// Manifest file names inside a server directory.
const (
	fileDeployment    = "deployment.yaml"
	fileService       = "service.yaml"
	fileIngress       = "ingress.yaml"
	fileKustomization = "kustomization.yaml"
)

// Committer publishes and removes a server's desired state. Each call is one
// commit on the state branch.
type Committer interface {
	PublishServer(ctx context.Context, serverID string, set manifest.Set) (string, error)
	RemoveServer(ctx context.Context, serverID string) (string, error)
}

// ServerDir returns the repository path holding a server's manifests.
func ServerDir(serverID string) string {
	return path.Join("servers", serverID)
}

func serverFiles(serverID string, set manifest.Set) map[string]string {
	dir := ServerDir(serverID)
	return map[string]string{
		path.Join(dir, fileDeployment):    set.Deployment,
		path.Join(dir, fileService):       set.Service,
		path.Join(dir, fileIngress):       set.Ingress,
		path.Join(dir, fileKustomization): set.Kustomization,
	}
}

func publishMessage(serverID string) string {
	return "deploy: update manifests for " + serverID
}

func removeMessage(serverID string) string {
	return "deploy: remove manifests for " + serverID
}
