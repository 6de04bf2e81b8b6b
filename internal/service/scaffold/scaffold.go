// Package scaffold synthesizes the supporting files a published project
// needs but the artifact store does not produce: ignore rules, a CI
// workflow, a devcontainer, and the single-file bundle used for snippet
// targets.
package scaffold

import (
	"fmt"
	"strings"

	"github.com/mcpship/mcpship/internal/domain"
)

const (
	gitignorePath    = ".gitignore"
	workflowPath     = ".github/workflows/ci.yml"
	devcontainerPath = ".devcontainer/devcontainer.json"
)

const gitignoreContent = `node_modules/
dist/
build/
__pycache__/
*.pyc
.env
.env.*
*.log
.DS_Store
`

const workflowContent = `name: ci

on:
  push:
    branches: [main]
  pull_request:

jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: actions/setup-node@v4
        with:
          node-version: "20"
      - run: npm install
      - run: npm test --if-present
`

// Options controls scaffolding output.
type Options struct {
	ProjectName  string
	Devcontainer bool
}

// Augment appends the generated scaffolding files to a project file set.
// Paths already present in the artifact win; scaffolding never overwrites.
func Augment(files []domain.DeploymentFile, opts Options) []domain.DeploymentFile {
	present := make(map[string]bool, len(files))
	for _, file := range files {
		present[file.Path] = true
	}

	out := make([]domain.DeploymentFile, len(files), len(files)+3)
	copy(out, files)

	if !present[gitignorePath] {
		out = append(out, domain.DeploymentFile{Path: gitignorePath, Content: gitignoreContent})
	}
	if !present[workflowPath] {
		out = append(out, domain.DeploymentFile{Path: workflowPath, Content: workflowContent})
	}
	if opts.Devcontainer && !present[devcontainerPath] {
		out = append(out, domain.DeploymentFile{Path: devcontainerPath, Content: devcontainerContent(opts.ProjectName)})
	}
	return out
}

func devcontainerContent(name string) string {
	if name == "" {
		name = "mcp-server"
	}
	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  %q: %q,\n", "name", name)
	fmt.Fprintf(&b, "  %q: %q,\n", "image", "mcr.microsoft.com/devcontainers/javascript-node:20")
	fmt.Fprintf(&b, "  %q: %q,\n", "postCreateCommand", "npm install")
	b.WriteString("  \"customizations\": {\n    \"vscode\": {\n      \"extensions\": [\"dbaeumer.vscode-eslint\"]\n    }\n  }\n")
	b.WriteString("}\n")
	return b.String()
}
