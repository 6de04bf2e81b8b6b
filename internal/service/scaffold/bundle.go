package scaffold

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/mcpship/mcpship/internal/domain"
)

const maxDescriptionLen = 255

// entryCandidates are conventional entry-file paths, most specific first.
var entryCandidates = []string{
	"src/index.ts",
	"src/index.js",
	"index.ts",
	"index.js",
	"src/main.ts",
	"src/main.js",
	"main.ts",
	"main.js",
	"server.ts",
	"server.js",
	"src/main.py",
	"main.py",
}

var sourceExtensions = map[string]bool{
	".js": true, ".ts": true, ".mjs": true, ".cjs": true, ".py": true,
}

// Bundle is the single-file rendition of a multi-file project, ready to be
// published as a snippet.
type Bundle struct {
	Filename    string
	Content     string
	Description string
}

// BundleOptions carries the caller-known facts about the project.
type BundleOptions struct {
	Name        string
	Description string
	Tools       []string
}

// BuildBundle flattens a project into one annotated file. The entry file is
// used verbatim when one exists at a conventional path; otherwise every
// source file is concatenated with path markers so nothing is silently lost.
func BuildBundle(files []domain.DeploymentFile, opts BundleOptions) (Bundle, error) {
	if len(files) == 0 {
		return Bundle{}, fmt.Errorf("bundle: empty file set")
	}

	entry, code := selectEntry(files)
	if entry == "" {
		entry, code = concatSources(files)
		if entry == "" {
			return Bundle{}, fmt.Errorf("bundle: no source files in project")
		}
	}

	deps := parseDependencies(files)
	filename := SanitizeFilename(opts.Name, path.Ext(entry))
	header := docHeader(filename, opts, deps)
	description := buildDescription(filename, opts)

	return Bundle{
		Filename:    filename,
		Content:     header + code,
		Description: description,
	}, nil
}

func selectEntry(files []domain.DeploymentFile) (string, string) {
	byPath := make(map[string]string, len(files))
	for _, file := range files {
		byPath[file.Path] = file.Content
	}
	for _, candidate := range entryCandidates {
		if content, ok := byPath[candidate]; ok {
			return candidate, content
		}
	}
	return "", ""
}

// concatSources joins every source file, each preceded by a path marker in
// the file's own comment syntax.
func concatSources(files []domain.DeploymentFile) (string, string) {
	sources := make([]domain.DeploymentFile, 0, len(files))
	for _, file := range files {
		if sourceExtensions[path.Ext(file.Path)] {
			sources = append(sources, file)
		}
	}
	if len(sources) == 0 {
		return "", ""
	}
	sort.Slice(sources, func(a, b int) bool { return sources[a].Path < sources[b].Path })

	var b strings.Builder
	for i, file := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pathMarker(file.Path))
		b.WriteString(file.Content)
		if !strings.HasSuffix(file.Content, "\n") {
			b.WriteString("\n")
		}
	}
	return sources[0].Path, b.String()
}

func pathMarker(filePath string) string {
	if path.Ext(filePath) == ".py" {
		return fmt.Sprintf("# ===== %s =====\n", filePath)
	}
	return fmt.Sprintf("// ===== %s =====\n", filePath)
}

func parseDependencies(files []domain.DeploymentFile) []string {
	for _, file := range files {
		if path.Base(file.Path) != "package.json" {
			continue
		}
		var pkg struct {
			Dependencies map[string]string `json:"dependencies"`
		}
		if err := json.Unmarshal([]byte(file.Content), &pkg); err != nil {
			return nil
		}
		deps := make([]string, 0, len(pkg.Dependencies))
		for name, version := range pkg.Dependencies {
			deps = append(deps, name+"@"+version)
		}
		sort.Strings(deps)
		return deps
	}
	return nil
}

func docHeader(filename string, opts BundleOptions, deps []string) string {
	comment := "//"
	if strings.HasSuffix(filename, ".py") {
		comment = "#"
	}

	var b strings.Builder
	line := func(text string) {
		if text == "" {
			b.WriteString(comment + "\n")
			return
		}
		b.WriteString(comment + " " + text + "\n")
	}

	line(displayName(opts.Name, filename))
	if opts.Description != "" {
		line(opts.Description)
	}
	line("")
	line("Quick start:")
	for _, cmd := range quickStart(filename, deps) {
		line("  " + cmd)
	}
	if len(deps) > 0 {
		line("")
		line("Dependencies:")
		for _, dep := range deps {
			line("  " + dep)
		}
	}
	if len(opts.Tools) > 0 {
		line("")
		line("Tools: " + strings.Join(opts.Tools, ", "))
	}
	line("")
	line("License: MIT")
	b.WriteString("\n")
	return b.String()
}

func quickStart(filename string, deps []string) []string {
	if strings.HasSuffix(filename, ".py") {
		cmds := []string{}
		if len(deps) > 0 {
			cmds = append(cmds, "pip install "+strings.Join(depNames(deps), " "))
		}
		return append(cmds, "python "+filename)
	}
	cmds := []string{}
	if len(deps) > 0 {
		cmds = append(cmds, "npm install "+strings.Join(depNames(deps), " "))
	}
	return append(cmds, runCommand(filename))
}

func runCommand(filename string) string {
	if strings.HasSuffix(filename, ".py") {
		return "python " + filename
	}
	if strings.HasSuffix(filename, ".ts") {
		return "npx tsx " + filename
	}
	return "node " + filename
}

func depNames(deps []string) []string {
	names := make([]string, len(deps))
	for i, dep := range deps {
		if at := strings.LastIndexByte(dep, '@'); at > 0 {
			names[i] = dep[:at]
		} else {
			names[i] = dep
		}
	}
	return names
}

func displayName(name, filename string) string {
	if name != "" {
		return name
	}
	return strings.TrimSuffix(filename, path.Ext(filename))
}

var filenameInvalid = regexp.MustCompile(`[^a-z0-9-_]+`)

// SanitizeFilename lowercases the name, collapses invalid runs to hyphens
// and applies the entry file's extension.
func SanitizeFilename(name, ext string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = filenameInvalid.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-_")
	if base == "" {
		base = "mcp-server"
	}
	if ext == "" {
		ext = ".js"
	}
	return base + ext
}

// buildDescription produces the snippet description: name, summary, tool
// names and a run command, truncated to the provider's length limit.
func buildDescription(filename string, opts BundleOptions) string {
	parts := []string{displayName(opts.Name, filename)}
	if opts.Description != "" {
		parts = append(parts, opts.Description)
	}
	if len(opts.Tools) > 0 {
		parts = append(parts, "Tools: "+strings.Join(opts.Tools, ", "))
	}
	parts = append(parts, "Run: "+runCommand(filename))
	description := strings.Join(parts, " | ")
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen-3] + "..."
	}
	return description
}
