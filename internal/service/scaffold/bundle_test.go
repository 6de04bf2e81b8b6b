package scaffold

import (
	"strings"
	"testing"

	"github.com/mcpship/mcpship/internal/domain"
)

func TestBuildBundleUsesConventionalEntryFile(t *testing.T) {
	files := []domain.DeploymentFile{
		{Path: "src/index.ts", Content: "console.log(\"hi\");\n"},
		{Path: "src/helper.ts", Content: "export const x = 1;\n"},
	}
	bundle, err := BuildBundle(files, BundleOptions{Name: "Weather Server"})
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if bundle.Filename != "weather-server.ts" {
		t.Fatalf("filename = %q, want weather-server.ts", bundle.Filename)
	}
	if !strings.Contains(bundle.Content, "console.log(\"hi\");") {
		t.Fatal("bundle does not contain the entry file's code")
	}
	if strings.Contains(bundle.Content, "export const x") {
		t.Fatal("bundle should use the entry file alone, not concatenate")
	}
}

func TestBuildBundleConcatenatesWithPathMarkers(t *testing.T) {
	files := []domain.DeploymentFile{
		{Path: "lib/b.js", Content: "const b = 2;\n"},
		{Path: "lib/a.js", Content: "const a = 1;\n"},
		{Path: "README.md", Content: "docs\n"},
	}
	bundle, err := BuildBundle(files, BundleOptions{Name: "combo"})
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if !strings.Contains(bundle.Content, "// ===== lib/a.js =====") {
		t.Fatal("missing path marker for lib/a.js")
	}
	if !strings.Contains(bundle.Content, "// ===== lib/b.js =====") {
		t.Fatal("missing path marker for lib/b.js")
	}
	if strings.Contains(bundle.Content, "README.md") {
		t.Fatal("non-source files must not be bundled")
	}
	if strings.Index(bundle.Content, "lib/a.js") > strings.Index(bundle.Content, "lib/b.js") {
		t.Fatal("sources not concatenated in path order")
	}
}

func TestBuildBundleHeaderListsDependenciesAndTools(t *testing.T) {
	files := []domain.DeploymentFile{
		{Path: "index.js", Content: "server();\n"},
		{Path: "package.json", Content: `{"dependencies":{"zod":"^3.0.0","axios":"^1.6.0"}}`},
	}
	bundle, err := BuildBundle(files, BundleOptions{
		Name:        "weather",
		Description: "Weather lookups",
		Tools:       []string{"get_forecast", "get_alerts"},
	})
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	header := bundle.Content[:strings.Index(bundle.Content, "server();")]
	for _, want := range []string{
		"axios@^1.6.0",
		"zod@^3.0.0",
		"Tools: get_forecast, get_alerts",
		"npm install axios zod",
		"node weather.js",
		"License: MIT",
	} {
		if !strings.Contains(header, want) {
			t.Fatalf("header missing %q:\n%s", want, header)
		}
	}
}

func TestBuildBundleDescription(t *testing.T) {
	files := []domain.DeploymentFile{{Path: "index.js", Content: "x\n"}}
	bundle, err := BuildBundle(files, BundleOptions{
		Name:        "weather",
		Description: "Weather lookups",
		Tools:       []string{"get_forecast"},
	})
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	for _, want := range []string{"weather", "Weather lookups", "Tools: get_forecast", "Run: node weather.js"} {
		if !strings.Contains(bundle.Description, want) {
			t.Fatalf("description missing %q: %s", want, bundle.Description)
		}
	}
}

func TestBuildBundleTruncatesDescription(t *testing.T) {
	files := []domain.DeploymentFile{{Path: "index.js", Content: "x\n"}}
	bundle, err := BuildBundle(files, BundleOptions{
		Name:        "weather",
		Description: strings.Repeat("very long description ", 30),
	})
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if len(bundle.Description) > 255 {
		t.Fatalf("description length = %d, want <= 255", len(bundle.Description))
	}
	if !strings.HasSuffix(bundle.Description, "...") {
		t.Fatalf("truncated description should end with ellipsis: %q", bundle.Description)
	}
}

func TestBuildBundleEmptyInputs(t *testing.T) {
	if _, err := BuildBundle(nil, BundleOptions{}); err == nil {
		t.Fatal("expected error for empty file set")
	}
	onlyDocs := []domain.DeploymentFile{{Path: "README.md", Content: "docs"}}
	if _, err := BuildBundle(onlyDocs, BundleOptions{}); err == nil {
		t.Fatal("expected error when no source files exist")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		ext  string
		want string
	}{
		{"Weather Server!", ".ts", "weather-server.ts"},
		{"  spaced  ", ".js", "spaced.js"},
		{"___", ".js", "mcp-server.js"},
		{"ok", "", "ok.js"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.name, tc.ext); got != tc.want {
			t.Fatalf("SanitizeFilename(%q, %q) = %q, want %q", tc.name, tc.ext, got, tc.want)
		}
	}
}

func TestAugmentAddsScaffoldingWithoutOverwriting(t *testing.T) {
	files := []domain.DeploymentFile{
		{Path: "index.js", Content: "x\n"},
		{Path: ".gitignore", Content: "custom\n"},
	}
	out := Augment(files, Options{ProjectName: "weather", Devcontainer: true})

	byPath := map[string]string{}
	for _, file := range out {
		byPath[file.Path] = file.Content
	}
	if byPath[".gitignore"] != "custom\n" {
		t.Fatal("scaffolding overwrote an artifact-provided file")
	}
	if _, ok := byPath[".github/workflows/ci.yml"]; !ok {
		t.Fatal("missing CI workflow")
	}
	if content, ok := byPath[".devcontainer/devcontainer.json"]; !ok || !strings.Contains(content, "weather") {
		t.Fatal("missing or unnamed devcontainer")
	}
	if len(out) != 4 {
		t.Fatalf("augmented set has %d files, want 4", len(out))
	}
}

func TestAugmentSkipsDevcontainerByDefault(t *testing.T) {
	out := Augment([]domain.DeploymentFile{{Path: "index.js", Content: "x"}}, Options{})
	for _, file := range out {
		if file.Path == ".devcontainer/devcontainer.json" {
			t.Fatal("devcontainer added without opt-in")
		}
	}
}
