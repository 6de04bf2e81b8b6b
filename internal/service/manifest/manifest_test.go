package manifest

import (
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/yaml"
)

func testConfig() Config {
	return Config{
		ServerID:      "weather-api-a1b2c3d4",
		Image:         "localhost:5000/weather-api-a1b2c3d4:latest",
		Namespace:     "mcp-servers",
		Domain:        "mcpship.dev",
		ClusterIssuer: "letsencrypt-prod",
		Env:           map[string]string{"API_KEY": "secret", "REGION": "eu"},
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	first, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first != second {
		t.Fatal("identical configs produced different manifests")
	}
}

func TestGenerateObjectNames(t *testing.T) {
	set, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var deployment appsv1.Deployment
	if err := yaml.Unmarshal([]byte(set.Deployment), &deployment); err != nil {
		t.Fatalf("unmarshal deployment: %v", err)
	}
	var service corev1.Service
	if err := yaml.Unmarshal([]byte(set.Service), &service); err != nil {
		t.Fatalf("unmarshal service: %v", err)
	}
	var ingress networkingv1.Ingress
	if err := yaml.Unmarshal([]byte(set.Ingress), &ingress); err != nil {
		t.Fatalf("unmarshal ingress: %v", err)
	}

	want := "mcp-weather-api-a1b2c3d4"
	for _, got := range []string{deployment.Name, service.Name, ingress.Name} {
		if got != want {
			t.Fatalf("object name = %q, want %q", got, want)
		}
	}
}

func TestGenerateDeploymentDefaults(t *testing.T) {
	set, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var deployment appsv1.Deployment
	if err := yaml.Unmarshal([]byte(set.Deployment), &deployment); err != nil {
		t.Fatalf("unmarshal deployment: %v", err)
	}

	if deployment.Spec.Replicas == nil || *deployment.Spec.Replicas != 1 {
		t.Fatalf("replicas = %v, want 1", deployment.Spec.Replicas)
	}
	container := deployment.Spec.Template.Spec.Containers[0]
	if container.Ports[0].ContainerPort != 3000 {
		t.Fatalf("container port = %d, want 3000", container.Ports[0].ContainerPort)
	}
	if got := container.Resources.Requests.Cpu().String(); got != "100m" {
		t.Fatalf("cpu request = %s, want 100m", got)
	}
	if got := container.Resources.Limits.Memory().String(); got != "256Mi" {
		t.Fatalf("memory limit = %s, want 256Mi", got)
	}
	if container.LivenessProbe.InitialDelaySeconds != 10 || container.LivenessProbe.PeriodSeconds != 30 {
		t.Fatalf("liveness probe timing = %d/%d, want 10/30",
			container.LivenessProbe.InitialDelaySeconds, container.LivenessProbe.PeriodSeconds)
	}
	if container.ReadinessProbe.InitialDelaySeconds != 5 || container.ReadinessProbe.PeriodSeconds != 10 {
		t.Fatalf("readiness probe timing = %d/%d, want 5/10",
			container.ReadinessProbe.InitialDelaySeconds, container.ReadinessProbe.PeriodSeconds)
	}

	// MCP_SERVER_ID and PORT first, caller vars sorted after.
	var names []string
	for _, env := range container.Env {
		names = append(names, env.Name)
	}
	want := []string{"MCP_SERVER_ID", "PORT", "API_KEY", "REGION"}
	if len(names) != len(want) {
		t.Fatalf("env names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("env names = %v, want %v", names, want)
		}
	}
}

func TestGenerateZeroReplicas(t *testing.T) {
	cfg := testConfig()
	zero := int32(0)
	cfg.Replicas = &zero

	set, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var deployment appsv1.Deployment
	if err := yaml.Unmarshal([]byte(set.Deployment), &deployment); err != nil {
		t.Fatalf("unmarshal deployment: %v", err)
	}
	if deployment.Spec.Replicas == nil || *deployment.Spec.Replicas != 0 {
		t.Fatalf("replicas = %v, want 0", deployment.Spec.Replicas)
	}
}

func TestGenerateIngress(t *testing.T) {
	set, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var ingress networkingv1.Ingress
	if err := yaml.Unmarshal([]byte(set.Ingress), &ingress); err != nil {
		t.Fatalf("unmarshal ingress: %v", err)
	}

	wantHost := "weather-api-a1b2c3d4.mcpship.dev"
	if ingress.Spec.Rules[0].Host != wantHost {
		t.Fatalf("host = %q, want %q", ingress.Spec.Rules[0].Host, wantHost)
	}
	if got := ingress.Spec.TLS[0].SecretName; got != "mcp-weather-api-a1b2c3d4-tls" {
		t.Fatalf("tls secret = %q", got)
	}
	if got := ingress.Annotations["cert-manager.io/cluster-issuer"]; got != "letsencrypt-prod" {
		t.Fatalf("cluster issuer annotation = %q", got)
	}
	if got := ingress.Annotations["nginx.ingress.kubernetes.io/proxy-read-timeout"]; got != "300" {
		t.Fatalf("proxy read timeout = %q, want 300", got)
	}
	backend := ingress.Spec.Rules[0].HTTP.Paths[0].Backend.Service
	if backend.Name != "mcp-weather-api-a1b2c3d4" || backend.Port.Number != 80 {
		t.Fatalf("backend = %s:%d, want mcp-weather-api-a1b2c3d4:80", backend.Name, backend.Port.Number)
	}
}

func TestGenerateKustomizationListsAllResources(t *testing.T) {
	set, err := Generate(testConfig())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, resource := range []string{"deployment.yaml", "service.yaml", "ingress.yaml"} {
		if !strings.Contains(set.Kustomization, resource) {
			t.Fatalf("kustomization missing %s:\n%s", resource, set.Kustomization)
		}
	}
}

func TestGenerateRequiresServerIDAndImage(t *testing.T) {
	if _, err := Generate(Config{Image: "img"}); err == nil {
		t.Fatal("expected error without server id")
	}
	if _, err := Generate(Config{ServerID: "id"}); err == nil {
		t.Fatal("expected error without image")
	}
}
