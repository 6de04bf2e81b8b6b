// Package manifest generates the Kubernetes desired state for a hosted MCP
// server. Generation is pure: the same config always yields byte-identical
// YAML, with no clock or random state involved.
package manifest

import (
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

const (
	containerPort = 3000
	servicePort   = 80

	defaultCPURequest    = "100m"
	defaultCPULimit      = "500m"
	defaultMemoryRequest = "128Mi"
	defaultMemoryLimit   = "256Mi"
	defaultHealthPath    = "/health"

	managedByLabel = "app.kubernetes.io/managed-by"
	serverLabel    = "mcpship.dev/server-id"
)

// Config is the input for manifest generation.
type Config struct {
	ServerID      string
	Image         string
	Namespace     string
	Domain        string
	ClusterIssuer string
	// Replicas defaults to 1 when nil; zero is a valid value and means the
	// server is scaled down.
	Replicas      *int32
	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string
	HealthPath    string
	Env           map[string]string
}

// Set holds the rendered YAML documents plus the kustomization that ties
// them together.
type Set struct {
	Deployment    string
	Service       string
	Ingress       string
	Kustomization string
}

// ObjectName returns the canonical name shared by every generated object.
// Other components rely on this exact shape when querying or rolling back.
func ObjectName(serverID string) string {
	return "mcp-" + serverID
}

// TLSSecretName returns the TLS secret the ingress references.
func TLSSecretName(serverID string) string {
	return fmt.Sprintf("mcp-%s-tls", serverID)
}

// Generate renders the Deployment, Service, Ingress and kustomization for a
// hosted server.
func Generate(cfg Config) (Set, error) {
	if cfg.ServerID == "" {
		return Set{}, fmt.Errorf("server id required")
	}
	if cfg.Image == "" {
		return Set{}, fmt.Errorf("image required")
	}
	applyDefaults(&cfg)

	deployment, err := yaml.Marshal(buildDeployment(cfg))
	if err != nil {
		return Set{}, fmt.Errorf("render deployment: %w", err)
	}
	service, err := yaml.Marshal(buildService(cfg))
	if err != nil {
		return Set{}, fmt.Errorf("render service: %w", err)
	}
	ingress, err := yaml.Marshal(buildIngress(cfg))
	if err != nil {
		return Set{}, fmt.Errorf("render ingress: %w", err)
	}
	kustomization, err := yaml.Marshal(buildKustomization())
	if err != nil {
		return Set{}, fmt.Errorf("render kustomization: %w", err)
	}

	return Set{
		Deployment:    string(deployment),
		Service:       string(service),
		Ingress:       string(ingress),
		Kustomization: string(kustomization),
	}, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Replicas == nil {
		one := int32(1)
		cfg.Replicas = &one
	}
	if cfg.CPURequest == "" {
		cfg.CPURequest = defaultCPURequest
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = defaultCPULimit
	}
	if cfg.MemoryRequest == "" {
		cfg.MemoryRequest = defaultMemoryRequest
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = defaultMemoryLimit
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = defaultHealthPath
	}
}

func labels(serverID string) map[string]string {
	return map[string]string{
		"app":          ObjectName(serverID),
		serverLabel:    serverID,
		managedByLabel: "mcpship",
	}
}

func buildDeployment(cfg Config) *appsv1.Deployment {
	name := ObjectName(cfg.ServerID)
	replicas := *cfg.Replicas

	env := []corev1.EnvVar{
		{Name: "MCP_SERVER_ID", Value: cfg.ServerID},
		{Name: "PORT", Value: fmt.Sprintf("%d", containerPort)},
	}
	keys := make([]string, 0, len(cfg.Env))
	for key := range cfg.Env {
		if key == "MCP_SERVER_ID" || key == "PORT" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, corev1.EnvVar{Name: key, Value: cfg.Env[key]})
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels:    labels(cfg.ServerID),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"app": name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels(cfg.ServerID),
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  name,
						Image: cfg.Image,
						Ports: []corev1.ContainerPort{{
							Name:          "http",
							ContainerPort: containerPort,
							Protocol:      corev1.ProtocolTCP,
						}},
						Env: env,
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse(cfg.CPURequest),
								corev1.ResourceMemory: resource.MustParse(cfg.MemoryRequest),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse(cfg.CPULimit),
								corev1.ResourceMemory: resource.MustParse(cfg.MemoryLimit),
							},
						},
						LivenessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								HTTPGet: &corev1.HTTPGetAction{
									Path: cfg.HealthPath,
									Port: intstr.FromInt(containerPort),
								},
							},
							InitialDelaySeconds: 10,
							PeriodSeconds:       30,
						},
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								HTTPGet: &corev1.HTTPGetAction{
									Path: cfg.HealthPath,
									Port: intstr.FromInt(containerPort),
								},
							},
							InitialDelaySeconds: 5,
							PeriodSeconds:       10,
						},
					}},
				},
			},
		},
	}
}

func buildService(cfg Config) *corev1.Service {
	name := ObjectName(cfg.ServerID)
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels:    labels(cfg.ServerID),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{"app": name},
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       servicePort,
				TargetPort: intstr.FromInt(containerPort),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

func buildIngress(cfg Config) *networkingv1.Ingress {
	name := ObjectName(cfg.ServerID)
	host := fmt.Sprintf("%s.%s", cfg.ServerID, cfg.Domain)
	pathType := networkingv1.PathTypePrefix
	ingressClass := "nginx"

	return &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels:    labels(cfg.ServerID),
			Annotations: map[string]string{
				"cert-manager.io/cluster-issuer": cfg.ClusterIssuer,
				// Tool calls can be slow; keep proxies from cutting them off.
				"nginx.ingress.kubernetes.io/proxy-read-timeout": "300",
				"nginx.ingress.kubernetes.io/proxy-send-timeout": "300",
			},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: &ingressClass,
			TLS: []networkingv1.IngressTLS{{
				Hosts:      []string{host},
				SecretName: TLSSecretName(cfg.ServerID),
			}},
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: name,
									Port: networkingv1.ServiceBackendPort{Number: servicePort},
								},
							},
						}},
					},
				},
			}},
		},
	}
}

type kustomization struct {
	APIVersion string   `json:"apiVersion"`
	Kind       string   `json:"kind"`
	Resources  []string `json:"resources"`
}

func buildKustomization() kustomization {
	return kustomization{
		APIVersion: "kustomize.config.k8s.io/v1beta1",
		Kind:       "Kustomization",
		Resources:  []string{"deployment.yaml", "service.yaml", "ingress.yaml"},
	}
}
