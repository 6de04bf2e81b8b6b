package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
)

// dockerClient wraps the Docker SDK for the image operations hosting needs.
type dockerClient struct {
	inner *client.Client
}

func newDockerClient(host string) (*dockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerClient{inner: inner}, nil
}

func (c *dockerClient) Ping(ctx context.Context) error {
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

func (c *dockerClient) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// BuildImage builds dir into an image tagged ref, streaming progress lines to
// onOutput.
func (c *dockerClient) BuildImage(ctx context.Context, dir, ref string, onOutput func(string)) error {
	if dir == "" {
		return fmt.Errorf("build directory cannot be empty")
	}
	if ref == "" {
		return fmt.Errorf("image ref cannot be empty")
	}
	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := c.inner.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{ref},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("docker image build: %w", err)
	}
	defer resp.Body.Close()
	if err := decodeStream(resp.Body, onOutput); err != nil {
		return fmt.Errorf("docker image build: %w", err)
	}
	return nil
}

// PushImage pushes ref to its registry using the given credentials.
func (c *dockerClient) PushImage(ctx context.Context, ref, username, password string, onOutput func(string)) error {
	if ref == "" {
		return fmt.Errorf("image ref cannot be empty")
	}
	auth, err := encodeAuth(ref, username, password)
	if err != nil {
		return err
	}
	body, err := c.inner.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("docker image push: %w", err)
	}
	defer body.Close()
	if err := decodeStream(body, onOutput); err != nil {
		return fmt.Errorf("docker image push: %w", err)
	}
	return nil
}

// RemoveImage deletes the local image. A missing image is not an error.
func (c *dockerClient) RemoveImage(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("image ref cannot be empty")
	}
	_, err := c.inner.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

func encodeAuth(ref, username, password string) (string, error) {
	if username == "" {
		return "", nil
	}
	host := ref
	if i := strings.IndexByte(ref, '/'); i > 0 {
		host = ref[:i]
	}
	payload, err := json.Marshal(registrytypes.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: host,
	})
	if err != nil {
		return "", fmt.Errorf("encode registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// streamMessage is one JSON object from a docker build or push stream.
type streamMessage struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	ID          string `json:"id"`
	Progress    string `json:"progress"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func (m streamMessage) errorMessage() string {
	if msg := strings.TrimSpace(m.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func (m streamMessage) render() string {
	if m.Stream != "" {
		return strings.TrimRight(m.Stream, "\n")
	}
	if m.Status == "" {
		return ""
	}
	parts := make([]string, 0, 3)
	if id := strings.TrimSpace(m.ID); id != "" {
		parts = append(parts, id)
	}
	parts = append(parts, strings.TrimSpace(m.Status))
	if progress := strings.TrimSpace(m.Progress); progress != "" {
		parts = append(parts, progress)
	}
	return strings.Join(parts, " ")
}

// decodeStream drains a docker JSON message stream, surfacing embedded
// errors and forwarding human-readable lines to onOutput.
func decodeStream(r io.Reader, onOutput func(string)) error {
	decoder := json.NewDecoder(r)
	for {
		var msg streamMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode output stream: %w", err)
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			return fmt.Errorf("%s", errMsg)
		}
		if line := msg.render(); line != "" && onOutput != nil {
			onOutput(line)
		}
	}
}
