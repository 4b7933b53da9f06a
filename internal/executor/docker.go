package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerConfig holds sandbox settings for the Docker runner.
type DockerConfig struct {
	Image      string
	MemoryMB   int
	CPULimit   float64
	NetworkOff bool
}

func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:      "python:3.12-alpine",
		MemoryMB:   128,
		CPULimit:   0.5,
		NetworkOff: true,
	}
}

// DockerRunner executes each snippet in a throwaway container: create,
// copy the script in, exec the interpreter, destroy. Network stays off
// and memory/CPU are capped by the host config.
type DockerRunner struct {
	client *client.Client
	cfg    DockerConfig
}

func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	if cfg.Image == "" {
		cfg = DefaultDockerConfig()
	}

	r := &DockerRunner{client: cli, cfg: cfg}
	if err := r.ensureImage(context.Background()); err != nil {
		cli.Close()
		return nil, err
	}
	return r, nil
}

func (r *DockerRunner) RunSnippet(ctx context.Context, source string) (string, string, error) {
	containerCfg := &container.Config{
		Image:           r.cfg.Image,
		Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
		WorkingDir:      "/workspace",
		NetworkDisabled: r.cfg.NetworkOff,
		Tty:             false,
		Labels: map[string]string{
			"drillbench.sandbox": "true",
		},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(r.cfg.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(r.cfg.CPULimit * 1e9),
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", "", fmt.Errorf("create container: %w", err)
	}
	defer func() {
		// Best-effort teardown with a fresh context so a hit deadline
		// never leaks the container.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(cleanupCtx, resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", "", fmt.Errorf("start container: %w", err)
	}

	if err := r.copyScript(ctx, resp.ID, source); err != nil {
		return "", "", err
	}

	execResp, err := r.client.ContainerExecCreate(ctx, resp.ID, container.ExecOptions{
		Cmd:          []string{"python3", "-u", "/workspace/main.py"},
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("create exec: %w", err)
	}

	attachResp, err := r.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	var outBuf bytes.Buffer
	if _, err := io.Copy(&outBuf, attachResp.Reader); err != nil && ctx.Err() == context.DeadlineExceeded {
		return "", "", ErrTimedOut
	}
	if ctx.Err() == context.DeadlineExceeded {
		return "", "", ErrTimedOut
	}

	stdout, stderr := demuxOutput(outBuf.Bytes())
	return stdout, stderr, nil
}

func (r *DockerRunner) copyScript(ctx context.Context, containerID, source string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{
		Name: "main.py",
		Mode: 0o644,
		Size: int64(len(source)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write([]byte(source)); err != nil {
		return fmt.Errorf("write tar content: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	if err := r.client.CopyToContainer(ctx, containerID, "/workspace", &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy script: %w", err)
	}
	return nil
}

func (r *DockerRunner) ensureImage(ctx context.Context) error {
	if _, err := r.client.ImageInspect(ctx, r.cfg.Image); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, r.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", r.cfg.Image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// demuxOutput separates Docker multiplexed stdout/stderr streams.
// The stream protocol uses 8-byte headers: [type][0][0][0][size x4],
// type 1=stdout, 2=stderr.
func demuxOutput(data []byte) (stdout, stderr string) {
	var outBuf, errBuf strings.Builder

	for len(data) >= 8 {
		streamType := data[0]
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]

		if size > len(data) {
			size = len(data)
		}

		chunk := string(data[:size])
		data = data[size:]

		switch streamType {
		case 1:
			outBuf.WriteString(chunk)
		case 2:
			errBuf.WriteString(chunk)
		}
	}

	if outBuf.Len() == 0 && errBuf.Len() == 0 && len(data) > 0 {
		return string(data), ""
	}

	return outBuf.String(), errBuf.String()
}
