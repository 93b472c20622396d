package detect

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/wardenlabs/warden/internal/models"
)

// Image name substrings that count as evidence for a platform when the
// server runs containerized next to this service.
var containerImageHints = map[string][]string{
	models.PlatformNginx:  {"nginx"},
	models.PlatformApache: {"httpd", "apache"},
	models.PlatformCaddy:  {"caddy"},
}

// probeContainers asks a local Docker daemon for running containers and
// matches their image names against known server images. No daemon, or any
// API error, degrades to a negative result.
func probeContainers(ctx context.Context, d *Detector) ProbeResult {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if d.env.DockerHost != "" {
		opts = append(opts, client.WithHost(d.env.DockerHost))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return ProbeResult{Detected: false, Error: err.Error()}
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return ProbeResult{Detected: false, Error: err.Error()}
	}

	values := map[string]string{}
	any := false
	for platform, hints := range containerImageHints {
		found := false
		for _, c := range containers {
			image := strings.ToLower(c.Image)
			for _, hint := range hints {
				if strings.Contains(image, hint) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if found {
			any = true
		}
		values[platform] = boolString(found)
	}

	return ProbeResult{Detected: any, Values: values}
}
