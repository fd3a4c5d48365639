//go:build integration

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/app"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/tests/testutil"
)

func TestE2ERemoteSchemaWithTestcontainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers e2e in short mode")
	}

	ctx := t.Context()
	endpoint, cleanup := startSchemaServer(ctx, t)
	t.Cleanup(cleanup)

	cfg := app.DefaultConfig()
	cfg.HTTPTimeoutSec = 10
	cfg.HTTPRetries = 2
	cfg.HTTPRetryDelayMs = 100
	service, err := app.NewService(cfg)
	require.NoError(t, err)

	t.Run("single document schema", func(t *testing.T) {
		result, err := service.Validate(ctx, app.ValidateRequest{
			Paths:     []string{testutil.Fixture(t, "pipelines", "invalid.yml")},
			SchemaURI: endpoint + "/pipeline.json",
		})
		require.NoError(t, err)
		require.Len(t, result.Documents, 1)
		assert.Empty(t, result.Documents[0].ResolutionErrors)
		assert.Len(t, result.Documents[0].Diagnostics, 7)
	})

	t.Run("relative references across documents", func(t *testing.T) {
		result, err := service.Validate(ctx, app.ValidateRequest{
			Paths:     []string{testutil.Fixture(t, "pipelines", "modular.yml")},
			SchemaURI: endpoint + "/modular/pipeline.json",
		})
		require.NoError(t, err)
		assert.Empty(t, result.Documents[0].ResolutionErrors)
		assert.Empty(t, result.Documents[0].Diagnostics)
	})

	t.Run("missing schema is reported, not fatal", func(t *testing.T) {
		resolved, err := service.ResolveSchema(ctx, app.ResolveSchemaRequest{URI: endpoint + "/missing.json"})
		require.NoError(t, err)
		require.Len(t, resolved.Errors, 1)
		assert.Contains(t, resolved.Errors[0], "Resource not found")
	})
}

func startSchemaServer(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()
	schemas := testutil.Fixture(t, "schemas")
	req := testcontainers.ContainerRequest{
		Image:        "python:3.12-alpine",
		ExposedPorts: []string{"8081/tcp"},
		Cmd:          []string{"python", "-m", "http.server", "8081", "--directory", "/srv/schemas"},
		Files: []testcontainers.ContainerFile{
			{HostFilePath: filepath.Join(schemas, "pipeline.json"), ContainerFilePath: "/srv/schemas/pipeline.json", FileMode: 0o644},
			{HostFilePath: filepath.Join(schemas, "modular", "pipeline.json"), ContainerFilePath: "/srv/schemas/modular/pipeline.json", FileMode: 0o644},
			{HostFilePath: filepath.Join(schemas, "modular", "steps.json"), ContainerFilePath: "/srv/schemas/modular/steps.json", FileMode: 0o644},
		},
		WaitingFor: wait.ForListeningPort("8081/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8081/tcp")
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())
	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return endpoint, cleanup
}
