package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func serverTestApp() *cli.App {
	return &cli.App{
		Name: "veritax",
		Commands: []*cli.Command{
			{
				Name: "server",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				EnvVars: []string{"SERVER_URL"},
			},
		},
	}
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	os.Setenv("SERVER_URL", server.URL)
	defer os.Unsetenv("SERVER_URL")

	err := serverTestApp().Run([]string{"veritax", "server", "health"})
	require.NoError(t, err)
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	os.Setenv("SERVER_URL", server.URL)
	defer os.Unsetenv("SERVER_URL")

	err := serverTestApp().Run([]string{"veritax", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status")
}

func TestHealthCommand_MissingServerURL(t *testing.T) {
	os.Unsetenv("SERVER_URL")

	err := serverTestApp().Run([]string{"veritax", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-url is required")
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	commit = "abc123"
	date = "2026-08-30"

	err := serverTestApp().Run([]string{"veritax", "server", "version"})
	require.NoError(t, err)
}
