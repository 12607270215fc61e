package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
	"github.com/rickchristie/mysql-mcp/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio (default) or streamable HTTP.

Connection settings come from MYSQL_HOST (host[:port]), MYSQL_USER,
MYSQL_PASSWORD and MYSQL_DATABASE. Set MYSQL_ALLOW_DANGEROUS=true to let
write and DDL statements through the safety policy.

Example:
  gomysqlmcp serve
  gomysqlmcp serve --transport http --port 8080 --metrics --health-check`,
		Args: cobra.NoArgs,
	}
	addConfigFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := newConfigViper(cmd.Flags())
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), v)
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := checkServerConfig(serverConfig); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if isTTY(os.Stderr.Fd()) {
		printBanner(os.Stderr, true)
	}

	// 2. Resolve password. Prompting is only possible when stdin is not the
	// MCP channel.
	if serverConfig.Connection.Password == "" && serverConfig.Server.Transport == transportHTTP && isTTY(os.Stdin.Fd()) {
		serverConfig.Connection.Password = promptPassword("MySQL password: ")
	}
	if serverConfig.Connection.Password == "" {
		return errors.New("MYSQL_PASSWORD is required")
	}

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create MysqlMcp instance (pings MySQL)
	var opts []mysqlmcp.Option
	var prom *metrics.Prometheus
	if serverConfig.Server.MetricsEnabled {
		prom = metrics.NewPrometheus()
		opts = append(opts, mysqlmcp.WithMetrics(prom))
	}
	logger.Info().
		Str("host", serverConfig.Connection.Host).
		Int("port", serverConfig.Connection.Port).
		Str("database", serverConfig.Database).
		Msg("connecting to MySQL")
	myMcp, err := mysqlmcp.New(ctx, serverConfig.Connection.DSN(serverConfig.Database), serverConfig.Config, logger, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("failed to create MysqlMcp: %w", err)
	}
	defer myMcp.Close()
	logger.Info().
		Bool("allow_dangerous_operations", serverConfig.AllowDangerousOperations).
		Msg("database connection test successful")

	// 5. Create MCP server with initialize lifecycle logging
	mcpServer := newMCPServer(myMcp, logger)

	// 6. Serve
	if serverConfig.Server.Transport == transportStdio {
		logger.Info().Msg("starting gomysqlmcp on stdio")
		return server.ServeStdio(mcpServer)
	}
	return serveHTTP(ctx, mcpServer, serverConfig.Server, prom, logger)
}

func newMCPServer(myMcp *mysqlmcp.MysqlMcp, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gomysqlmcp", version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	mysqlmcp.RegisterMCPTools(mcpServer, myMcp)
	return mcpServer
}

// newServeMux returns a mux with the optional health check and metrics
// endpoints registered. The MCP handler is added by the caller.
func newServeMux(settings mysqlmcp.ServerSettings, prom *metrics.Prometheus) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if settings.HealthCheckEnabled {
		mux.HandleFunc(settings.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	if settings.MetricsEnabled && prom != nil {
		mux.Handle(settings.MetricsPath, prom.Handler())
	}
	return mux
}

func serveHTTP(ctx context.Context, mcpServer *server.MCPServer, settings mysqlmcp.ServerSettings, prom *metrics.Prometheus, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", settings.Port)
	mux := newServeMux(settings, prom)

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the handler when a custom *http.Server is
	// provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down gomysqlmcp server")
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().
		Int("port", settings.Port).
		Bool("health_check", settings.HealthCheckEnabled).
		Bool("metrics", settings.MetricsEnabled).
		Msg("starting gomysqlmcp server")
	if err := streamableServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setupLogger(config mysqlmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
