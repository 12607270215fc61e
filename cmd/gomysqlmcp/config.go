package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	defaultMySQLPort = 3306
)

// mysqlEnv maps config keys to the unprefixed MYSQL_* variables.
var mysqlEnv = map[string]string{
	"mysql.host":            "MYSQL_HOST",
	"mysql.user":            "MYSQL_USER",
	"mysql.password":        "MYSQL_PASSWORD",
	"mysql.database":        "MYSQL_DATABASE",
	"mysql.allow-dangerous": "MYSQL_ALLOW_DANGEROUS",
}

// addConfigFlags registers the server settings shared by serve and doctor.
// Each flag can also be set as GOMYSQLMCP_<FLAG>, e.g. GOMYSQLMCP_LOG_LEVEL.
func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "YAML or JSON file with timeout_rules and error_prompts")
	fs.String("transport", transportStdio, "MCP transport (stdio, http)")
	fs.Int("port", 8080, "listen port for the http transport")
	fs.Bool("health-check", false, "serve a liveness endpoint (http transport)")
	fs.String("health-check-path", "/health", "liveness endpoint path")
	fs.Bool("metrics", false, "serve Prometheus metrics (http transport)")
	fs.String("metrics-path", "/metrics", "metrics endpoint path")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json, text)")
	fs.String("log-output", "stderr", "log output (stdout, stderr, or a file path)")
	fs.Int("max-conns", 10, "maximum concurrent queries and open connections")
	fs.Int("max-idle-conns", 0, "maximum idle connections (0 keeps the driver default)")
	fs.String("conn-max-lifetime", "", "maximum connection lifetime, e.g. 30m")
	fs.String("conn-max-idle-time", "", "maximum connection idle time, e.g. 5m")
	fs.Int("query-timeout", 30, "default execute_query timeout in seconds")
	fs.Int("list-tables-timeout", 10, "list_databases and list_tables timeout in seconds")
	fs.Int("describe-table-timeout", 10, "describe_table timeout in seconds")
	fs.Int("max-sql-length", 100000, "maximum query length in bytes")
	fs.Int("max-result-length", 100000, "maximum result length in characters")
}

// newConfigViper binds fs and the environment into a fresh viper instance.
func newConfigViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix("GOMYSQLMCP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range mysqlEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return v, nil
}

// loadServerConfig builds a ServerConfig from v. It only fails when the
// config file or MYSQL_HOST cannot be read; checkServerConfig reports
// missing settings.
func loadServerConfig(v *viper.Viper) (*mysqlmcp.ServerConfig, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	host, port, err := splitHostPort(v.GetString("mysql.host"))
	if err != nil {
		return nil, err
	}

	config := &mysqlmcp.ServerConfig{
		Config: mysqlmcp.Config{
			Database:                 v.GetString("mysql.database"),
			AllowDangerousOperations: v.GetBool("mysql.allow-dangerous"),
			Pool: mysqlmcp.PoolConfig{
				MaxConns:        v.GetInt("max-conns"),
				MaxIdleConns:    v.GetInt("max-idle-conns"),
				ConnMaxLifetime: v.GetString("conn-max-lifetime"),
				ConnMaxIdleTime: v.GetString("conn-max-idle-time"),
			},
			Query: mysqlmcp.QueryConfig{
				DefaultTimeoutSeconds:       v.GetInt("query-timeout"),
				ListTablesTimeoutSeconds:    v.GetInt("list-tables-timeout"),
				DescribeTableTimeoutSeconds: v.GetInt("describe-table-timeout"),
				MaxSQLLength:                v.GetInt("max-sql-length"),
				MaxResultLength:             v.GetInt("max-result-length"),
			},
		},
		Connection: mysqlmcp.ConnectionConfig{
			Host:     host,
			Port:     port,
			User:     v.GetString("mysql.user"),
			Password: v.GetString("mysql.password"),
		},
		Server: mysqlmcp.ServerSettings{
			Transport:          strings.ToLower(v.GetString("transport")),
			Port:               v.GetInt("port"),
			HealthCheckEnabled: v.GetBool("health-check"),
			HealthCheckPath:    v.GetString("health-check-path"),
			MetricsEnabled:     v.GetBool("metrics"),
			MetricsPath:        v.GetString("metrics-path"),
		},
		Logging: mysqlmcp.LoggingConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
			Output: v.GetString("log-output"),
		},
	}

	if err := v.UnmarshalKey("timeout_rules", &config.Query.TimeoutRules, jsonTags); err != nil {
		return nil, fmt.Errorf("failed to parse timeout_rules: %w", err)
	}
	if err := v.UnmarshalKey("error_prompts", &config.ErrorPrompts, jsonTags); err != nil {
		return nil, fmt.Errorf("failed to parse error_prompts: %w", err)
	}
	return config, nil
}

// jsonTags makes viper decode into the library's json-tagged config structs.
func jsonTags(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
}

// splitHostPort parses MYSQL_HOST, which is host, host:port, a bare IPv6
// address, or [ipv6]:port.
func splitHostPort(hostport string) (string, int, error) {
	switch {
	case hostport == "":
		return "", defaultMySQLPort, nil
	case strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]"):
		return hostport[1 : len(hostport)-1], defaultMySQLPort, nil
	case !strings.HasPrefix(hostport, "[") && strings.Count(hostport, ":") != 1:
		// No colon, or an unbracketed IPv6 address such as ::1.
		return hostport, defaultMySQLPort, nil
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("invalid MYSQL_HOST %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid MYSQL_HOST %q: port must be a number between 1 and 65535", hostport)
	}
	return host, port, nil
}

// checkServerConfig returns the first setting that stops serve from starting.
// The password is checked by serve, which may prompt for it.
func checkServerConfig(config *mysqlmcp.ServerConfig) error {
	switch {
	case config.Connection.Host == "":
		return errors.New("MYSQL_HOST is required")
	case config.Connection.User == "":
		return errors.New("MYSQL_USER is required")
	case config.Database == "":
		return errors.New("MYSQL_DATABASE is required")
	}

	switch config.Server.Transport {
	case transportStdio:
		if config.Logging.Output == "stdout" {
			return errors.New("log output cannot be stdout with the stdio transport")
		}
	case transportHTTP:
		if config.Server.Port <= 0 {
			return errors.New("port must be > 0 for the http transport")
		}
		if config.Server.HealthCheckEnabled && config.Server.HealthCheckPath == "" {
			return errors.New("health-check-path must be set when health-check is enabled")
		}
		if config.Server.MetricsEnabled && config.Server.MetricsPath == "" {
			return errors.New("metrics-path must be set when metrics is enabled")
		}
	default:
		return fmt.Errorf("unknown transport %q: must be %s or %s", config.Server.Transport, transportStdio, transportHTTP)
	}
	return nil
}
