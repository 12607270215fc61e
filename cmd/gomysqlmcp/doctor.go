package main

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
	"github.com/rickchristie/mysql-mcp/internal/protection"
)

// policySamples are classified by doctor to show what the configured policy
// lets through.
var policySamples = []string{
	"SELECT * FROM users LIMIT 10",
	"SHOW TABLES",
	"UPDATE users SET name = 'x' WHERE id = 1",
	"DROP TABLE users",
	"SELECT * FROM mysql.user",
	"SELECT LOAD_FILE('/etc/passwd')",
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and print agent connection snippets",
		Args:  cobra.NoArgs,
	}
	addConfigFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := newConfigViper(cmd.Flags())
		if err != nil {
			return err
		}
		return doctor(os.Stderr, isTTY(os.Stderr.Fd()), v)
	}
	return cmd
}

func doctor(w io.Writer, useColor bool, v *viper.Viper) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "gomysqlmcp %s\n\n", version)

	config, ok := doctorValidateConfig(w, useColor, v)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'gomysqlmcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printPolicy(w, useColor, config)
	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the configuration, printing check
// results. Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, v *viper.Viper) (*mysqlmcp.ServerConfig, bool) {
	config, err := loadServerConfig(v)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Configuration loads: %v", err))
		return nil, false
	}
	printCheck(w, useColor, true, "Configuration loads")

	allPassed := true
	check := func(pass bool, msg string) {
		printCheck(w, useColor, pass, msg)
		allPassed = allPassed && pass
	}

	if config.Connection.Host == "" {
		check(false, "MYSQL_HOST is set")
	} else {
		check(true, fmt.Sprintf("MYSQL_HOST is set (%s:%d)", config.Connection.Host, config.Connection.Port))
	}
	if config.Connection.User == "" {
		check(false, "MYSQL_USER is set")
	} else {
		check(true, fmt.Sprintf("MYSQL_USER is set (%s)", config.Connection.User))
	}
	switch {
	case config.Connection.Password != "":
		check(true, "MYSQL_PASSWORD is set")
	case config.Server.Transport == transportHTTP:
		check(true, "MYSQL_PASSWORD is not set (serve will prompt for it)")
	default:
		check(false, "MYSQL_PASSWORD is set (required for the stdio transport)")
	}
	if config.Database == "" {
		check(false, "MYSQL_DATABASE is set")
	} else {
		check(true, fmt.Sprintf("MYSQL_DATABASE is set (%s)", config.Database))
	}

	switch config.Server.Transport {
	case transportStdio:
		check(true, "transport is valid (stdio)")
		if config.Logging.Output == "stdout" {
			check(false, "log output is not stdout (stdout carries the stdio transport)")
		}
	case transportHTTP:
		check(true, "transport is valid (http)")
		if config.Server.Port <= 0 {
			check(false, "port is > 0")
		} else {
			check(true, fmt.Sprintf("port is > 0 (%d)", config.Server.Port))
		}
		if config.Server.HealthCheckEnabled {
			check(config.Server.HealthCheckPath != "", "health-check-path is set (required when health-check is enabled)")
		}
		if config.Server.MetricsEnabled {
			check(config.Server.MetricsPath != "", "metrics-path is set (required when metrics is enabled)")
		}
	default:
		check(false, fmt.Sprintf("transport is valid (got %q, want stdio or http)", config.Server.Transport))
	}

	// Regex patterns compile
	regexOK := true
	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			check(false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
		}
	}
	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			check(false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
		}
		if rule.TimeoutSeconds <= 0 {
			check(false, fmt.Sprintf("timeout_rules[%d] timeout_seconds is > 0", i))
		}
	}
	if regexOK {
		check(true, "All regex patterns compile")
	}

	return config, allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

func heading(w io.Writer, useColor bool, title string) {
	if useColor {
		fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
	} else {
		fmt.Fprintln(w, title)
	}
}

func subheading(w io.Writer, useColor bool, title string) {
	if useColor {
		fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
	} else {
		fmt.Fprintf(w, "  %s\n", title)
	}
}

// printPolicy runs the sample queries through the configured policy.
func printPolicy(w io.Writer, useColor bool, config *mysqlmcp.ServerConfig) {
	heading(w, useColor, "Safety Policy")
	fmt.Fprintln(w)
	if config.AllowDangerousOperations {
		fmt.Fprintf(w, "  Dangerous operations: allowed (MYSQL_ALLOW_DANGEROUS=true)\n")
	} else {
		fmt.Fprintf(w, "  Dangerous operations: blocked\n")
	}
	fmt.Fprintf(w, "  Database scope:       %s\n\n", config.Database)

	checker := protection.NewChecker(protection.Config{
		AllowDangerousOperations: config.AllowDangerousOperations,
		Database:                 config.Database,
	})
	for _, sql := range policySamples {
		v := checker.Classify(sql)
		if v.Allowed {
			printCheck(w, useColor, true, fmt.Sprintf("allowed  %s", sql))
		} else {
			printCheck(w, useColor, false, fmt.Sprintf("blocked  %s (%s)", sql, v.Reason))
		}
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *mysqlmcp.ServerConfig) {
	heading(w, useColor, "Agent Connection Snippets")
	fmt.Fprintln(w)

	if config.Server.Transport == transportHTTP {
		printHTTPSnippets(w, useColor, fmt.Sprintf("http://localhost:%d/mcp", config.Server.Port))
		return
	}
	printStdioSnippets(w, useColor, config)
}

func printHTTPSnippets(w io.Writer, useColor bool, url string) {
	// Claude Code
	subheading(w, useColor, "Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http mysql %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Gemini CLI
	subheading(w, useColor, "Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Cursor
	subheading(w, useColor, "Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Windsurf
	subheading(w, useColor, "Windsurf (~/.codeium/windsurf/mcp_config.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "serverUrl": "%s"
      }
    }
  }
`, url)
}

func printStdioSnippets(w io.Writer, useColor bool, config *mysqlmcp.ServerConfig) {
	host := fmt.Sprintf("%s:%d", config.Connection.Host, config.Connection.Port)
	env := fmt.Sprintf(`{
          "MYSQL_HOST": "%s",
          "MYSQL_USER": "%s",
          "MYSQL_PASSWORD": "<password>",
          "MYSQL_DATABASE": "%s",
          "MYSQL_ALLOW_DANGEROUS": "%t"
        }`, host, config.Connection.User, config.Database, config.AllowDangerousOperations)

	// Claude Code
	subheading(w, useColor, "Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add mysql --env MYSQL_HOST=%s --env MYSQL_USER=%s --env MYSQL_PASSWORD=<password> --env MYSQL_DATABASE=%s -- gomysqlmcp serve\n\n",
		host, config.Connection.User, config.Database)

	// JSON-configured agents share one shape.
	for _, target := range []string{
		"Claude Code (.mcp.json)",
		"Cursor (.cursor/mcp.json)",
		"Gemini CLI (~/.gemini/settings.json)",
		"Windsurf (~/.codeium/windsurf/mcp_config.json)",
	} {
		subheading(w, useColor, target)
		fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "command": "gomysqlmcp",
        "args": ["serve"],
        "env": %s
      }
    }
  }
`, env)
		fmt.Fprintln(w)
	}
}
