package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/conneroisu/unify/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)
	return builder.String()
}

// ValidateConfigWithDetails checks every section and collects errors and
// warnings instead of stopping at the first problem.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateBuildConfigDetails(&config.Build, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateServerConfigDetails(&config.Server, result)
	validateLoggingConfigDetails(&config.Logging, result)

	result.Valid = !result.HasErrors()
	return result
}

// validateConfig turns detailed validation errors into one configuration
// error.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}

	msgs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	ce := uerrors.NewConfigError(uerrors.ErrCodeConfigInvalid, "invalid configuration: "+strings.Join(msgs, "; "))
	return ce.WithContext("errors", len(result.Errors))
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	paths := []struct {
		field, value string
	}{
		{"build.source", config.Source},
		{"build.output", config.Output},
		{"build.cache_file", config.CacheFile},
	}
	for _, p := range paths {
		if err := validatePath(p.value); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: err.Error(),
				Suggestions: []string{
					"Use a path inside the project directory or an absolute path",
				},
			})
		}
	}

	if config.Source != "" && filepath.Clean(config.Source) == filepath.Clean(config.Output) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "build.output",
			Value:   config.Output,
			Message: "output directory must differ from the source directory",
		})
	}

	if config.Source != "" && !pathExists(config.Source) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "build.source",
			Value:   config.Source,
			Message: fmt.Sprintf("source directory %q does not exist", config.Source),
		})
	}

	if config.AreaPrefix == "" || strings.IndexFunc(config.AreaPrefix, unicode.IsSpace) >= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "build.area_prefix",
			Value:   config.AreaPrefix,
			Message: "area prefix must be non-empty and contain no whitespace",
			Suggestions: []string{
				`The default prefix is "unify-"`,
			},
		})
	}

	if config.MaxDepth < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "build.max_depth",
			Value:   config.MaxDepth,
			Message: fmt.Sprintf("max depth %d must be at least 1", config.MaxDepth),
		})
	}

	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "build.ignore",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob %q: %v", pattern, err),
			})
		}
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if config.Debounce <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.debounce",
			Value:   config.Debounce,
			Message: "debounce must be positive",
			Suggestions: []string{
				"Use a duration such as 100ms",
			},
		})
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// 0 lets the system pick a port
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is privileged", config.Port),
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
			})
		}
	}
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "logging.level",
			Value:   config.Level,
			Message: fmt.Sprintf("unknown level %q, using %s", config.Level, logging.LevelFromString(config.Level)),
		})
	}

	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.format",
			Value:   config.Format,
			Message: `format must be "text" or "json"`,
		})
	}
}

// validatePath rejects empty paths, NUL bytes and relative paths that climb
// out of the working directory.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) && (cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator))) {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	return nil
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
