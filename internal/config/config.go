// Package config loads the hrgate configuration from a YAML file and the
// environment.
//
// Every setting can be given in hrgate.yaml or as an HRGATE_ variable
// (directory.base_url becomes HRGATE_DIRECTORY_BASE_URL). The directory
// credentials additionally accept SF_API_URL, SF_USERNAME and SF_PASSWORD.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
	"github.com/Sentinel-Gate/hrgate/internal/domain/ratelimit"
)

// Transport names accepted in server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the top-level hrgate configuration.
type Config struct {
	// Directory holds the HR directory connection and entity names.
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`

	// Server selects the MCP transport.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures API keys for the HTTP transport. stdio callers always
	// run as the local identity.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// LogLevel sets the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Audit configures where tool-call audit records go.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// RateLimit throttles tool calls per caller.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Policy holds the tool-call authorization rules.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Telemetry selects the OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode relaxes authentication and raises the log level.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// DirectoryConfig configures the OData directory client.
type DirectoryConfig struct {
	// BaseURL is the OData service root, e.g. https://api.example.com/odata/v2.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// Username and Password are sent as HTTP Basic credentials on every request.
	Username string `yaml:"username" mapstructure:"username" validate:"required"`
	Password string `yaml:"password" mapstructure:"password" validate:"required"`

	// Timeout bounds a single directory request. Defaults to "60s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	PersonEntity     string `yaml:"person_entity" mapstructure:"person_entity"`
	EmploymentEntity string `yaml:"employment_entity" mapstructure:"employment_entity"`
	TypeTag          string `yaml:"type_tag" mapstructure:"type_tag"`

	// RejectAmbiguous fails resolution when a search matches several records.
	RejectAmbiguous bool `yaml:"reject_ambiguous" mapstructure:"reject_ambiguous"`

	// StrictFields makes post_user_data reject unknown field names instead of
	// passing them through.
	StrictFields bool `yaml:"strict_fields" mapstructure:"strict_fields"`
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	// Transport is "stdio" (default) or "http".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio http"`

	// HTTPAddr is the listen address for the HTTP transport.
	// Defaults to "127.0.0.1:8080" (localhost only).
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key" validate:"required_with=TLSCert"`

	// AllowedOrigins lists browser origins accepted by the HTTP transport.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AuthConfig configures API-key authentication.
type AuthConfig struct {
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`
	APIKeys    []APIKeyConfig   `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a caller.
type IdentityConfig struct {
	ID    string   `yaml:"id" mapstructure:"id" validate:"required"`
	Name  string   `yaml:"name" mapstructure:"name"`
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1,dive,oneof=admin writer reader"`
}

// APIKeyConfig binds a key hash to an identity.
type APIKeyConfig struct {
	// KeyHash is an Argon2id PHC string (see "hrgate hash-key") or
	// "sha256:<hex>".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`

	// IdentityID must match an ID in Auth.Identities.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// AuditConfig configures audit output.
type AuditConfig struct {
	// Output is "stderr", "stdout" (HTTP transport only),
	// "file:///abs/path" or "sqlite:///abs/path.db". Defaults to "stderr".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// ChannelSize is the audit queue length. Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records written per store call. Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval bounds how long a partial batch waits. Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// SendTimeout is how long Record blocks on a full queue before dropping.
	// Defaults to "100ms"; "0s" drops immediately.
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty,duration"`

	// WarningThreshold is the queue fill percentage that triggers a warning.
	// Defaults to 80.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`

	// BufferSize is the number of records the stderr/stdout/file store keeps
	// for the audit command. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// RateLimitConfig configures per-caller rate limiting.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Rate is the number of tool calls allowed per Period. Defaults to 120.
	Rate int `yaml:"rate" mapstructure:"rate" validate:"omitempty,min=1"`

	// Burst defaults to Rate.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"omitempty,min=1"`

	// Period defaults to "1m".
	Period string `yaml:"period" mapstructure:"period" validate:"omitempty,duration"`

	// CleanupInterval is how often idle keys are swept. Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is how long an idle key is kept. Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// PolicyConfig holds the ordered tool-call rules.
type PolicyConfig struct {
	// DefaultAction applies when no rule matches. Defaults to "allow".
	DefaultAction string `yaml:"default_action" mapstructure:"default_action" validate:"omitempty,oneof=allow deny"`

	// Rules are evaluated in order; the first match decides.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// RuleConfig defines a single rule.
type RuleConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over tool_name, tool_args, read_only,
	// caller_roles, identity_id, identity_name, transport and request_time.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	// Traces is "none" (default) or "stdout".
	Traces string `yaml:"traces" mapstructure:"traces" validate:"omitempty,oneof=none stdout"`

	// Metrics is "none" (default) or "stdout".
	Metrics string `yaml:"metrics" mapstructure:"metrics" validate:"omitempty,oneof=none stdout"`

	// MetricInterval is the stdout metric export period. Defaults to "60s".
	MetricInterval string `yaml:"metric_interval" mapstructure:"metric_interval" validate:"omitempty,duration"`
}

// SetDefaults applies default values to optional fields.
func (c *Config) SetDefaults() {
	if c.Directory.Timeout == "" {
		c.Directory.Timeout = "60s"
	}
	if c.Directory.PersonEntity == "" {
		c.Directory.PersonEntity = directory.DefaultPersonEntity
	}
	if c.Directory.EmploymentEntity == "" {
		c.Directory.EmploymentEntity = directory.DefaultEmploymentEntity
	}
	if c.Directory.TypeTag == "" {
		c.Directory.TypeTag = directory.DefaultTypeTag
	}

	if c.Server.Transport == "" {
		c.Server.Transport = TransportStdio
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// stdout carries JSON-RPC under stdio, so audit defaults to stderr.
	if c.Audit.Output == "" {
		c.Audit.Output = "stderr"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	// Only apply the default when the user hasn't explicitly set it.
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.Rate
	}
	if c.RateLimit.Period == "" {
		c.RateLimit.Period = "1m"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if c.Policy.DefaultAction == "" {
		c.Policy.DefaultAction = string(policy.ActionAllow)
	}

	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = "none"
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = "none"
	}
	if c.Telemetry.MetricInterval == "" {
		c.Telemetry.MetricInterval = "60s"
	}
}

// SetDevDefaults applies development overrides. It runs after SetDefaults
// and before Validate.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	if c.Server.Transport == TransportHTTP && len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
}

// AnonymousAllowed reports whether HTTP requests without an API key are
// served. That is only the case in dev mode with no keys configured.
func (c *Config) AnonymousAllowed() bool {
	return c.DevMode && len(c.Auth.APIKeys) == 0
}

// DirectorySettings returns the resolver and normalizer configuration.
func (c *Config) DirectorySettings() directory.Config {
	return directory.Config{
		PersonEntity:     c.Directory.PersonEntity,
		EmploymentEntity: c.Directory.EmploymentEntity,
		TypeTag:          c.Directory.TypeTag,
		RejectAmbiguous:  c.Directory.RejectAmbiguous,
	}.WithDefaults()
}

// PostMode returns the normalizer mode for post_user_data.
func (c *Config) PostMode() directory.Mode {
	if c.Directory.StrictFields {
		return directory.ModeStrict
	}
	return directory.ModePermissive
}

// PolicyRules converts the configured rules.
func (c *Config) PolicyRules() ([]policy.Rule, policy.Action) {
	rules := make([]policy.Rule, 0, len(c.Policy.Rules))
	for _, r := range c.Policy.Rules {
		rules = append(rules, policy.Rule{Name: r.Name, Condition: r.Condition, Action: policy.Action(r.Action)})
	}
	return rules, policy.Action(c.Policy.DefaultAction)
}

// Keyring builds the API-key verifier from the auth section.
func (c *Config) Keyring() (*auth.Keyring, error) {
	identities := make([]auth.Identity, 0, len(c.Auth.Identities))
	for _, id := range c.Auth.Identities {
		roles := make([]auth.Role, 0, len(id.Roles))
		for _, r := range id.Roles {
			roles = append(roles, auth.Role(r))
		}
		name := id.Name
		if name == "" {
			name = id.ID
		}
		identities = append(identities, auth.Identity{ID: id.ID, Name: name, Roles: roles})
	}
	keys := make([]auth.APIKey, 0, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		keys = append(keys, auth.APIKey{Hash: k.KeyHash, IdentityID: k.IdentityID})
	}
	return auth.NewKeyring(keys, identities)
}

// Limits returns the limiter parameters.
func (r RateLimitConfig) Limits() ratelimit.Config {
	if !r.Enabled {
		return ratelimit.Config{}
	}
	return ratelimit.Config{
		Rate:   r.Rate,
		Burst:  r.Burst,
		Period: Duration(r.Period, time.Minute),
	}
}

// Duration parses s, returning fallback when s is empty or invalid. Values
// are checked by Validate, so fallback is only reached for unset fields.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Redacted returns a copy safe to print: the directory password and key
// hashes are masked.
func (c Config) Redacted() Config {
	if c.Directory.Password != "" {
		c.Directory.Password = "********"
	}
	keys := make([]APIKeyConfig, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		keys[i] = APIKeyConfig{KeyHash: fmt.Sprintf("%.12s…", k.KeyHash), IdentityID: k.IdentityID}
	}
	c.Auth.APIKeys = keys
	return c
}
