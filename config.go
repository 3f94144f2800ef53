package pure3270

import (
	"crypto/tls"
	"time"

	"github.com/go3270/pure3270/internal/codepage"
)

// TLSConfig is the tls sub-object of Config, per spec.md §6.
type TLSConfig struct {
	Enabled    bool
	Verify     bool
	CABundle   string
	MinVersion uint16 // default tls.VersionTLS12
}

// Timeouts is the timeouts sub-object of Config, per spec.md §5/§6.
type Timeouts struct {
	Connect   time.Duration
	Negotiate time.Duration
	Read      time.Duration
}

var terminalModels = map[string]bool{
	"3278-2":  true,
	"3278-3":  true,
	"3278-4":  true,
	"3278-5":  true,
	"3279-2":  true,
	"3279-3":  true,
	"3279-4":  true,
	"3279-5":  true,
	"DYNAMIC": true,
}

// Config is the fixed, enumerated configuration surface spec.md §6 defines.
// Unlike the source's dynamic-attribute configuration objects, every field
// is declared up front; NewConfig rejects unknown/contradictory
// combinations at construction time, per spec.md §9's redesign note.
type Config struct {
	Host string
	Port int // default 23

	TLS TLSConfig

	TerminalModel string // one of the enum values in terminalModels
	LUName        string
	CodePage      string // e.g. "cp037", "cp1047"; default "cp037"

	Trace                bool
	AsciiFallbackAllowed bool

	Timeouts Timeouts

	FunctionsPolicy byte // overrides the conservative default when non-zero

	// InsertCircumventProtected, when true, allows insert_text to write
	// into a protected field instead of raising ProtectedFieldError.
	InsertCircumventProtected bool

	// FatalTimeouts, when true, causes a user-level Timeout to close the
	// session instead of leaving it READY, per spec.md §7.
	FatalTimeouts bool
}

// NewConfig validates cfg and fills in defaults, returning a ConfigError for
// any invalid terminal model, unknown code page, or contradictory option.
func NewConfig(cfg Config) (*Config, error) {
	out := cfg

	if out.Host == "" {
		return nil, &ConfigError{Message: "host is required"}
	}
	if out.Port == 0 {
		out.Port = 23
	}
	if out.Port < 1 || out.Port > 65535 {
		return nil, &ConfigError{Message: "port out of range"}
	}

	if out.TerminalModel == "" {
		out.TerminalModel = "3278-2"
	}
	if !terminalModels[out.TerminalModel] {
		return nil, &ConfigError{Message: "unknown terminal_model: " + out.TerminalModel}
	}

	if out.CodePage == "" {
		out.CodePage = "cp037"
	}
	if _, ok := codepage.Lookup(out.CodePage); !ok {
		return nil, &ConfigError{Message: "unknown code_page: " + out.CodePage}
	}

	if out.TLS.Enabled {
		if out.TLS.MinVersion == 0 {
			out.TLS.MinVersion = tls.VersionTLS12
		}
		if out.TLS.MinVersion < tls.VersionTLS12 {
			return nil, &ConfigError{Message: "tls.min_version below TLS 1.2 is not permitted"}
		}
		if !out.TLS.Verify && out.TLS.CABundle != "" {
			return nil, &ConfigError{Message: "ca_bundle set with verify disabled is contradictory"}
		}
	} else if out.TLS.CABundle != "" || out.TLS.MinVersion != 0 {
		return nil, &ConfigError{Message: "tls options set while tls.enabled is false"}
	}

	if out.Timeouts.Connect == 0 {
		out.Timeouts.Connect = 30 * time.Second
	}
	if out.Timeouts.Negotiate == 0 {
		out.Timeouts.Negotiate = 10 * time.Second
	}
	if out.Timeouts.Read == 0 {
		out.Timeouts.Read = 5 * time.Second
	}

	return &out, nil
}

// tlsClientConfig builds the *tls.Config used for Dial from cfg.TLS, or nil
// when TLS is not enabled.
func (c *Config) tlsClientConfig() *tls.Config {
	if !c.TLS.Enabled {
		return nil
	}
	return &tls.Config{
		InsecureSkipVerify: !c.TLS.Verify,
		MinVersion:         c.TLS.MinVersion,
		ServerName:         c.Host,
	}
}
