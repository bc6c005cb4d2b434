package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/teamloop/teamloop/internal/util"
)

type Config struct {
	Server Server `json:"server"`
	Auth   Auth   `json:"auth"`
	Call   Call   `json:"call"`
	Viewer Viewer `json:"viewer"`
}

type Server struct {
	// Base URL of the collaboration backend REST API,
	// e.g. https://team.example.org
	APIURL string `json:"api_url"`

	// WebSocket URL of the signaling relay. Empty means derived from APIURL
	// (wss:// with the same host).
	SocketURL string `json:"socket_url"`
}

type Auth struct {
	// File the encrypted session token is stored in. Relative to the data dir.
	TokenFile string `json:"token_file"`
}

type Call struct {
	// STUN/TURN server URLs for ICE gathering.
	ICEServers []string `json:"ice_servers"`

	// Disable local camera/mic capture; calls become receive-only.
	VideoDisabled bool `json:"video_disabled"`
}

type Viewer struct {
	HTTPAddr     string `json:"http_addr"`
	Debug        bool   `json:"debug"`
	Theme        string `json:"theme"`
	PreferredCam string `json:"preferred_cam"`
	PreferredMic string `json:"preferred_mic"`
}

func Default() Config {
	return Config{
		Server: Server{
			APIURL: "https://localhost:5001",
		},
		Auth: Auth{
			TokenFile: "data/session.tok",
		},
		Call: Call{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Viewer: Viewer{
			HTTPAddr: "127.0.0.1:7870",
			Theme:    "dark",
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.APIURL) == "" {
		return errors.New("server.api_url is required")
	}
	if err := validateHTTPURL(c.Server.APIURL); err != nil {
		return fmt.Errorf("server.api_url: %w", err)
	}
	if s := strings.TrimSpace(c.Server.SocketURL); s != "" {
		u, err := url.Parse(s)
		if err != nil {
			return fmt.Errorf("server.socket_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.New("server.socket_url scheme must be ws or wss")
		}
	}

	if strings.TrimSpace(c.Auth.TokenFile) == "" {
		return errors.New("auth.token_file is required")
	}

	if len(c.Call.ICEServers) == 0 {
		return errors.New("call.ice_servers must not be empty")
	}
	for _, s := range c.Call.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			return fmt.Errorf("call.ice_servers: %q must be a stun:/turn:/turns: URL", s)
		}
	}

	if addr := strings.TrimSpace(c.Viewer.HTTPAddr); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("viewer.http_addr: %w", err)
		}
		if host != "" && net.ParseIP(host) == nil && host != "localhost" {
			return errors.New("viewer.http_addr host must be an IP or localhost")
		}
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return errors.New("viewer.http_addr port must be 1..65535")
		}
	}

	return nil
}

// SocketURL returns the configured relay URL, or one derived from the API URL
// (same host, ws/wss scheme) when none is configured.
func (c *Config) SocketURL() string {
	if s := strings.TrimSpace(c.Server.SocketURL); s != "" {
		return s
	}
	u, err := url.Parse(c.Server.APIURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = ""
	return u.String()
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	if host := u.Hostname(); host == "0.0.0.0" {
		return errors.New("host must not be 0.0.0.0")
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return errors.New("invalid port")
		}
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
