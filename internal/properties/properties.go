package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Color struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

// Config is passed explicitly to every operation. Nothing below reads the
// environment after LoadConfig returns.
type Config struct {
	RootPath  string `yaml:"rootPath"`
	OutputDir string `yaml:"outputDir"`
	CacheDir  string `yaml:"cacheDir"`

	Sentinel struct {
		ClientIDs     []string      `yaml:"clientIds"`
		ClientSecrets []string      `yaml:"clientSecrets"`
		TokenURL      string        `yaml:"tokenUrl"`
		ProcessURL    string        `yaml:"processUrl"`
		CatalogURL    string        `yaml:"catalogUrl"`
		Collection    string        `yaml:"collection"`
		Retries       int           `yaml:"retries"`
		RetryDelay    time.Duration `yaml:"retryDelay"`
	} `yaml:"sentinel"`

	Imagery struct {
		// Resolution is the ground sample distance in meters per pixel.
		Resolution        float64 `yaml:"resolution"`
		MaxDimension      int     `yaml:"maxDimension"`
		MaxCloudCover     int     `yaml:"maxCloudCover"`
		NearestDateWindow int     `yaml:"nearestDateWindow"`
		FetchWorkers      int     `yaml:"fetchWorkers"`
	} `yaml:"imagery"`

	Inference struct {
		PatchSize    int              `yaml:"patchSize"`
		Workers      int              `yaml:"workers"`
		ModelAddress string           `yaml:"modelAddress"`
		GrpcPort     int              `yaml:"grpcPort"`
		Labels       []string         `yaml:"labels"`
		ColorMap     map[string]Color `yaml:"colorMap"`
	} `yaml:"inference"`

	Notification struct {
		DiscordErrorURL   string `yaml:"discordErrorUrl"`
		DiscordSuccessURL string `yaml:"discordSuccessUrl"`
	} `yaml:"notification"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.RootPath = "."

	cfg.Sentinel.TokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	cfg.Sentinel.ProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"
	cfg.Sentinel.CatalogURL = "https://sh.dataspace.copernicus.eu/api/v1/catalog/1.0.0/search"
	cfg.Sentinel.Collection = "sentinel-2-l2a"
	cfg.Sentinel.Retries = 10
	cfg.Sentinel.RetryDelay = 5 * time.Second

	cfg.Imagery.Resolution = 10
	cfg.Imagery.MaxDimension = 2500
	cfg.Imagery.MaxCloudCover = 20
	cfg.Imagery.NearestDateWindow = 30
	cfg.Imagery.FetchWorkers = min(runtime.NumCPU(), 4)

	cfg.Inference.PatchSize = 512
	cfg.Inference.Workers = 1
	cfg.Inference.GrpcPort = 50051
	cfg.Inference.Labels = []string{"background", "vegetation"}
	cfg.Inference.ColorMap = map[string]Color{
		"background": {222, 203, 164},
		"vegetation": {34, 139, 34},
		"unknown":    {255, 0, 0},
	}
	return cfg
}

// LoadConfig reads a YAML config on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("ROOT_PATH"); ok && v != "" {
		c.RootPath = v
	}
	if v, ok := lookup("COPERNICUS_CLIENT_ID"); ok && v != "" {
		c.Sentinel.ClientIDs = splitList(v)
	}
	if v, ok := lookup("COPERNICUS_CLIENT_SECRET"); ok && v != "" {
		c.Sentinel.ClientSecrets = splitList(v)
	}
	if v, ok := lookup("COPERNICUS_TOKEN_URL"); ok && v != "" {
		c.Sentinel.TokenURL = v
	}
	if v, ok := lookup("DISCORD_ERROR_NOTIFICATION_URL"); ok {
		c.Notification.DiscordErrorURL = v
	}
	if v, ok := lookup("DISCORD_SUCCESS_NOTIFICATION_URL"); ok {
		c.Notification.DiscordSuccessURL = v
	}
	if v, ok := lookup("MODEL_ADDRESS"); ok && v != "" {
		c.Inference.ModelAddress = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Sentinel.ClientIDs) != len(c.Sentinel.ClientSecrets) {
		return fmt.Errorf("mismatched number of client IDs (%d) and secrets (%d)", len(c.Sentinel.ClientIDs), len(c.Sentinel.ClientSecrets))
	}
	if c.Inference.PatchSize <= 0 {
		return fmt.Errorf("patch size must be positive, got %d", c.Inference.PatchSize)
	}
	if c.Imagery.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %v", c.Imagery.Resolution)
	}
	if c.Imagery.MaxDimension <= 0 {
		return fmt.Errorf("max dimension must be positive, got %d", c.Imagery.MaxDimension)
	}
	if c.Imagery.MaxCloudCover < 0 || c.Imagery.MaxCloudCover > 100 {
		return fmt.Errorf("max cloud cover must be within [0, 100], got %d", c.Imagery.MaxCloudCover)
	}
	return nil
}

func (c *Config) dataPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, elem...)...)
}

// OutputPath returns the directory generated files are written to.
func (c *Config) OutputPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return c.dataPath("result")
}

func (c *Config) CachePath(subDir string) string {
	if c.CacheDir != "" {
		return filepath.Join(c.CacheDir, subDir)
	}
	return c.dataPath("cache", subDir)
}

func (c *Config) GeoJSONPath() string {
	return c.dataPath("geojsons")
}

func (c *Config) LabelColor(label string) Color {
	if clr, ok := c.Inference.ColorMap[label]; ok {
		return clr
	}
	return c.Inference.ColorMap["unknown"]
}
