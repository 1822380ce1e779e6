package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/doorsync/internal/persistence/jsonfile"
)

// PCO holds the Planning Center client settings.
type PCO struct {
	BaseURL             string
	AppID               string
	Secret              string
	AccessToken         string
	CacheTTL            time.Duration
	MinFetchInterval    time.Duration
	MaxPages            int
	PerPage             int
	Timeout             time.Duration
	LocationMustContain string
}

// UniFi holds the access controller client settings.
type UniFi struct {
	BaseURL   string
	APIToken  string
	VerifyTLS bool
	Timeout   time.Duration
}

// Config captures environment driven configuration for the door sync service.
type Config struct {
	DisplayZone *time.Location
	ZoneName    string

	// SyncSpec is what the runner schedules on: SYNC_CRON when set,
	// otherwise an @every descriptor built from SYNC_INTERVAL_SECONDS.
	SyncSpec     string
	StartupDelay time.Duration
	Lookahead    time.Duration
	Lookbehind   time.Duration

	PCO   PCO
	UniFi UniFi

	InitialApplyMode bool

	StateDir string
	Files    jsonfile.Paths

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	TelegramBotToken string
	TelegramChatIDs  []string

	DashboardPassword     string
	DashboardPasswordHash string
	SessionTTL            time.Duration

	WatchOperatorFiles bool
}

const (
	minNetworkTimeout = 15 * time.Second
	defaultZoneName   = "America/New_York"
)

// Load parses configuration from the current process environment.
//
// The loader applies defaults for optional fields while validating the rest,
// and reports every missing or invalid key in one error instead of stopping
// at the first.
func Load() (Config, error) {
	cfg := Config{
		ZoneName:     defaultZoneName,
		StartupDelay: 5 * time.Second,
		Lookahead:    168 * time.Hour,
		Lookbehind:   24 * time.Hour,
		PCO: PCO{
			BaseURL:          "https://api.planningcenteronline.com",
			CacheTTL:         5 * time.Minute,
			MinFetchInterval: time.Minute,
			MaxPages:         10,
			PerPage:          100,
			Timeout:          minNetworkTimeout,
		},
		UniFi: UniFi{
			Timeout: minNetworkTimeout,
		},
		StateDir:           "./state",
		HTTPAddr:           ":8080",
		LogLevel:           "info",
		LogFormat:          "json",
		SessionTTL:         24 * time.Hour,
		WatchOperatorFiles: true,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if zone := strings.TrimSpace(os.Getenv("DISPLAY_TIMEZONE")); zone != "" {
		cfg.ZoneName = zone
	}
	loc, err := time.LoadLocation(cfg.ZoneName)
	if err != nil {
		invalid = append(invalid, "DISPLAY_TIMEZONE")
	} else {
		cfg.DisplayZone = loc
	}

	syncInterval := 300
	if value := strings.TrimSpace(os.Getenv("SYNC_INTERVAL_SECONDS")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, "SYNC_INTERVAL_SECONDS")
		} else {
			syncInterval = parsed
		}
	}
	if spec := strings.TrimSpace(os.Getenv("SYNC_CRON")); spec != "" {
		if _, err := cronParser.Parse(spec); err != nil {
			invalid = append(invalid, "SYNC_CRON")
		} else {
			cfg.SyncSpec = spec
		}
	}
	if cfg.SyncSpec == "" {
		cfg.SyncSpec = fmt.Sprintf("@every %ds", syncInterval)
	}

	if delay, ok := secondsVar("STARTUP_SYNC_DELAY_SECONDS", 0, &invalid); ok {
		cfg.StartupDelay = delay
	}
	if hours, ok := intVar("SYNC_LOOKAHEAD_HOURS", 1, &invalid); ok {
		cfg.Lookahead = time.Duration(hours) * time.Hour
	}
	if hours, ok := intVar("SYNC_LOOKBEHIND_HOURS", 0, &invalid); ok {
		cfg.Lookbehind = time.Duration(hours) * time.Hour
	}

	if url := strings.TrimSpace(os.Getenv("PCO_BASE_URL")); url != "" {
		cfg.PCO.BaseURL = url
	}
	cfg.PCO.AppID = strings.TrimSpace(os.Getenv("PCO_APP_ID"))
	cfg.PCO.Secret = strings.TrimSpace(os.Getenv("PCO_SECRET"))
	cfg.PCO.AccessToken = strings.TrimSpace(os.Getenv("PCO_ACCESS_TOKEN"))
	if cfg.PCO.AccessToken == "" && (cfg.PCO.AppID == "" || cfg.PCO.Secret == "") {
		missing = append(missing, "PCO_APP_ID/PCO_SECRET (or PCO_ACCESS_TOKEN)")
	}
	if ttl, ok := secondsVar("PCO_EVENTS_CACHE_SECONDS", 0, &invalid); ok {
		cfg.PCO.CacheTTL = ttl
	}
	if gap, ok := secondsVar("PCO_MIN_FETCH_INTERVAL_SECONDS", 0, &invalid); ok {
		cfg.PCO.MinFetchInterval = gap
	}
	if pages, ok := intVar("PCO_MAX_PAGES", 1, &invalid); ok {
		cfg.PCO.MaxPages = pages
	}
	if perPage, ok := intVar("PCO_PER_PAGE", 1, &invalid); ok {
		cfg.PCO.PerPage = perPage
	}
	if timeout, ok := secondsVar("PCO_TIMEOUT_SECONDS", 1, &invalid); ok {
		cfg.PCO.Timeout = floorTimeout(timeout)
	}
	cfg.PCO.LocationMustContain = strings.TrimSpace(os.Getenv("PCO_LOCATION_MUST_CONTAIN"))

	cfg.UniFi.BaseURL = strings.TrimSpace(os.Getenv("UNIFI_BASE_URL"))
	if cfg.UniFi.BaseURL == "" {
		missing = append(missing, "UNIFI_BASE_URL")
	}
	cfg.UniFi.APIToken = strings.TrimSpace(os.Getenv("UNIFI_API_TOKEN"))
	if cfg.UniFi.APIToken == "" {
		missing = append(missing, "UNIFI_API_TOKEN")
	}
	if verify, ok := boolVar("UNIFI_VERIFY_TLS", &invalid); ok {
		cfg.UniFi.VerifyTLS = verify
	}
	if timeout, ok := secondsVar("UNIFI_TIMEOUT_SECONDS", 1, &invalid); ok {
		cfg.UniFi.Timeout = floorTimeout(timeout)
	}

	if apply, ok := boolVar("APPLY_TO_UNIFI", &invalid); ok {
		cfg.InitialApplyMode = apply
	}

	if dir := strings.TrimSpace(os.Getenv("STATE_DIR")); dir != "" {
		cfg.StateDir = dir
	}
	cfg.Files = jsonfile.DefaultPaths(cfg.StateDir)
	overridePath("ROOM_DOOR_MAPPING_FILE", &cfg.Files.Mapping)
	overridePath("OFFICE_HOURS_FILE", &cfg.Files.OfficeHours)
	overridePath("EVENT_OVERRIDES_FILE", &cfg.Files.Overrides)
	overridePath("EVENT_MEMORY_FILE", &cfg.Files.Memory)
	overridePath("CANCELLED_EVENTS_FILE", &cfg.Files.Cancellations)
	overridePath("SAFE_HOURS_FILE", &cfg.Files.SafeHours)
	overridePath("PENDING_APPROVALS_FILE", &cfg.Files.Pending)
	overridePath("APPROVED_NAMES_FILE", &cfg.Files.ApprovedNames)
	overridePath("SYNC_STATE_FILE", &cfg.Files.SyncState)

	if addr := strings.TrimSpace(os.Getenv("HTTP_ADDR")); addr != "" {
		cfg.HTTPAddr = addr
	}
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		cfg.LogFormat = format
	}

	cfg.TelegramBotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if ids := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_IDS")); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.TelegramChatIDs = append(cfg.TelegramChatIDs, id)
			}
		}
	}

	cfg.DashboardPassword = strings.TrimSpace(os.Getenv("DASHBOARD_PASSWORD"))
	cfg.DashboardPasswordHash = strings.TrimSpace(os.Getenv("DASHBOARD_PASSWORD_HASH"))
	if ttlValue := strings.TrimSpace(os.Getenv("SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if watch, ok := boolVar("WATCH_OPERATOR_FILES", &invalid); ok {
		cfg.WatchOperatorFiles = watch
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// OperatorFiles lists the paths the file watcher should monitor. Service
// written files are deliberately absent so a sync cycle cannot kick the next.
func (c Config) OperatorFiles() []string {
	return []string{
		c.Files.Mapping,
		c.Files.OfficeHours,
		c.Files.Overrides,
		c.Files.SafeHours,
		c.Files.ApprovedNames,
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func intVar(key string, min int, invalid *[]string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < min {
		*invalid = append(*invalid, key)
		return 0, false
	}
	return parsed, true
}

func secondsVar(key string, min int, invalid *[]string) (time.Duration, bool) {
	parsed, ok := intVar(key, min, invalid)
	if !ok {
		return 0, false
	}
	return time.Duration(parsed) * time.Second, true
}

func boolVar(key string, invalid *[]string) (bool, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*invalid = append(*invalid, key)
		return false, false
	}
	return parsed, true
}

func overridePath(key string, target *string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

// floorTimeout keeps network timeouts at a workable minimum; the upstreams
// regularly take ten seconds on cold caches.
func floorTimeout(timeout time.Duration) time.Duration {
	if timeout < minNetworkTimeout {
		return minNetworkTimeout
	}
	return timeout
}
