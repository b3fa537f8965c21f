package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const (
	appName           = "issuesync"
	configPathEnv     = "ISSUESYNC_CONFIG"
	storeDSNEnv       = "ISSUESYNC_STORE"
	logLevelEnv       = "ISSUESYNC_LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	mainSection          = "general"
	flavorSection        = "flavor"
	hooksSection         = "hooks"
	notificationsSection = "notifications"
)

// ErrNotFound is returned when no configuration file can be located.
var ErrNotFound = errors.New("config file not found")

// Config is the validated, defaulted configuration of one run.
type Config struct {
	Path          string
	MainSection   string
	Main          MainConfig
	Targets       []ServiceConfig
	Hooks         HooksConfig
	Notifications NotificationConfig
}

// MainConfig holds the options of the general (or flavor) section.
type MainConfig struct {
	Targets              []string      `mapstructure:"targets"`
	Store                string        `mapstructure:"store"`
	DataPath             string        `mapstructure:"data_path"`
	Shorten              bool          `mapstructure:"shorten"`
	InlineLinks          bool          `mapstructure:"inline_links"`
	AnnotationLinks      bool          `mapstructure:"annotation_links"`
	AnnotationComments   bool          `mapstructure:"annotation_comments"`
	AnnotationNewlines   bool          `mapstructure:"annotation_newlines"`
	AnnotationLength     int           `mapstructure:"annotation_length"`
	DescriptionLength    int           `mapstructure:"description_length"`
	MergeAnnotations     bool          `mapstructure:"merge_annotations"`
	MergeTags            bool          `mapstructure:"merge_tags"`
	ReplaceTags          bool          `mapstructure:"replace_tags"`
	StaticTags           []string      `mapstructure:"static_tags"`
	StaticFields         []string      `mapstructure:"static_fields"`
	ReopenCompletedTasks bool          `mapstructure:"reopen_completed_tasks"`
	LogLevel             string        `mapstructure:"log_level"`
	LogFile              string        `mapstructure:"log_file"`
	WorkerStagger        time.Duration `mapstructure:"worker_stagger"`

	// Interactive is set from the command line, never from the file.
	Interactive bool `mapstructure:"-"`
}

// HooksConfig lists shell commands run around a pull.
type HooksConfig struct {
	PreImport []string `mapstructure:"pre_import"`
}

// NotificationConfig encapsulates outbound notification channels.
type NotificationConfig struct {
	Enabled                bool           `mapstructure:"notifications"`
	Backend                string         `mapstructure:"backend"`
	OnlyOnNewTasks         bool           `mapstructure:"only_on_new_tasks"`
	FinishedQueryingSticky bool           `mapstructure:"finished_querying_sticky"`
	TaskCrudSticky         bool           `mapstructure:"task_crud_sticky"`
	Telegram               TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Options tune how Load locates and interprets the file.
type Options struct {
	Path        string
	Flavor      string
	Interactive bool
}

// Load reads the configuration file, applies defaults and environment
// overrides and validates the main section. Target sections are decoded into
// their common options; service-specific validation happens in the registry.
func Load(opts Options) (Config, error) {
	_ = godotenv.Load()

	path, err := resolvePath(opts.Path)
	if err != nil {
		return Config{}, err
	}

	settings, err := readSettings(path)
	if err != nil {
		return Config{}, err
	}

	cfg, err := FromSettings(settings, opts.Flavor)
	if err != nil {
		return Config{}, err
	}
	cfg.Path = path
	cfg.Main.Interactive = opts.Interactive
	return cfg, nil
}

// FromSettings builds a Config from an already parsed settings tree.
func FromSettings(settings map[string]any, flavor string) (Config, error) {
	cfg := defaultConfig()

	cfg.MainSection = mainSection
	path := []string{mainSection}
	if flavor != "" {
		cfg.MainSection = flavorSection + "." + flavor
		path = []string{flavorSection, flavor}
	}

	main, ok := lookupSection(settings, path...)
	if !ok {
		return Config{}, fmt.Errorf("%w: no [%s] section", ErrInvalid, cfg.MainSection)
	}

	problems := &Problems{}
	problems.Add(cfg.MainSection, ValidateSection(cfg.MainSection, mainProperties(), []string{"targets"}, main))
	if problems.Empty() {
		if err := Decode(main, &cfg.Main); err != nil {
			return Config{}, fmt.Errorf("%w: [%s] <- %v", ErrInvalid, cfg.MainSection, err)
		}
	}

	for _, target := range cfg.Main.Targets {
		raw, ok := lookupSection(settings, target)
		if !ok {
			problems.Addf("No section: '%s'", target)
			continue
		}
		sc, err := DecodeServiceConfig(target, raw)
		if err != nil {
			problems.Addf("[%s] <- %v", target, err)
			continue
		}
		cfg.Targets = append(cfg.Targets, sc)
	}

	if hooks, ok := lookupSection(settings, hooksSection); ok {
		if err := Decode(hooks, &cfg.Hooks); err != nil {
			problems.Addf("[%s] <- %v", hooksSection, err)
		}
	}

	if notify, ok := lookupSection(settings, notificationsSection); ok {
		problems.Add(notificationsSection, ValidateSection(notificationsSection, notificationProperties(), nil, notify))
		if err := Decode(notify, &cfg.Notifications); err != nil {
			problems.Addf("[%s] <- %v", notificationsSection, err)
		}
	}

	if err := problems.Err(); err != nil {
		return Config{}, err
	}

	cfg.applyEnvOverrides()
	cfg.applyPathDefaults()
	return cfg, nil
}

// Target returns the config of a named target.
func (c Config) Target(name string) (ServiceConfig, bool) {
	for _, t := range c.Targets {
		if t.Target == name {
			return t, true
		}
	}
	return ServiceConfig{}, false
}

// LockPath is the run lock file inside the data directory.
func (c Config) LockPath() string {
	return filepath.Join(c.Main.DataPath, appName+".lock")
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(storeDSNEnv); v != "" {
		c.Main.Store = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Main.LogLevel = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) applyPathDefaults() {
	if c.Main.DataPath == "" {
		c.Main.DataPath = defaultDataPath()
	}
	c.Main.DataPath = expandHome(c.Main.DataPath)
	if c.Main.Store == "" {
		c.Main.Store = "file://" + filepath.Join(c.Main.DataPath, "tasks.yaml")
	}
	if c.Main.LogFile != "" {
		c.Main.LogFile = expandHome(c.Main.LogFile)
	}
}

func defaultConfig() Config {
	return Config{
		Main: MainConfig{
			Shorten:              false,
			InlineLinks:          true,
			AnnotationLinks:      false,
			AnnotationComments:   true,
			AnnotationNewlines:   false,
			AnnotationLength:     45,
			DescriptionLength:    35,
			MergeAnnotations:     true,
			MergeTags:            true,
			ReplaceTags:          false,
			StaticTags:           []string{},
			StaticFields:         []string{"priority"},
			ReopenCompletedTasks: true,
			LogLevel:             "INFO",
			WorkerStagger:        time.Second,
		},
		Notifications: NotificationConfig{
			Backend:                "log",
			FinishedQueryingSticky: true,
			TaskCrudSticky:         true,
		},
	}
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		return expandHome(explicit), nil
	}
	if v := os.Getenv(configPathEnv); v != "" {
		return expandHome(v), nil
	}

	var candidates []string
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = expandHome("~/.config")
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml", "config.ini"} {
		candidates = append(candidates, filepath.Join(configHome, appName, name))
	}
	candidates = append(candidates, expandHome("~/."+appName+"rc"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: looked in %s", ErrNotFound, strings.Join(candidates, ", "))
}

func readSettings(path string) (map[string]any, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v := viper.New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml", ".json":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	default:
		settings, err := readINI(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v.AllSettings(), nil
}

// readINI reads rc-style files. Dotted keys such as "todoist.token" are
// nested under their prefix, the shape flattenLegacy expects.
func readINI(path string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for _, section := range file.Sections() {
		keys := section.Keys()
		if section.Name() == ini.DefaultSection && len(keys) == 0 {
			continue
		}
		values := map[string]any{}
		for _, key := range keys {
			prefix, option, dotted := strings.Cut(key.Name(), ".")
			if !dotted {
				values[key.Name()] = key.String()
				continue
			}
			nested, ok := values[prefix].(map[string]any)
			if !ok {
				nested = map[string]any{}
				values[prefix] = nested
			}
			nested[option] = key.String()
		}
		out[strings.ToLower(section.Name())] = values
	}
	return out, nil
}

func defaultDataPath() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(expandHome("~/.local/share"), appName)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
