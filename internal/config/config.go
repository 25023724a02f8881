package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tgdrive/filebot/internal/duration"
)

const envPrefix = "FILEBOT_"

type ServerConfig struct {
	Port             int           `config:"port" default:"10000" description:"HTTP listen port"`
	GracefulShutdown time.Duration `config:"graceful-shutdown" default:"10s" description:"Graceful shutdown timeout"`
	ReadTimeout      time.Duration `config:"read-timeout" default:"30s" description:"HTTP read timeout"`
	WriteTimeout     time.Duration `config:"write-timeout" default:"30s" description:"HTTP write timeout"`
}

type LoggingConfig struct {
	Level string `config:"level" default:"info" description:"Logging level"`
	File  string `config:"file" description:"Logging file path"`
}

type DBConfig struct {
	DataSource string `config:"data-source" default:"filebot.db" description:"SQLite file path or postgres:// connection string"`
	LogLevel   string `config:"log-level" default:"error" description:"Database log level"`
	Pool       struct {
		MaxOpenConnections int           `config:"max-open-connections" default:"4" description:"Database max open connections"`
		MaxIdleConnections int           `config:"max-idle-connections" default:"4" description:"Database max idle connections"`
		MaxLifetime        time.Duration `config:"max-lifetime" default:"10m" description:"Database max connection lifetime"`
	} `config:"pool"`
}

type CacheConfig struct {
	MaxSize   int           `config:"max-size" default:"10485760" description:"In-memory cache size in bytes"`
	RedisAddr string        `config:"redis-addr" description:"Redis address, enables the redis cache"`
	RedisPass string        `config:"redis-pass" description:"Redis password"`
	RecordTTL time.Duration `config:"record-ttl" default:"1m" description:"How long token lookups stay cached"`
}

type TGConfig struct {
	Token          string        `config:"token" validate:"required" description:"Bot API token"`
	APIURL         string        `config:"api-url" default:"https://api.telegram.org" validate:"url" description:"Bot API base URL"`
	WebhookURL     string        `config:"webhook-url" description:"Public base URL, /webhook is appended"`
	WebhookSecret  string        `config:"webhook-secret" description:"Secret token expected in webhook requests"`
	Rate           int           `config:"rate" default:"30" description:"Outbound requests per second"`
	RateBurst      int           `config:"rate-burst" default:"5" description:"Outbound request burst"`
	MaxRetries     int           `config:"max-retries" default:"3" description:"Retries for failed Bot API calls"`
	RequestTimeout time.Duration `config:"request-timeout" default:"30s" description:"Timeout for a single Bot API call"`
}

type BotConfig struct {
	Admins        []int64       `config:"admins" validate:"min=1" description:"User ids allowed to register and manage files"`
	CleanupDelay  time.Duration `config:"cleanup-delay" default:"15m" description:"Delay before delivered messages are deleted"`
	ListChunkSize int           `config:"list-chunk-size" default:"3900" validate:"min=100" description:"Maximum characters per /list message"`
}

type ServerCmdConfig struct {
	Server ServerConfig  `config:"server"`
	Log    LoggingConfig `config:"log"`
	DB     DBConfig      `config:"db"`
	Cache  CacheConfig   `config:"cache"`
	TG     TGConfig      `config:"tg"`
	Bot    BotConfig     `config:"bot"`
}

// legacyEnv maps the variable names older deployments use.
var legacyEnv = map[string]string{
	"TOKEN":       "tg.token",
	"WEBHOOK_URL": "tg.webhook-url",
	"PORT":        "server.port",
}

type ConfigLoader struct {
	k        *koanf.Koanf
	flagKeys map[string]string
	envKeys  map[string]string
	cfg      any
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		k:        koanf.New("."),
		flagKeys: make(map[string]string),
		envKeys:  make(map[string]string),
	}
}

// RegisterFlags walks cfg and registers one flag per leaf field. Flag names
// are the config keys joined with "-", e.g. server.port becomes server-port.
func (cl *ConfigLoader) RegisterFlags(flags *pflag.FlagSet, prefix string, cfg any) error {
	if flags.Lookup("config") == nil {
		flags.StringP("config", "c", "", "Config file path (toml or yaml)")
	}
	if flags.Lookup("env-file") == nil {
		flags.String("env-file", ".env", "Dotenv file loaded into the environment when present")
	}
	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return cl.registerStruct(flags, prefix, t)
}

func (cl *ConfigLoader) registerStruct(flags *pflag.FlagSet, prefix string, t reflect.Type) error {
	for i := range t.NumField() {
		field := t.Field(i)
		name := field.Tag.Get("config")
		if name == "" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := cl.registerStruct(flags, key, field.Type); err != nil {
				return err
			}
			continue
		}
		flagName := strings.ReplaceAll(key, ".", "-")
		def := field.Tag.Get("default")
		usage := field.Tag.Get("description")
		if err := registerFlag(flags, flagName, field.Type, def, usage); err != nil {
			return errors.Wrapf(err, "flag %s", flagName)
		}
		cl.flagKeys[flagName] = key
		cl.envKeys[envPrefix+strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))] = key
	}
	return nil
}

func registerFlag(flags *pflag.FlagSet, name string, t reflect.Type, def, usage string) error {
	switch {
	case t == reflect.TypeOf(time.Duration(0)):
		var d time.Duration
		if def != "" {
			v, err := duration.ParseDuration(def)
			if err != nil {
				return err
			}
			d = v
		}
		duration.DurationVar(flags, new(time.Duration), name, d, usage)
	case t.Kind() == reflect.String:
		flags.String(name, def, usage)
	case t.Kind() == reflect.Bool:
		b := false
		if def != "" {
			v, err := strconv.ParseBool(def)
			if err != nil {
				return err
			}
			b = v
		}
		flags.Bool(name, b, usage)
	case t.Kind() == reflect.Int:
		n := 0
		if def != "" {
			v, err := strconv.Atoi(def)
			if err != nil {
				return err
			}
			n = v
		}
		flags.Int(name, n, usage)
	case t.Kind() == reflect.Int64:
		var n int64
		if def != "" {
			v, err := strconv.ParseInt(def, 10, 64)
			if err != nil {
				return err
			}
			n = v
		}
		flags.Int64(name, n, usage)
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Int64:
		var ids []int64
		for _, s := range splitList(def) {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			ids = append(ids, v)
		}
		flags.Int64Slice(name, ids, usage)
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		flags.StringSlice(name, splitList(def), usage)
	default:
		return fmt.Errorf("unsupported type %s", t)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flagValue(f *pflag.Flag) any {
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.GetSlice()
	}
	return f.Value.String()
}

// Load merges defaults, the config file, environment variables and flags
// set on the command line, in that order of precedence, and decodes into cfg.
func (cl *ConfigLoader) Load(cmd *cobra.Command, cfg any) error {
	flags := cmd.Flags()

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := cl.flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = cl.k.Set(key, flagValue(f))
	})
	if err != nil {
		return errors.Wrap(err, "load defaults")
	}

	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		if err := cl.loadFile(f.Value.String()); err != nil {
			return err
		}
	} else if _, statErr := os.Stat("config.toml"); statErr == nil {
		if err := cl.loadFile("config.toml"); err != nil {
			return err
		}
	}

	if f := flags.Lookup("env-file"); f != nil && f.Value.String() != "" {
		if err := loadEnvFile(f.Value.String(), f.Changed); err != nil {
			return err
		}
	}

	if err := cl.k.Load(env.Provider("", ".", func(s string) string {
		if key, ok := cl.envKeys[s]; ok {
			return key
		}
		return legacyEnv[s]
	}), nil); err != nil {
		return errors.Wrap(err, "load env")
	}

	flags.Visit(func(f *pflag.Flag) {
		key, ok := cl.flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = cl.k.Set(key, flagValue(f))
	})
	if err != nil {
		return errors.Wrap(err, "load flags")
	}

	if err := cl.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "config",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				StringToDurationHook(),
				StringToListHook(),
			),
			WeaklyTypedInput: true,
			Result:           cfg,
			TagName:          "config",
		},
	}); err != nil {
		return errors.Wrap(err, "decode config")
	}
	cl.cfg = cfg
	return nil
}

// loadEnvFile copies variables from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is only an error when it was asked for explicitly.
func loadEnvFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "env file %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "read env file %s", path)
	}
	return nil
}

func (cl *ConfigLoader) loadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		parser = toml.Parser()
	}
	if err := cl.k.Load(file.Provider(path), parser); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return nil
}

// Validate checks the config decoded by the last Load call.
func (cl *ConfigLoader) Validate() error {
	if cl.cfg == nil {
		return errors.New("config not loaded")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("config")
	})
	if err := v.Struct(cl.cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", configKey(fe.Namespace()), fe.Tag()))
			}
			return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// configKey turns a validator namespace like "ServerCmdConfig.tg.token" into "tg.token".
func configKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// StringToListHook splits comma separated strings for slice fields of any
// element type, e.g. FILEBOT_BOT_ADMINS=5,6. Elements are converted by the
// weakly typed decoder.
func StringToListHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
			return data, nil
		}
		return splitList(data.(string)), nil
	}
}

func StringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return duration.ParseDuration(data.(string))
	}
}
