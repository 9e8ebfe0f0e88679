package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "PROGRESS"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port" validate:"min=1,max=65535"`           // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`     // abort request after
	Store          struct {
		Driver     string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=memory mysql postgres sqlite redis"` // progress store backend
		LockShards int    `mapstructure:"lock_shards" json:"lock_shards" yaml:"lock_shards" validate:"min=1"`                    // per-key lock stripes
	} `mapstructure:"store" json:"store" yaml:"store"`
	Database struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"omitempty,oneof=mysql postgres sqlite"` // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                                        // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                              // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password"`                                                   // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                        // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"`         // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                                     // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema"`                                                  // use schema, file path for sqlite
		User     string `mapstructure:"username" json:"username" yaml:"username"`                                            // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	Directory struct {
		Driver string   `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=memory sql"` // where usernames resolve
		Users  []string `mapstructure:"users" json:"users" yaml:"users"`                                // seed for the memory directory
	} `mapstructure:"directory" json:"directory" yaml:"directory"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength       int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8"`                      // length of generated ID for entities
		JWTMethod      string        `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS384 HS512"` // jwt signing algorithm
		JWTSecret      string        `mapstructure:"jwt_secret" json:"-" yaml:"jwt_secret"`                                             // empty disables transport auth
		TokenName      string        `mapstructure:"token_name" json:"token_name" yaml:"token_name"`                                    // jwt token name set in cookie
		SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"`                     // token lifetime, refreshed while in use
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"` // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"` // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password"`
		DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Feed struct {
		RedisChannel string `mapstructure:"redis_channel" json:"redis_channel" yaml:"redis_channel"` // fan out feed events across instances, empty for in-process only
	} `mapstructure:"feed" json:"feed" yaml:"feed"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// AuthEnabled whether transport requests must carry a token
func (c *AppConfig) AuthEnabled() bool {
	return c.Security.JWTSecret != ""
}

// RegisterFlags declares every config flag on fs
func RegisterFlags(fs *pflag.FlagSet) {
	// app
	fs.String("host", "", "binding address")
	fs.String("app_id", "learnsync", "application identifier")
	fs.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	fs.Int("port", 8081, "listening port")
	fs.Duration("request_timeout", 30*time.Second, "abort requests running longer than this")

	// store
	fs.String("store.driver", "memory", "progress store backend: memory, mysql, postgres, sqlite or redis")
	fs.Int("store.lock_shards", 64, "number of lock stripes used to serialize writes per (user, course)")

	// database
	fs.String("database.driver", "", "database driver to use, defaults to store.driver for SQL stores")
	fs.String("database.host", "127.0.0.1", "database host")
	fs.Int("database.port", 3306, "database server port")
	fs.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	fs.String("database.username", "", "database username")
	fs.String("database.password", "", "database password")
	fs.String("database.schema", "", "database schema, or database file path for sqlite")
	fs.String("database.query", "", `additional DSN query parameters('?' is auto prefixed)`)
	fs.Int32("database.maxconn", 20, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)

	// user directory
	fs.String("directory.driver", "memory", "user directory: memory or sql")
	fs.StringSlice("directory.users", nil, "usernames known to the memory directory")

	// logging
	fs.String("logging.level", "info", "logging level")
	fs.String("logging.file_path", "", "log to file")

	// security
	fs.Int("security.id_length", 21, "set length of generated ID for entities")
	fs.String("security.jwt_method", "HS256", "hash algorithm used for JWT auth")
	fs.String("security.jwt_secret", "", "JWT secret, auth is disabled when empty")
	fs.String("security.token_name", "learnsync_token", "cookie name to store the token")
	fs.Duration("security.session_timeout", 24*time.Hour, "token lifetime")

	// kv storage
	fs.String("kv.host", "127.0.0.1", "kv host")
	fs.Int("kv.port", 6379, "kv server port")
	fs.String("kv.password", "", "kv server password")
	fs.Int("kv.db", 0, "kv database index")

	// feed
	fs.String("feed.redis_channel", "", "redis channel used to fan out progress feed events across instances")

	// DevOp
	fs.Bool("devop.apm", false, "enable apm metrics")
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	RegisterFlags(pflag.CommandLine)
	pflag.Parse()
	return LoadConfig(viper.New(), pflag.CommandLine)
}

// LoadConfig bind flags and environment to v and decode the result
func LoadConfig(v *viper.Viper, fs *pflag.FlagSet) (*AppConfig, error) {
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config = new(AppConfig)
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	if config.Database.Driver == "" {
		switch config.Store.Driver {
		case "mysql", "postgres", "sqlite":
			config.Database.Driver = config.Store.Driver
		}
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("yaml")
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	var msg []string
	if err != nil {
		for _, field := range err.(validator.ValidationErrors) {
			namespace := field.Namespace()
			fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
			switch field.Tag() {
			case "required":
				msg = append(msg, fmt.Sprintf("%s is required", fieldName))
			case "oneof":
				msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
			default:
				msg = append(msg, fmt.Sprintf("%s failed on %s=%s", fieldName, field.Tag(), field.Param()))
			}
		}
	}
	if config.Directory.Driver == "sql" && config.Database.Driver == "" {
		msg = append(msg, "database.driver is required when directory.driver is sql")
	}
	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
