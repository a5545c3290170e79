package conf

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/iceymoss/go-taskplan/internal/core"
	"github.com/iceymoss/go-taskplan/internal/tasks"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Root     string         `mapstructure:"root"`
	Priority int            `mapstructure:"priority"`
	Workers  int            `mapstructure:"workers"`
	Log      LogConfig      `mapstructure:"log"`
	Plan     []PlanEntry    `mapstructure:"plan"`
	Families []FamilyConfig `mapstructure:"families"`
	Jobs     []JobConfig    `mapstructure:"jobs"`
	History  HistoryConfig  `mapstructure:"history"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type PlanEntry struct {
	Name    string `mapstructure:"name"`
	Content string `mapstructure:"content"`
}

// FamilyConfig 额外的任务族，会追加在内置任务族之后
type FamilyConfig struct {
	Name    string   `mapstructure:"name"`
	Prefix  string   `mapstructure:"prefix"`
	Topics  []string `mapstructure:"topics"`
	Cleanup string   `mapstructure:"cleanup"`
	Doc     string   `mapstructure:"doc"`
}

type JobConfig struct {
	Family string `mapstructure:"family"`
	Cron   string `mapstructure:"cron"`
	Enable bool   `mapstructure:"enable"`
}

// HistoryConfig 运行记录落库，driver 为 mysql 或 postgres
type HistoryConfig struct {
	Enable bool   `mapstructure:"enable"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("root", ".")
	v.SetDefault("priority", 123)
	v.SetDefault("workers", 4)
	v.SetDefault("log.level", "warn")
	v.SetDefault("history.driver", "mysql")

	plan := make([]map[string]any, 0)
	for _, e := range tasks.DefaultPlan().Entries() {
		plan = append(plan, map[string]any{"name": e.Name, "content": e.Content})
	}
	v.SetDefault("plan", plan)
}

// LoadConfig 加载配置，path 为空时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TASKPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // 自动读取环境变量 如 TASKPLAN_ROOT

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, apperr.Wrap(xerr.CONFIG_ERROR, "config file not found: "+path, err)
			}
			return nil, apperr.Wrap(xerr.CONFIG_ERROR, "read config", err)
		}
	}

	// 显式展开环境变量
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if ok && strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, apperr.Wrap(xerr.CONFIG_ERROR, "decode config", err)
	}
	return &c, nil
}

// BuildPlan 生成传给生成器的计划
func (c *Config) BuildPlan() (tasks.Plan, error) {
	entries := make([]tasks.Entry, 0, len(c.Plan))
	for _, e := range c.Plan {
		entries = append(entries, tasks.Entry{Name: e.Name, Content: e.Content})
	}
	return tasks.NewPlan(entries...)
}

// BuildRegistry 内置任务族加上配置中的任务族
func (c *Config) BuildRegistry() (*tasks.Registry, error) {
	reg, err := tasks.NewRegistry(tasks.DefaultFamilies()...)
	if err != nil {
		return nil, err
	}
	for _, fc := range c.Families {
		f, err := fc.family()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (fc FamilyConfig) family() (tasks.Family, error) {
	topics := make([]core.Topic, 0, len(fc.Topics))
	for _, s := range fc.Topics {
		t, err := core.ParseTopic(s)
		if err != nil {
			return tasks.Family{}, apperr.Wrap(xerr.CONFIG_ERROR, "family "+fc.Name, err)
		}
		topics = append(topics, t)
	}
	policy, err := tasks.ParseCleanupPolicy(fc.Cleanup)
	if err != nil {
		return tasks.Family{}, err
	}
	return tasks.Family{
		Name:    fc.Name,
		Prefix:  fc.Prefix,
		Topics:  topics,
		Cleanup: policy,
		Doc:     fc.Doc,
	}, nil
}
