package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	config *viper.Viper
	once   sync.Once
)

func Init() {
	once.Do(func() {
		initialize()
	})
}

func initialize() {
	config = viper.New()
	config.SetConfigName("conf")
	config.AddConfigPath("./conf/")
	config.AddConfigPath("./")
	config.SetConfigType("yml")
	config.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	config.SetEnvKeyReplacer(replacer)
	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
	})

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Println("config file not found use default config")
		} else {
			fmt.Println("config file error")
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log", map[string]interface{}{
		"level":  "debug",
		"output": "stderr",
	})
	v.SetDefault("cache.update_on_read", true)
	v.SetDefault("cache.update_on_write", true)
	v.SetDefault("cache.mm_reconfigure_interval_secs", 0)
	v.SetDefault("cache.try_lock_update", false)
	v.SetDefault("cache.use_combined_lock_for_iterators", false)
	v.SetDefault("cache.rebalance_strategy", "default")
	v.SetDefault("cache.rebalance_min_slabs", 1)
	v.SetDefault("cache.rebalance_diff_ratio", 0.1)
	v.SetDefault("cache.free_alloc_threshold", 0)
	v.SetDefault("cache.tail_slabs", 1)
	v.SetDefault("cache.moving_average_param", 0.3)
	v.SetDefault("cache.hold_off_enabled", true)
	v.SetDefault("cache.decay_threshold", 0.0)
	v.SetDefault("cache.lama_min_threshold", 0.0)
	v.SetDefault("cache.footprint_buffer_size", 20000000)
}

// Get returns the raw value for key, or nil if the config hasn't been
// loaded yet or the key is absent.
func Get(key string) interface{} {
	if config == nil {
		return nil
	}
	return config.Get(key)
}

func GetString(key string) string {
	if config == nil {
		return ""
	}
	return config.GetString(key)
}

func GetBool(key string) bool {
	if config == nil {
		return false
	}
	return config.GetBool(key)
}

func GetInt(key string) int {
	if config == nil {
		return 0
	}
	return config.GetInt(key)
}

func GetFloat64(key string) float64 {
	if config == nil {
		return 0
	}
	return config.GetFloat64(key)
}
