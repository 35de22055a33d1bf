package config

import (
	"time"

	"github.com/spf13/viper"
)

// Data shared store settings
type Data struct {
	Redis *Redis
}

// Redis redis config struct. An empty Addr selects the in-process store.
type Redis struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	Db           int           `json:"db" yaml:"db"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

func getDataConfig(v *viper.Viper) *Data {
	return &Data{
		Redis: &Redis{
			Addr:         v.GetString("data.redis.addr"),
			Username:     v.GetString("data.redis.username"),
			Password:     v.GetString("data.redis.password"),
			Db:           v.GetInt("data.redis.db"),
			KeyPrefix:    getStringOrDefault(v, "data.redis.key_prefix", "placesearch"),
			ReadTimeout:  getDurationOrDefault(v, "data.redis.read_timeout", time.Second),
			WriteTimeout: getDurationOrDefault(v, "data.redis.write_timeout", time.Second),
			DialTimeout:  getDurationOrDefault(v, "data.redis.dial_timeout", 2*time.Second),
		},
	}
}
