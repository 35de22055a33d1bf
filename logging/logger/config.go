package logger

import (
	"github.com/spf13/viper"
)

// Config logger configuration struct
type Config struct {
	Level      int    `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	Output     string `json:"output" yaml:"output"`
	OutputFile string `json:"output_file" yaml:"output_file"`
}

// GetConfig reads the logger section, falling back to info/json/stdout
func GetConfig(v *viper.Viper) *Config {
	cfg := &Config{
		Level:  4,
		Format: "json",
		Output: "stdout",
	}
	if !v.IsSet("logger") {
		return cfg
	}
	if v.IsSet("logger.level") {
		cfg.Level = v.GetInt("logger.level")
	}
	if f := v.GetString("logger.format"); f != "" {
		cfg.Format = f
	}
	if o := v.GetString("logger.output"); o != "" {
		cfg.Output = o
	}
	cfg.OutputFile = v.GetString("logger.output_file")
	return cfg
}
