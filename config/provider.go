package config

import (
	"time"

	"github.com/spf13/viper"
)

// Provider external geo-search provider settings
type Provider struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	CacheTTL        time.Duration
	BreakerRequests uint32
	BreakerInterval time.Duration
	BreakerTimeout  time.Duration
}

// LLM language model settings. An empty APIKey selects the heuristic collaborators.
type LLM struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ranking default ranking weights, each in [0,1]
type Ranking struct {
	Rating       float64
	Reviews      float64
	Distance     float64
	OpenBoost    float64
	CuisineMatch float64
}

func getProviderConfig(v *viper.Viper) *Provider {
	return &Provider{
		BaseURL:         v.GetString("provider.base_url"),
		APIKey:          v.GetString("provider.api_key"),
		Timeout:         getDurationOrDefault(v, "provider.timeout", 8*time.Second),
		CacheTTL:        getDurationOrDefault(v, "provider.cache_ttl", 10*time.Minute),
		BreakerRequests: uint32(getIntOrDefault(v, "provider.breaker.max_requests", 5)),
		BreakerInterval: getDurationOrDefault(v, "provider.breaker.interval", 30*time.Second),
		BreakerTimeout:  getDurationOrDefault(v, "provider.breaker.timeout", 10*time.Second),
	}
}

func getLLMConfig(v *viper.Viper) *LLM {
	return &LLM{
		APIKey:  v.GetString("llm.api_key"),
		BaseURL: v.GetString("llm.base_url"),
		Model:   getStringOrDefault(v, "llm.model", "gpt-4o-mini"),
		Timeout: getDurationOrDefault(v, "llm.timeout", 6*time.Second),
	}
}

func getRankingConfig(v *viper.Viper) *Ranking {
	return &Ranking{
		Rating:       getFloat64OrDefault(v, "ranking.rating", 0.35),
		Reviews:      getFloat64OrDefault(v, "ranking.reviews", 0.15),
		Distance:     getFloat64OrDefault(v, "ranking.distance", 0.25),
		OpenBoost:    getFloat64OrDefault(v, "ranking.open_boost", 0.1),
		CuisineMatch: getFloat64OrDefault(v, "ranking.cuisine_match", 0.15),
	}
}
