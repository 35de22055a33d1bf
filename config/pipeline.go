package config

import (
	"time"

	"github.com/spf13/viper"
)

// Pipeline search pipeline settings
type Pipeline struct {
	Deadline         time.Duration
	ExtractTimeout   time.Duration
	NarrationTimeout time.Duration
	PageSize         int
	DefaultLanguage  string
	DefaultRegion    string
	Workers          int
	QueueSize        int
}

// Jobs job store and dedup policy
type Jobs struct {
	TTL         time.Duration
	FreshWindow time.Duration
	StaleAfter  time.Duration
	AwaitPoll   time.Duration
}

// Realtime subscription manager settings
type Realtime struct {
	SendBuffer    int
	IntentTTL     time.Duration
	SweepInterval time.Duration
	RelayChannel  string
	ReplayTTL     time.Duration
}

// Enrichment background enrichment settings
type Enrichment struct {
	Enabled bool
	LockTTL time.Duration
	LinkTTL time.Duration
	BaseURL string
}

func getPipelineConfig(v *viper.Viper) *Pipeline {
	return &Pipeline{
		Deadline:         getDurationOrDefault(v, "pipeline.deadline", 30*time.Second),
		ExtractTimeout:   getDurationOrDefault(v, "pipeline.extract_timeout", 4*time.Second),
		NarrationTimeout: getDurationOrDefault(v, "pipeline.narration_timeout", 20*time.Second),
		PageSize:         getIntOrDefault(v, "pipeline.page_size", 10),
		DefaultLanguage:  getStringOrDefault(v, "pipeline.default_language", "en"),
		DefaultRegion:    getStringOrDefault(v, "pipeline.default_region", "US"),
		Workers:          getIntOrDefault(v, "pipeline.workers", 16),
		QueueSize:        getIntOrDefault(v, "pipeline.queue_size", 256),
	}
}

func getJobsConfig(v *viper.Viper) *Jobs {
	return &Jobs{
		TTL:         getDurationOrDefault(v, "jobs.ttl", 30*time.Minute),
		FreshWindow: getDurationOrDefault(v, "jobs.fresh_window", 5*time.Minute),
		StaleAfter:  getDurationOrDefault(v, "jobs.stale_after", 90*time.Second),
		AwaitPoll:   getDurationOrDefault(v, "jobs.await_poll", 150*time.Millisecond),
	}
}

func getRealtimeConfig(v *viper.Viper) *Realtime {
	return &Realtime{
		SendBuffer:    getIntOrDefault(v, "realtime.send_buffer", 64),
		IntentTTL:     getDurationOrDefault(v, "realtime.intent_ttl", 2*time.Minute),
		SweepInterval: getDurationOrDefault(v, "realtime.sweep_interval", 30*time.Second),
		RelayChannel:  v.GetString("realtime.relay_channel"),
		ReplayTTL:     getDurationOrDefault(v, "realtime.replay_ttl", 30*time.Minute),
	}
}

func getEnrichmentConfig(v *viper.Viper) *Enrichment {
	return &Enrichment{
		Enabled: getBoolOrDefault(v, "enrichment.enabled", true),
		LockTTL: getDurationOrDefault(v, "enrichment.lock_ttl", 30*time.Second),
		LinkTTL: getDurationOrDefault(v, "enrichment.link_ttl", 24*time.Hour),
		BaseURL: getStringOrDefault(v, "enrichment.base_url", "https://www.google.com/maps/search/"),
	}
}
