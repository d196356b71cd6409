package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + optional .env file).
type Config struct {
	Env  string
	Port int

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ZooplaAPIKey string
	PaTMaAPIKey  string
	RapidAPIKey  string

	NominatimBaseURL string
	PostcodesBaseURL string

	GeoCacheTTL    time.Duration
	GeoNegativeTTL time.Duration
	SearchCacheTTL time.Duration

	CrawlLocations []string
	CrawlMaxPages  int
	CrawlInterval  time.Duration
	CrawlWorkers   int
}

// Load reads config from the environment, with a .env file as fallback.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", 4010)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")
	viper.SetDefault("POSTCODES_BASE_URL", "https://api.postcodes.io")
	viper.SetDefault("GEO_CACHE_TTL", "24h")
	viper.SetDefault("GEO_NEGATIVE_TTL", "1h")
	viper.SetDefault("SEARCH_CACHE_TTL", "5m")
	viper.SetDefault("CRAWL_MAX_PAGES", 3)
	viper.SetDefault("CRAWL_INTERVAL", "6h")
	viper.SetDefault("CRAWL_WORKERS", 2)

	cfg := &Config{
		Env:              viper.GetString("APP_ENV"),
		Port:             viper.GetInt("PORT"),
		PostgresDSN:      viper.GetString("PG_DSN"),
		RedisAddr:        viper.GetString("REDIS_ADDR"),
		RedisPassword:    viper.GetString("REDIS_PASSWORD"),
		RedisDB:          viper.GetInt("REDIS_DB"),
		ZooplaAPIKey:     viper.GetString("ZOOPLA_API_KEY"),
		PaTMaAPIKey:      viper.GetString("PATMA_API_KEY"),
		RapidAPIKey:      viper.GetString("RAPIDAPI_KEY"),
		NominatimBaseURL: viper.GetString("NOMINATIM_BASE_URL"),
		PostcodesBaseURL: viper.GetString("POSTCODES_BASE_URL"),
		GeoCacheTTL:      viper.GetDuration("GEO_CACHE_TTL"),
		GeoNegativeTTL:   viper.GetDuration("GEO_NEGATIVE_TTL"),
		SearchCacheTTL:   viper.GetDuration("SEARCH_CACHE_TTL"),
		CrawlLocations:   splitList(viper.GetString("CRAWL_LOCATIONS")),
		CrawlMaxPages:    viper.GetInt("CRAWL_MAX_PAGES"),
		CrawlInterval:    viper.GetDuration("CRAWL_INTERVAL"),
		CrawlWorkers:     viper.GetInt("CRAWL_WORKERS"),
	}
	return cfg, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
