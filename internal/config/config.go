package config

import (
	"fmt"
	"time"
)

// Spatial holds the tunables of the gain model and the motion loop. The
// falloff shape and floor are deliberately configuration rather than
// constants: deployments have shipped with linear and quadratic falloffs
// and floors anywhere between 0.05 and 0.5.
type Spatial struct {
	Radius       float64
	GainFloor    float64
	GainExponent float64
	TickInterval time.Duration
	OrbitPeriod  int
	PersistEvery int
}

type Config struct {
	ServerAddr        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	NTPHost           string
	ResyncInterval    time.Duration
	TranscodeEndpoint string
	AllowedOrigins    []string
	Spatial           Spatial
}

func NewConfig(serverAddr, redisAddr, ntpHost, transcodeEndpoint string, allowedOrigins []string, spatial Spatial) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if spatial.Radius <= 0 {
		return nil, fmt.Errorf("spatial radius must be positive, got %v", spatial.Radius)
	}
	if spatial.GainFloor < 0 || spatial.GainFloor >= 1 {
		return nil, fmt.Errorf("gain floor must be in [0, 1), got %v", spatial.GainFloor)
	}
	if spatial.GainExponent <= 0 {
		return nil, fmt.Errorf("gain exponent must be positive, got %v", spatial.GainExponent)
	}
	if spatial.TickInterval <= 0 {
		return nil, fmt.Errorf("spatial tick interval must be positive, got %v", spatial.TickInterval)
	}
	if spatial.OrbitPeriod <= 0 {
		return nil, fmt.Errorf("orbit period must be positive, got %v", spatial.OrbitPeriod)
	}
	if spatial.PersistEvery <= 0 {
		return nil, fmt.Errorf("persist cadence must be positive, got %v", spatial.PersistEvery)
	}

	return &Config{
		ServerAddr:        serverAddr,
		RedisAddr:         redisAddr,
		NTPHost:           ntpHost,
		ResyncInterval:    5 * time.Minute,
		TranscodeEndpoint: transcodeEndpoint,
		AllowedOrigins:    allowedOrigins,
		Spatial:           spatial,
	}, nil
}

// DefaultSpatial is the configuration used unless flags override it: linear
// falloff with a 0.1 floor on a radius-5 circle, a 100ms motion tick, one
// revolution every 100 ticks, persistence every 30th tick.
func DefaultSpatial() Spatial {
	return Spatial{
		Radius:       5.0,
		GainFloor:    0.1,
		GainExponent: 1,
		TickInterval: 100 * time.Millisecond,
		OrbitPeriod:  100,
		PersistEvery: 30,
	}
}
