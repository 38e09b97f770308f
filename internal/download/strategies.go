package download

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lyrebird/internal/services/ytdlp"
)

// Kind selects the mechanism a strategy uses to fetch audio.
type Kind string

const (
	// KindDownloader runs the external downloader binary.
	KindDownloader Kind = "downloader"
	// KindHLSDirect fetches an HLS playlist and its segments directly.
	KindHLSDirect Kind = "hls-direct"
)

// Strategy is one fully specified download attempt. Strategies that require
// authentication carry an explicit flag; nothing is inferred from names.
type Strategy struct {
	Name          string              `yaml:"name"`
	Kind          Kind                `yaml:"kind"`
	Format        string              `yaml:"format"`
	AudioFormat   string              `yaml:"audio_format"`
	ClientProfile ytdlp.ClientProfile `yaml:"client_profile"`
	RequiresAuth  bool                `yaml:"requires_auth"`
	SocketTimeout time.Duration       `yaml:"socket_timeout"`
	Retries       int                 `yaml:"retries"`
}

// DefaultStrategies returns the built-in strategy order: high-fidelity
// anonymous attempts first, then alternate client identities, then
// authenticated variants, and finally the direct HLS path.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:          "bestaudio-wav",
			Kind:          KindDownloader,
			Format:        "bestaudio/best",
			AudioFormat:   "wav",
			ClientProfile: ytdlp.ProfileWeb,
			SocketTimeout: 30 * time.Second,
			Retries:       3,
		},
		{
			Name:          "android-client",
			Kind:          KindDownloader,
			Format:        "bestaudio/best",
			AudioFormat:   "wav",
			ClientProfile: ytdlp.ProfileAndroid,
			SocketTimeout: 30 * time.Second,
			Retries:       2,
		},
		{
			Name:          "ios-client",
			Kind:          KindDownloader,
			Format:        "bestaudio/best",
			AudioFormat:   "wav",
			ClientProfile: ytdlp.ProfileIOS,
			SocketTimeout: 30 * time.Second,
			Retries:       2,
		},
		{
			Name:          "cookies-bestaudio",
			Kind:          KindDownloader,
			Format:        "bestaudio/best",
			AudioFormat:   "wav",
			ClientProfile: ytdlp.ProfileWeb,
			RequiresAuth:  true,
			SocketTimeout: 45 * time.Second,
			Retries:       3,
		},
		{
			Name:          "cookies-compat",
			Kind:          KindDownloader,
			Format:        "worstaudio/worst",
			AudioFormat:   "wav",
			ClientProfile: ytdlp.ProfileWeb,
			RequiresAuth:  true,
			SocketTimeout: 60 * time.Second,
			Retries:       2,
		},
		{
			Name: "hls-direct",
			Kind: KindHLSDirect,
		},
	}
}

type strategyFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// LoadStrategies reads a strategy list from a YAML file, replacing the
// built-in order. Operators use this to reorder or disable strategies
// without a rebuild.
func LoadStrategies(path string) ([]Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("download: reading strategies file: %w", err)
	}
	var doc strategyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("download: parsing strategies file: %w", err)
	}
	if len(doc.Strategies) == 0 {
		return nil, fmt.Errorf("download: strategies file %s defines no strategies", path)
	}
	for i := range doc.Strategies {
		s := &doc.Strategies[i]
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("download: strategy %d has no name", i)
		}
		if s.Kind == "" {
			s.Kind = KindDownloader
		}
		if s.Kind != KindDownloader && s.Kind != KindHLSDirect {
			return nil, fmt.Errorf("download: strategy %q has unknown kind %q", s.Name, s.Kind)
		}
	}
	return doc.Strategies, nil
}
