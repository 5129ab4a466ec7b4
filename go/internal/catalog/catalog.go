package catalog

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Image is a selectable media reference
type Image struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// Config holds catalog scanning settings
type Config struct {
	Dir               string        `yaml:"dir"`
	URLPrefix         string        `yaml:"url_prefix"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

// DefaultConfig returns default catalog configuration
func DefaultConfig() Config {
	return Config{
		Dir:               "media",
		URLPrefix:         "/images/",
		RefreshInterval:   5 * time.Minute,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
	}
}

// Catalog is an ordered list of images found in a media directory
type Catalog struct {
	config Config
	clock  clockwork.Clock

	mu       sync.RWMutex
	images   []Image
	lastScan time.Time
}

// New creates a catalog. Call Refresh to perform the first scan.
func New(config Config, clock clockwork.Clock) *Catalog {
	return &Catalog{
		config: config,
		clock:  clock,
	}
}

// Refresh rescans the media directory
func (c *Catalog) Refresh() error {
	entries, err := os.ReadDir(c.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read media dir %s: %w", c.config.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !c.allowed(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	images := make([]Image, 0, len(names))
	for i, name := range names {
		images = append(images, Image{
			Index: i,
			Name:  name,
			URL:   c.config.URLPrefix + url.PathEscape(name),
		})
	}

	c.mu.Lock()
	changed := len(images) != len(c.images)
	c.images = images
	c.lastScan = c.clock.Now()
	c.mu.Unlock()

	if changed {
		log.Info().
			Str("dir", c.config.Dir).
			Int("images", len(images)).
			Msg("image catalog refreshed")
	}
	return nil
}

func (c *Catalog) allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range c.config.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// Images returns a copy of the current image list
func (c *Catalog) Images() []Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.images)
}

// Len returns the number of images currently known
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// LastScan returns when the directory was last scanned
func (c *Catalog) LastScan() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScan
}

// Run rescans the directory on the configured interval until ctx is done
func (c *Catalog) Run(ctx context.Context) {
	if c.config.RefreshInterval <= 0 {
		return
	}
	ticker := c.clock.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	log.Info().
		Str("dir", c.config.Dir).
		Dur("interval", c.config.RefreshInterval).
		Msg("image catalog refresh loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("image catalog refresh loop shutting down")
			return
		case <-ticker.Chan():
			if err := c.Refresh(); err != nil {
				log.Error().Err(err).Msg("failed to refresh image catalog")
			}
		}
	}
}
