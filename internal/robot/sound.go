package robot

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strconv"

	"github.com/nerrad567/rover-core/internal/process"
	"github.com/nerrad567/rover-core/internal/scripting"
)

// Sound defaults.
const (
	DefaultVolume      = 90
	DefaultMaxParallel = 4
	DefaultPlayer      = "mpg123"
	DefaultMixer       = "amixer"
)

// Mixer range the 0..100 volume is mapped onto.
const (
	mixerMin = -10239
	mixerMax = 400
)

// tuneFiles maps tune names to their file in the assets directory.
var tuneFiles = map[string]string{
	"alarm_clock":    "alarm_clock.mp3",
	"bell":           "bell.mp3",
	"buzzer":         "buzzer.mp3",
	"car_horn":       "car-horn.mp3",
	"cat":            "cat.mp3",
	"dog":            "dog.mp3",
	"duck":           "duck.mp3",
	"engine_revving": "engine-revving.mp3",
	"lion":           "lion.mp3",
	"oh_no":          "oh-no.mp3",
	"robot":          "robot.mp3",
	"robot2":         "robot2.mp3",
	"siren":          "siren.mp3",
	"ta_da":          "tada.mp3",
	"uh_oh":          "uh-oh.mp3",
	"yee_haw":        "yee-haw.mp3",
}

// DefaultTunes returns the built-in tunes located in assetsDir.
func DefaultTunes(assetsDir string) map[string]string {
	out := make(map[string]string, len(tuneFiles))
	for name, file := range tuneFiles {
		out[name] = filepath.Join(assetsDir, file)
	}
	return out
}

// SoundConfig configures Sound.
type SoundConfig struct {
	// Player is the audio player binary, invoked as "player <file>".
	Player string

	// Mixer is the mixer binary, invoked as "mixer cset numid=1 -- <value>".
	Mixer string

	// Tunes maps tune names to files.
	Tunes map[string]string

	MaxParallel   int
	DefaultVolume int
}

// Sound plays named tunes through an external player.
type Sound struct {
	cfg    SoundConfig
	pool   *process.Pool
	logger Logger
}

// NewSound returns a Sound. Zero config fields take the package defaults.
func NewSound(cfg SoundConfig) *Sound {
	if cfg.Player == "" {
		cfg.Player = DefaultPlayer
	}
	if cfg.Mixer == "" {
		cfg.Mixer = DefaultMixer
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = DefaultVolume
	}
	return &Sound{cfg: cfg, pool: process.NewPool(cfg.MaxParallel), logger: noopLogger{}}
}

// SetLogger sets the logger for playback and mixer processes.
func (s *Sound) SetLogger(logger Logger) {
	s.logger = logger
	s.pool.SetLogger(logger)
}

// Tunes returns the configured tune names and files.
func (s *Sound) Tunes() map[string]string {
	return s.cfg.Tunes
}

// PlayTune starts playing a tune and returns without waiting for it.
// Unknown tunes and a saturated player pool are logged, not errors.
func (s *Sound) PlayTune(name string) error {
	file, ok := s.cfg.Tunes[name]
	if !ok {
		s.logger.Warn("sound not found", "tune", name)
		return nil
	}

	_, err := s.pool.Start(context.Background(), process.Config{
		Name:   "tune:" + name,
		Binary: s.cfg.Player,
		Args:   []string{file},
	})
	if errors.Is(err, process.ErrPoolFull) {
		s.logger.Info("too many sounds are playing, skip", "tune", name)
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Debug("playing sound", "tune", name, "file", file)
	return nil
}

// Playing returns the number of tunes currently playing.
func (s *Sound) Playing() int {
	return s.pool.Running()
}

// SetVolume sets the output volume, 0..100, clipping out of range values.
func (s *Sound) SetVolume(ctx context.Context, volume int) error {
	return process.Run(ctx, process.Config{
		Name:   "mixer",
		Binary: s.cfg.Mixer,
		Args:   []string{"cset", "numid=1", "--", strconv.Itoa(MixerValue(volume))},
	}, s.logger)
}

// ResetVolume restores the default volume.
func (s *Sound) ResetVolume(ctx context.Context) error {
	return s.SetVolume(ctx, s.cfg.DefaultVolume)
}

// StopAll stops every playing tune.
func (s *Sound) StopAll() {
	s.pool.StopAll()
}

// MixerValue maps a volume percentage onto the mixer range.
func MixerValue(volume int) int {
	v := scripting.Clip(float64(volume), 0, 100)
	return int(math.Round(scripting.MapValues(v, 0, 100, mixerMin, mixerMax)))
}
