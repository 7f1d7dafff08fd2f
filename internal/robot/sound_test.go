package robot

import (
	"context"
	"testing"
)

func TestMixerValue(t *testing.T) {
	tests := []struct {
		volume int
		want   int
	}{
		{0, mixerMin},
		{100, mixerMax},
		{-5, mixerMin},
		{150, mixerMax},
	}
	for _, tt := range tests {
		if got := MixerValue(tt.volume); got != tt.want {
			t.Errorf("MixerValue(%d) = %d, want %d", tt.volume, got, tt.want)
		}
	}
}

func TestSound_PlayTune(t *testing.T) {
	s := NewSound(SoundConfig{
		Player: "/bin/true",
		Tunes:  map[string]string{"bell": "bell.mp3"},
	})

	if err := s.PlayTune("bell"); err != nil {
		t.Fatalf("PlayTune(bell) error = %v", err)
	}
	waitFor(t, "player exit", func() bool { return s.Playing() == 0 })

	if err := s.PlayTune("missing"); err != nil {
		t.Errorf("PlayTune(missing) error = %v, want nil", err)
	}
}

func TestSound_PlayTuneSkipsWhenSaturated(t *testing.T) {
	s := NewSound(SoundConfig{
		Player:      "/bin/sleep",
		Tunes:       map[string]string{"long": "5"},
		MaxParallel: 1,
	})
	defer s.StopAll()

	if err := s.PlayTune("long"); err != nil {
		t.Fatalf("first PlayTune error = %v", err)
	}
	if err := s.PlayTune("long"); err != nil {
		t.Errorf("second PlayTune error = %v, want nil", err)
	}
	if got := s.Playing(); got != 1 {
		t.Errorf("Playing() = %d, want 1", got)
	}
}

func TestSound_SetVolume(t *testing.T) {
	ok := NewSound(SoundConfig{Mixer: "/bin/true"})
	if err := ok.SetVolume(context.Background(), 50); err != nil {
		t.Errorf("SetVolume() error = %v", err)
	}
	if err := ok.ResetVolume(context.Background()); err != nil {
		t.Errorf("ResetVolume() error = %v", err)
	}

	failing := NewSound(SoundConfig{Mixer: "/bin/false"})
	if err := failing.SetVolume(context.Background(), 50); err == nil {
		t.Error("SetVolume() with failing mixer should error")
	}
}
