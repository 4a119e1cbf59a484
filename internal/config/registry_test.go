package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/pkg/audio"
	audiomock "github.com/MrWong99/voxdesk/pkg/audio/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
	livemock "github.com/MrWong99/voxdesk/pkg/provider/live/mock"
)

func TestRegistry_Transport(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	var got config.AssistantConfig
	r.RegisterTransport("gemini-live", func(_ context.Context, cfg config.AssistantConfig) (live.Transport, error) {
		got = cfg
		return &livemock.Transport{}, nil
	})

	tr, err := r.CreateTransport(context.Background(), config.AssistantConfig{Transport: "gemini-live", APIKey: "k"})
	if err != nil || tr == nil {
		t.Fatalf("CreateTransport = %v, %v", tr, err)
	}
	if got.APIKey != "k" {
		t.Errorf("factory saw %+v", got)
	}

	_, err = r.CreateTransport(context.Background(), config.AssistantConfig{Transport: "openai-realtime"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if names := r.Transports(); len(names) != 1 || names[0] != "gemini-live" {
		t.Errorf("Transports = %v", names)
	}
}

func TestRegistry_Platform(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterPlatform("null", func(config.AudioConfig) (audio.Platform, error) {
		return &audiomock.Platform{}, nil
	})

	if _, err := r.CreatePlatform(config.AudioConfig{Backend: "null"}); err != nil {
		t.Errorf("CreatePlatform(null): %v", err)
	}
	if _, err := r.CreatePlatform(config.AudioConfig{Backend: "portaudio"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
