//go:build portaudio

package main

import (
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/portaudio"
)

func registerDevicePlatforms(reg *config.Registry) {
	reg.RegisterPlatform("portaudio", func(config.AudioConfig) (audio.Platform, error) {
		p, err := portaudio.New()
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}
