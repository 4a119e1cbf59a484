//go:build !portaudio

package main

import "github.com/MrWong99/voxdesk/internal/config"

// registerDevicePlatforms is a no-op without the portaudio build tag; only
// the null backend is available.
func registerDevicePlatforms(*config.Registry) {}
