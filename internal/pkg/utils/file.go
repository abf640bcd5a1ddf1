package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

//SupportAudioExt checks if audio ext is supported
func SupportAudioExt(ext string) bool {
	switch ext {
	case ".wav", ".mp3", ".m4a", ".ogg", ".webm", ".flac", ".aac":
		return true
	}
	return false
}

// SafeFileName strips path elements and unsafe chars from a user provided file name
func SafeFileName(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else if r == ' ' {
			sb.WriteRune('_')
		}
	}
	res := strings.Trim(sb.String(), "._")
	if res == "" {
		return "", fmt.Errorf("empty file name after sanitizing '%s'", name)
	}
	return res, nil
}

// AudioContentType maps audio file ext to mime type, defaults to audio/mpeg
func AudioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	}
	return "audio/mpeg"
}
