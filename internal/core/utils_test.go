package core

import (
	"testing"
	"time"
)

func TestGuessMIME(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"photo.jpg", nil, "image/jpeg"},
		{"PHOTO.JPEG", nil, "image/jpeg"},
		{"leaf.png?x=1", nil, "image/png"},
		{"clip.mov", nil, "video/mp4"},
		{"note.m4a", nil, "audio/m4a"},
		{"noext", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"},
		{"noext", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GuessMIME(tt.name, tt.head); got != tt.want {
				t.Errorf("GuessMIME(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStampedName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := StampedName("stage", "jpg", at); got != "stage_1700000000123.jpg" {
		t.Errorf("StampedName = %q", got)
	}
	if got := StampedName("audio", ".m4a", at); got != "audio_1700000000123.m4a" {
		t.Errorf("StampedName = %q", got)
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"2.5", 2.5, false},
		{" 10 ", 10, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseArea(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseArea(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseArea(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatWait(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{65 * time.Second, "1m05s"},
		{2 * time.Minute, "2m00s"},
	}
	for _, tt := range tests {
		if got := FormatWait(tt.in); got != tt.want {
			t.Errorf("FormatWait(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:3000/":       "http://localhost:3000",
		"http://localhost:3000/api/V1": "http://localhost:3000",
		"  ":                           DefaultAPIBaseURL,
	}
	for in, want := range tests {
		if got := NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevelFor(t *testing.T) {
	if got := LevelFor("warn", true, false); got != "debug" {
		t.Errorf("verbose should win, got %q", got)
	}
	if got := LevelFor("", false, true); got != "warn" {
		t.Errorf("quiet should map to warn, got %q", got)
	}
	if got := LevelFor("error", false, false); got != "error" {
		t.Errorf("configured level should be kept, got %q", got)
	}
	if got := LevelFor("", false, false); got != "info" {
		t.Errorf("default should be info, got %q", got)
	}
}
