package visualization

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func TestBrowserURL(t *testing.T) {
	report := filepath.Join(t.TempDir(), "episim-run-001.html")

	tests := []struct {
		name       string
		target     string
		wantPrefix string
		wantErr    bool
	}{
		{"served report", "http://127.0.0.1:8123/", "http://127.0.0.1:8123/", false},
		{"https", "https://example.org/report", "https://example.org/report", false},
		{"local file", report, "file://", false},
		{"other scheme", "javascript://alert(1)", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := browserURL(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("browserURL() = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}

	if runtime.GOOS != "windows" {
		got, _ := browserURL(report)
		if got != "file://"+report {
			t.Errorf("browserURL(%q) = %q", report, got)
		}
	}
}

func TestBrowserCommand(t *testing.T) {
	const u = "http://127.0.0.1:8123/"

	tests := []struct {
		goos     string
		env      string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{"linux", "", "xdg-open", []string{u}, false},
		{"freebsd", "", "xdg-open", []string{u}, false},
		{"darwin", "", "open", []string{u}, false},
		{"windows", "", "cmd", []string{"/c", "start", "", u}, false},
		{"linux", "firefox", "firefox", []string{u}, false},
		{"plan9", "", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.env, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, tt.env, u)
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("browserCommand() = %s %v, want %s %v", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}
