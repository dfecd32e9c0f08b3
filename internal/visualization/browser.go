package visualization

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// OpenBrowser shows target, an http(s) URL or a local report file, in the
// desktop browser. $BROWSER takes precedence over the platform opener.
// It does not wait for the browser to exit.
func OpenBrowser(target string) error {
	u, err := browserURL(target)
	if err != nil {
		return err
	}
	name, args, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), u)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// browserURL turns a report path into a file URL and passes web URLs through.
func browserURL(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	if strings.Contains(target, "://") {
		return "", fmt.Errorf("refusing to open %q: only http, https and local files are supported", target)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving report path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func browserCommand(goos, browserEnv, u string) (string, []string, error) {
	if browserEnv != "" {
		return browserEnv, []string{u}, nil
	}
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{u}, nil
	case "darwin":
		return "open", []string{u}, nil
	case "windows":
		// The empty argument is start's window title.
		return "cmd", []string{"/c", "start", "", u}, nil
	}
	return "", nil, fmt.Errorf("cannot open a browser on %s; open %s manually", goos, u)
}
