package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/entropid/
//   - Linux:   ~/.local/share/entropid/
//   - Windows: %APPDATA%\entropid\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDir("Application Support")
	case "linux":
		return linuxDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDir("Application Support")
	case "linux":
		return linuxDir("XDG_CONFIG_HOME", ".config")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDir("Logs")
	case "linux":
		return filepath.Join(linuxDir("XDG_DATA_HOME", ".local", "share"), "logs")
	case "windows":
		return windowsDir("LOCALAPPDATA", "Local")
	default:
		return filepath.Join(fallbackDir(), "logs")
	}
}

// PlatformRuntimeDir returns the platform-specific runtime directory used for
// session index locks and any named pipes a platform source needs.
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "entropid")
		}
		return filepath.Join("/tmp", "entropid-"+userID())
	case "windows":
		return ""
	default:
		return filepath.Join("/tmp", "entropid-"+userID())
	}
}

func macOSDir(sub string) string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", sub, "entropid")
}

func linuxDir(envVar string, fallbackParts ...string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "entropid")
	}
	home, _ := os.UserHomeDir()
	parts := append([]string{home}, fallbackParts...)
	parts = append(parts, "entropid")
	return filepath.Join(parts...)
}

func windowsDir(envVar, fallbackSub string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "entropid")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", fallbackSub, "entropid")
}

func fallbackDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".entropid")
}

func userID() string {
	if uid := os.Getuid(); uid >= 0 {
		return string(rune(uid))
	}
	return "0"
}

// DefaultPaths bundles every default on-disk location for the current
// platform.
type DefaultPaths struct {
	DataDir    string
	ConfigDir  string
	LogDir     string
	RuntimeDir string

	ConfigFile       string
	CalibrationFile  string
	SessionDir       string
	SessionIndexFile string
	LogFile          string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := PlatformDataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()
	runtimeDir := PlatformRuntimeDir()

	return &DefaultPaths{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		LogDir:     logDir,
		RuntimeDir: runtimeDir,

		ConfigFile:       filepath.Join(configDir, "config.toml"),
		CalibrationFile:  filepath.Join(dataDir, "calibration.json"),
		SessionDir:       filepath.Join(dataDir, "sessions"),
		SessionIndexFile: filepath.Join(dataDir, "sessions.db"),
		LogFile:          filepath.Join(logDir, "entropid.log"),
	}
}

// SupportedConfigFormats returns the list of config formats Load accepts via
// auto-detection in callers that shell out to FindConfigFile.
func SupportedConfigFormats() []string {
	return []string{"toml"}
}

// FindConfigFile searches standard locations for a config file, in order:
// the current directory, then the platform config directory.
func FindConfigFile() string {
	paths := GetDefaultPaths()
	searchDirs := []string{".", paths.ConfigDir}

	for _, dir := range searchDirs {
		path := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// HasTPMSupport reports whether the current platform may expose a TPM 2.0
// device the tpm source family can probe.
func HasTPMSupport() bool {
	switch runtime.GOOS {
	case "linux":
		return true
	default:
		return false
	}
}
