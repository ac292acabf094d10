package files

import (
	"context"
	"fmt"
	"regexp"

	"github.com/magiconair/properties"

	"github.com/schaermu/ijsync/internal/version"
)

// Recognized keys of the build properties file.
const (
	KeyPluginVersion             = "pluginVersion"
	KeyPluginVerifierIdeVersions = "pluginVerifierIdeVersions"
	KeyPlatformVersion           = "platformVersion"
)

type propertiesOutcome struct {
	current version.Version
	next    version.Version
	written bool
}

// syncProperties bumps the plugin version and points the platform fields at
// newPlatform. It is a no-op when the recorded platform already equals it.
func (s *Synchronizer) syncProperties(ctx context.Context, path string, newPlatform version.Version) (propertiesOutcome, error) {
	rel := s.rel(path)
	data, err := readFile(path)
	if err != nil {
		return propertiesOutcome{}, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes([]byte(data))
	if err != nil {
		return propertiesOutcome{}, fmt.Errorf("failed to parse %s: %w", rel, err)
	}

	plugin := s.parseField(props, rel, KeyPluginVersion)
	verifierIDE := s.parseField(props, rel, KeyPluginVerifierIdeVersions)
	platform := s.parseField(props, rel, KeyPlatformVersion)

	s.logger.Debug("recorded versions",
		"file", rel,
		"plugin", plugin.String(),
		"verifier_ide", verifierIDE.String(),
		"platform", platform.String())

	out := propertiesOutcome{current: platform, next: version.Zero}
	if platform.Equal(newPlatform) {
		s.logger.Info("skipping properties file, versions same", "file", rel, "version", platform.String())
		return out, nil
	}

	next := version.NextPluginVersion(plugin, platform, newPlatform)
	s.logger.Debug("next plugin version", "version", next.String())
	out.next = next

	result := replaceProperty(data, KeyPluginVersion, plugin, next)
	result = replaceProperty(result, KeyPluginVerifierIdeVersions, verifierIDE, newPlatform)
	result = replaceProperty(result, KeyPlatformVersion, platform, newPlatform)

	if result == data {
		s.logger.Info("properties file already up to date", "file", rel)
		return out, nil
	}
	if err := s.apply(ctx, path, data, result); err != nil {
		return out, err
	}
	out.written = true
	return out, nil
}

// parseField reads a version field. Missing or unparsable values are logged
// and degrade to version.Zero.
func (s *Synchronizer) parseField(props *properties.Properties, file, key string) version.Version {
	raw, ok := props.Get(key)
	if !ok {
		s.logger.Warn("version field missing", "file", file, "key", key)
		return version.Zero
	}
	v, err := version.Parse(raw)
	if err != nil {
		s.logger.Warn("failed to parse version field", "file", file, "key", key, "error", err)
		return version.Zero
	}
	return v
}

// replaceProperty rewrites the value of every `key = old` line to new,
// keeping the separator and line ending as written. Matches are anchored at
// both line ends so longer values sharing a prefix are left alone.
func replaceProperty(data, key string, from, to version.Version) string {
	re := regexp.MustCompile(`(?m)^(` + regexp.QuoteMeta(key) + `[ \t]*=[ \t]*)` + regexp.QuoteMeta(from.String()) + `([ \t]*\r?)$`)
	return re.ReplaceAllString(data, "${1}"+to.String()+"${2}")
}
