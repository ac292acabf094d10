package version

import "strings"

// NextPluginVersion decides the plugin version that accompanies a platform
// upgrade from oldPlatform to newPlatform. Only the highest-order component
// that grew is considered:
//
//	Platform: 2022.3.2 -> 2023.1.0   Plugin: 0.2.6 -> 1.0.0
//	Platform: 2022.1.1 -> 2022.2.0   Plugin: 0.2.6 -> 0.3.0
//	Platform: 2022.3.2 -> 2022.3.3   Plugin: 0.2.6 -> 0.2.7
func NextPluginVersion(plugin, oldPlatform, newPlatform Version) Version {
	switch {
	case newPlatform.Major() > oldPlatform.Major():
		return plugin.incMajor()
	case newPlatform.Minor() > oldPlatform.Minor():
		return plugin.incMinor()
	case newPlatform.Patch() > oldPlatform.Patch():
		return plugin.incPatch()
	default:
		return plugin
	}
}

// DefaultChannel is the marketplace channel for versions without a prerelease label.
const DefaultChannel = "default"

// ReleaseChannel returns the marketplace channel a plugin version publishes to:
// the prerelease label up to its first dot, lowercased ("2.1.7-alpha.3" -> "alpha").
func ReleaseChannel(plugin Version) string {
	pre := plugin.Prerelease()
	if i := strings.IndexByte(pre, '.'); i >= 0 {
		pre = pre[:i]
	}
	if pre == "" {
		return DefaultChannel
	}
	return strings.ToLower(pre)
}
