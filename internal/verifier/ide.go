package verifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Release types of the IntelliJ artifact repository.
const (
	ReleaseTypeReleases  = "releases"
	ReleaseTypeSnapshots = "snapshots"
	ReleaseTypeNightly   = "nightly"
)

var ideDirPattern = regexp.MustCompile(`^[a-z]+`)

// IDE is one IDE build to verify against, written as edition:version
// (e.g. ideaIU:2023.1.2).
type IDE struct {
	Edition string
	Version string
}

// ParseIDE parses an edition:version token.
func ParseIDE(token string) (IDE, error) {
	edition, ver, ok := strings.Cut(strings.TrimSpace(token), ":")
	edition, ver = strings.TrimSpace(edition), strings.TrimSpace(ver)
	if !ok || edition == "" || ver == "" {
		return IDE{}, fmt.Errorf("invalid IDE version %q: expected <edition>:<version>", token)
	}
	if !ideDirPattern.MatchString(edition) {
		return IDE{}, fmt.Errorf("invalid IDE edition %q: must start with a lowercase letter", edition)
	}
	if strings.ContainsAny(edition+ver, `/\`) {
		return IDE{}, fmt.Errorf("invalid IDE version %q: must not contain path separators", token)
	}
	return IDE{Edition: edition, Version: ver}, nil
}

// ParseIDEs parses newline separated tokens, skipping blank lines.
func ParseIDEs(input string) ([]IDE, error) {
	var ides []IDE
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ide, err := ParseIDE(line)
		if err != nil {
			return nil, err
		}
		ides = append(ides, ide)
	}
	return ides, nil
}

// String returns the edition:version token
func (i IDE) String() string {
	return i.Edition + ":" + i.Version
}

// Name is the archive and directory base name, e.g. ideaIU-2023.1.2.
func (i IDE) Name() string {
	return i.Edition + "-" + i.Version
}

// Dir is the repository group directory: the edition's leading lowercase
// letters (ideaIU -> idea).
func (i IDE) Dir() string {
	return ideDirPattern.FindString(i.Edition)
}

// ReleaseType selects the repository section the build is published in.
func (i IDE) ReleaseType() string {
	return ReleaseTypeFor(i.Version)
}

// DownloadURL builds the archive URL below repoURL.
func (i IDE) DownloadURL(repoURL string) string {
	return fmt.Sprintf("%s/%s/com/jetbrains/intellij/%s/%s/%s/%s.zip",
		strings.TrimRight(repoURL, "/"), i.ReleaseType(), i.Dir(), i.Edition, i.Version, i.Name())
}

// ReleaseTypeFor maps a build version to its release type:
//
//	2019.3-EAP-SNAPSHOT -> snapshots
//	2019.3-SNAPSHOT     -> nightly
//	2019.3              -> releases
func ReleaseTypeFor(v string) string {
	switch {
	case strings.HasSuffix(v, "-EAP-SNAPSHOT"),
		strings.HasSuffix(v, "-EAP-CANDIDATE-SNAPSHOT"),
		strings.HasSuffix(v, "-CUSTOM-SNAPSHOT"):
		return ReleaseTypeSnapshots
	case strings.HasSuffix(v, "-SNAPSHOT"):
		return ReleaseTypeNightly
	default:
		return ReleaseTypeReleases
	}
}
