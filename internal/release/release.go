package release

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/schaermu/ijsync/internal/fetch"
	"github.com/schaermu/ijsync/internal/version"
)

// DefaultMetadataURL lists IntelliJ IDEA Ultimate releases.
const DefaultMetadataURL = "https://data.services.jetbrains.com/products?code=IIU&release.type=release"

// DefaultVerifierReleaseURL is the GitHub "latest release" endpoint of the plugin verifier.
const DefaultVerifierReleaseURL = "https://api.github.com/repos/JetBrains/intellij-plugin-verifier/releases/latest"

// Product is one entry of the release metadata response.
type Product struct {
	Name     string           `json:"name"`
	Code     string           `json:"code"`
	Releases []ProductRelease `json:"releases"`
}

// ProductRelease is a single published build of a product.
type ProductRelease struct {
	Version string `json:"version"`
	Type    string `json:"type"`
}

// VerifierRelease describes the downloadable verifier jar of a GitHub release.
type VerifierRelease struct {
	Version     string
	AssetName   string
	DownloadURL string
}

// Resolver looks up release information from remote metadata endpoints.
type Resolver struct {
	client             *fetch.Client
	metadataURL        string
	verifierReleaseURL string
	logger             *slog.Logger
}

// NewResolver creates a resolver. Empty URLs select the defaults.
func NewResolver(client *fetch.Client, metadataURL, verifierReleaseURL string, logger *slog.Logger) *Resolver {
	if metadataURL == "" {
		metadataURL = DefaultMetadataURL
	}
	if verifierReleaseURL == "" {
		verifierReleaseURL = DefaultVerifierReleaseURL
	}
	return &Resolver{
		client:             client,
		metadataURL:        metadataURL,
		verifierReleaseURL: verifierReleaseURL,
		logger:             logger,
	}
}

// Latest returns the greatest platform version across all listed products.
// It returns version.Zero when no listed version parses.
func (r *Resolver) Latest(ctx context.Context) (version.Version, error) {
	var products []Product
	if err := r.client.GetJSON(ctx, r.metadataURL, nil, &products); err != nil {
		return version.Zero, fmt.Errorf("failed to fetch release metadata: %w", err)
	}

	var versions []version.Version
	for _, p := range products {
		r.logger.Debug("release metadata product", "name", p.Name, "code", p.Code, "releases", len(p.Releases))
		for _, rel := range p.Releases {
			v, err := version.Parse(rel.Version)
			if err != nil {
				r.logger.Debug("skipping unparsable release version", "version", rel.Version)
				continue
			}
			versions = append(versions, v)
		}
	}

	latest := version.Max(versions)
	r.logger.Debug("resolved latest platform version", "version", latest.String(), "candidates", len(versions))
	return latest, nil
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// LatestVerifier resolves the newest verifier release and its first asset.
func (r *Resolver) LatestVerifier(ctx context.Context) (VerifierRelease, error) {
	var rel githubRelease
	header := http.Header{"Accept": {"application/vnd.github+json"}}
	if err := r.client.GetJSON(ctx, r.verifierReleaseURL, header, &rel); err != nil {
		return VerifierRelease{}, fmt.Errorf("failed to fetch latest verifier release: %w", err)
	}
	if len(rel.Assets) == 0 {
		return VerifierRelease{}, fmt.Errorf("verifier release %q has no assets", rel.TagName)
	}
	return VerifierRelease{
		Version:     strings.TrimLeft(rel.TagName, "v"),
		AssetName:   rel.Assets[0].Name,
		DownloadURL: rel.Assets[0].BrowserDownloadURL,
	}, nil
}
