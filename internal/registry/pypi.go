package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
	"github.com/felixgeelhaar/pessimist/internal/version"
)

// DefaultIndexURL is the base of the PyPI JSON API.
const DefaultIndexURL = "https://pypi.org/pypi"

// PyPI queries a JSON API compatible with pypi.org/pypi/<name>/json.
type PyPI struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// NewPyPI creates a client for the index at baseURL (DefaultIndexURL when empty).
func NewPyPI(baseURL string, timeout time.Duration) *PyPI {
	if baseURL == "" {
		baseURL = DefaultIndexURL
	}
	return &PyPI{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type projectDocument struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type releaseFile struct {
	Filename string `json:"filename"`
	Yanked   bool   `json:"yanked"`
}

// ResolveVersions fetches every release of name. Releases with no files or
// with only yanked files are left out, as are versions that cannot be ordered.
func (p *PyPI) ResolveVersions(ctx context.Context, name string) (*Package, error) {
	logger := log.OrDefault(p.Logger)
	start := time.Now()

	endpoint := fmt.Sprintf("%s/%s/json", p.BaseURL, url.PathEscape(requirement.Canonicalize(name)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, perrors.NewRegistryNetworkError(name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	httpClient := p.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		p.Metrics.ObserveLookup("index", false, time.Since(start))
		return nil, perrors.NewRegistryNetworkError(name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		p.Metrics.ObserveLookup("index", false, time.Since(start))
		return nil, perrors.NewPackageNotFoundError(name)
	case resp.StatusCode != http.StatusOK:
		p.Metrics.ObserveLookup("index", false, time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, perrors.NewRegistryNetworkError(name,
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	var doc projectDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		p.Metrics.ObserveLookup("index", false, time.Since(start))
		return nil, perrors.Wrap(perrors.ErrCodeRegistryDecode,
			fmt.Sprintf("invalid index response for %s", name), err)
	}
	p.Metrics.ObserveLookup("index", true, time.Since(start))

	versions := make([]requirement.Version, 0, len(doc.Releases))
	for raw, files := range doc.Releases {
		if !hasInstallableFile(files) {
			continue
		}
		v, err := requirement.ParseVersion(raw)
		if err != nil {
			logger.Debug("skipping unsupported version", "package", name, "version", raw, "error", err)
			continue
		}
		versions = append(versions, v)
	}

	pkgName := doc.Info.Name
	if pkgName == "" {
		pkgName = name
	}
	logger.Debug("fetched releases", "package", pkgName, "total", len(doc.Releases), "usable", len(versions))
	return NewPackage(pkgName, versions), nil
}

func hasInstallableFile(files []releaseFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}
	return false
}
