package file

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/regfeed/ingestcore/internal/canon"
)

// Manifest lists the on-disk feed files a ManifestConnector reads, for
// deployments that split a bulk or recent feed across more than one
// file (e.g. one file per upstream regulator). Grounded in the
// teacher's optional-YAML-config idiom (internal/aliasing.Config):
// snake_case keys. A missing file is an error (see LoadManifest).
type Manifest struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	BulkPaths []string `yaml:"bulk_paths"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	RecentPaths []string `yaml:"recent_paths"`
}

// LoadManifest reads and parses a YAML manifest at path. Unlike the
// teacher's aliasing.LoadConfig, a missing or invalid manifest here is
// an error rather than a silent empty config: a connector manifest was
// explicitly requested by the caller (-manifest flag), so a missing
// file means a misconfigured deployment, not an absent optional
// feature.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return &m, nil
}

// ManifestConnector fetches a bulk or recent feed spread across
// multiple files, concatenating each file's records in manifest order.
// It implements the same connector contract as Connector (spec §6):
// no business logic, no hashing, entity_name_norm pre-normalized.
type ManifestConnector struct {
	manifest *Manifest
}

// NewFromManifest constructs a ManifestConnector over m.
func NewFromManifest(m *Manifest) *ManifestConnector {
	return &ManifestConnector{manifest: m}
}

// FetchBulk reads every path in BulkPaths in order and concatenates
// their records.
func (c *ManifestConnector) FetchBulk() ([]canon.Record, error) {
	return readAll(c.manifest.BulkPaths)
}

// FetchRecent reads every path in RecentPaths in order and concatenates
// their records. hours is accepted for connector-contract compliance
// but unused, exactly as Connector.FetchRecent: the engine enforces the
// 72-hour window itself.
func (c *ManifestConnector) FetchRecent(hours int) ([]canon.Record, error) {
	return readAll(c.manifest.RecentPaths)
}

func readAll(paths []string) ([]canon.Record, error) {
	var all []canon.Record

	for _, path := range paths {
		records, err := readJSONLines(path)
		if err != nil {
			return nil, err
		}

		all = append(all, records...)
	}

	return all, nil
}
