package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog maps source file names to the company and document type recorded on
// every unit ingested from them. Rules are checked in order and the first
// case-insensitive substring match wins.
type Catalog struct {
	Companies     []MatchRule `yaml:"companies"`
	DocumentTypes []MatchRule `yaml:"document_types"`

	DefaultCompany      string `yaml:"default_company"`
	DefaultDocumentType string `yaml:"default_document_type"`
}

// MatchRule assigns Value when a file name contains Contains.
type MatchRule struct {
	Contains string `yaml:"contains"`
	Value    string `yaml:"value"`
}

// DefaultCatalog recognises Alphabet earnings releases and slide decks.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Companies: []MatchRule{
			{Contains: "alphabet", Value: "alphabet"},
		},
		DocumentTypes: []MatchRule{
			{Contains: "release", Value: "earnings-release"},
		},
		DefaultCompany:      "unknown",
		DefaultDocumentType: "earnings-slides",
	}
}

// LoadCatalog reads a YAML catalog. An empty path yields DefaultCatalog.
// Missing defaults in the file are filled from DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	def := DefaultCatalog()
	if c.DefaultCompany == "" {
		c.DefaultCompany = def.DefaultCompany
	}
	if c.DefaultDocumentType == "" {
		c.DefaultDocumentType = def.DefaultDocumentType
	}
	for i, r := range append(append([]MatchRule{}, c.Companies...), c.DocumentTypes...) {
		if strings.TrimSpace(r.Contains) == "" || strings.TrimSpace(r.Value) == "" {
			return nil, fmt.Errorf("catalog rule %d: contains and value are required", i)
		}
	}
	return &c, nil
}

// Company returns the company for a file name.
func (c *Catalog) Company(filename string) string {
	return match(c.Companies, filename, c.DefaultCompany)
}

// DocumentType returns the document type for a file name.
func (c *Catalog) DocumentType(filename string) string {
	return match(c.DocumentTypes, filename, c.DefaultDocumentType)
}

func match(rules []MatchRule, filename, def string) string {
	lower := strings.ToLower(filename)
	for _, r := range rules {
		if strings.Contains(lower, strings.ToLower(r.Contains)) {
			return r.Value
		}
	}
	return def
}
