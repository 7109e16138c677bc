package scraper

import (
	"fmt"
	"strings"
)

// BlockResource is a category of network request the browser can suppress.
type BlockResource string

// Resource kinds understood by the driver.
const (
	ResourceScript     BlockResource = "script"
	ResourceStylesheet BlockResource = "stylesheet"
	ResourceImage      BlockResource = "image"
	ResourceFont       BlockResource = "font"
	ResourceMedia      BlockResource = "media"
	ResourceOther      BlockResource = "other"
	ResourceDocument   BlockResource = "document"
	ResourceManifest   BlockResource = "manifest"
)

var knownResources = []BlockResource{
	ResourceScript,
	ResourceStylesheet,
	ResourceImage,
	ResourceFont,
	ResourceMedia,
	ResourceOther,
	ResourceDocument,
	ResourceManifest,
}

// String returns the wire token for r.
func (r BlockResource) String() string {
	return string(r)
}

// ParseBlockResource converts a token such as "image" into a BlockResource.
// Matching ignores case and surrounding whitespace.
func ParseBlockResource(s string) (BlockResource, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for _, r := range knownResources {
		if string(r) == token {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown block resource %q", s)
}

// ParseBlockResources parses every token, failing on the first unknown one.
func ParseBlockResources(tokens []string) ([]BlockResource, error) {
	out := make([]BlockResource, 0, len(tokens))
	for _, t := range tokens {
		r, err := ParseBlockResource(t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
