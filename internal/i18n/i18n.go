// Package i18n renders localized reply strings per Arabic dialect.
package i18n

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultDialect is used for unknown dialects and missing keys.
const DefaultDialect = "pal"

// Dialects lists the supported dialect codes.
var Dialects = []string{"pal", "egy", "khg"}

//go:embed messages.yaml
var embedded []byte

// Catalog maps dialect to key to template.
type Catalog struct {
	messages map[string]map[string]string
}

// Parse reads a YAML catalog. The default dialect must be present.
func Parse(data []byte) (*Catalog, error) {
	var m map[string]map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	if _, ok := m[DefaultDialect]; !ok {
		return nil, fmt.Errorf("message catalog has no %q dialect", DefaultDialect)
	}
	return &Catalog{messages: m}, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// Render looks up key for dialect and substitutes {name} placeholders from
// params. An unknown dialect uses the default one; a key missing from the
// dialect falls back to the default dialect, then to the key itself.
func (c *Catalog) Render(dialect, key string, params map[string]string) string {
	tmpl, ok := c.messages[dialect][key]
	if !ok {
		tmpl, ok = c.messages[DefaultDialect][key]
	}
	if !ok {
		return key
	}
	if len(params) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Has reports whether key exists in the default dialect.
func (c *Catalog) Has(key string) bool {
	_, ok := c.messages[DefaultDialect][key]
	return ok
}

// Render uses the embedded catalog.
func Render(dialect, key string, params map[string]string) string {
	return Default().Render(dialect, key, params)
}

// ValidDialect reports whether d is a supported dialect code.
func ValidDialect(d string) bool {
	for _, x := range Dialects {
		if x == d {
			return true
		}
	}
	return false
}
