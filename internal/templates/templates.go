// Package templates holds the task template catalog served by the
// development backend.
package templates

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"makoto/internal/api"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrNotFound = errors.New("templates: not found")

type Catalog struct {
	templates []api.TaskTemplate
	byID      map[string]int
}

// Load reads a YAML list of templates from path. An empty path or a missing
// file yields the built-in defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("templates %s: %w", path, err)
	}
	return c, nil
}

func Defaults() *Catalog {
	c, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("templates: bad defaults: %v", err))
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var list []api.TaskTemplate
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		return nil, err
	}

	c := &Catalog{byID: make(map[string]int, len(list))}
	for _, t := range list {
		if t.ID == "" {
			return nil, fmt.Errorf("template %q has no id", t.Name)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		c.byID[t.ID] = len(c.templates)
		c.templates = append(c.templates, t)
	}
	return c, nil
}

func (c *Catalog) All() []api.TaskTemplate {
	return append([]api.TaskTemplate(nil), c.templates...)
}

func (c *Catalog) Get(id string) (api.TaskTemplate, error) {
	i, ok := c.byID[id]
	if !ok {
		return api.TaskTemplate{}, ErrNotFound
	}
	return c.templates[i], nil
}

func (c *Catalog) ByCategory(category string) []api.TaskTemplate {
	var out []api.TaskTemplate
	for _, t := range c.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}
