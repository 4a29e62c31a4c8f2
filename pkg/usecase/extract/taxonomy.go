package extract

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// DefaultCategories is the taxonomy used when no file is configured.
var DefaultCategories = []string{
	"preference",
	"fact",
	"decision",
	"relationship",
	"task",
}

type taxonomyFile struct {
	Categories []string `yaml:"categories"`
}

// LoadTaxonomy reads a category taxonomy from a YAML file. It returns
// DefaultCategories when path is empty.
func LoadTaxonomy(path string) ([]string, error) {
	if path == "" {
		return DefaultCategories, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read taxonomy file", goerr.V("path", path))
	}

	var tf taxonomyFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, goerr.Wrap(err, "failed to parse taxonomy file", goerr.V("path", path))
	}
	if len(tf.Categories) == 0 {
		return nil, goerr.New("taxonomy file has no categories", goerr.V("path", path))
	}

	return tf.Categories, nil
}
