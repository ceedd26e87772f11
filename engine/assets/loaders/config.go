package loaders

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

/**
 * @brief Loads a TOML document. The resource data is the raw text so the
 * engine can decode it into its own config type; the document is parsed once
 * here so a broken file is rejected before anyone reloads from it.
 */
type ConfigLoader struct{}

func (cl *ConfigLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &metadata.Resource{
		Name:     resourceName(path, params),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (cl *ConfigLoader) Unload(*metadata.Resource) error {
	return nil
}
