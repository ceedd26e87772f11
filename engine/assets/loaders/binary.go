package loaders

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

// BinaryLoader reads a file as raw bytes. Bulk page blobs are indexed with it.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &metadata.Resource{
		Name:     resourceName(path, params),
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(*metadata.Resource) error {
	return nil
}

// resourceName picks params["name"] when given, the file name without extension otherwise.
func resourceName(path string, params interface{}) string {
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		return p["name"]
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
