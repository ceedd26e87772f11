package loaders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

// Extension of the streamable page blob stored next to a .nanite file.
const BULK_DATA_EXTENSION = ".ubulk"

/**
 * @brief Loads a Nanite resource. Streamable pages are read lazily from the
 * sibling bulk file, which stays open until Unload.
 */
type NaniteLoader struct {
	mu    sync.Mutex
	files map[*metadata.Resource]*os.File
}

func BulkDataPath(path string) string {
	return strings.TrimSuffix(path, ".nanite") + BULK_DATA_EXTENSION
}

func (nl *NaniteLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bulk *nanite.BulkData
	bulkFile, err := os.Open(BulkDataPath(path))
	switch {
	case err == nil:
		info, err := bulkFile.Stat()
		if err != nil {
			bulkFile.Close()
			return nil, err
		}
		bulk = nanite.NewBulkData(bulkFile, info.Size())
	case errors.Is(err, fs.ErrNotExist):
		bulkFile = nil
		core.LogDebug("no bulk data next to %s", path)
	default:
		return nil, err
	}

	res, err := nanite.DeserializeResources(f, bulk)
	if err != nil {
		if bulkFile != nil {
			bulkFile.Close()
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := res.Validate(); err != nil {
		if bulkFile != nil {
			bulkFile.Close()
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	out := &metadata.Resource{
		Name:     resourceName(path, params),
		FullPath: path,
		DataSize: uint64(len(res.RootData)) + uint64(bulk.Size()),
		Data:     res,
	}
	if bulkFile != nil {
		nl.mu.Lock()
		if nl.files == nil {
			nl.files = make(map[*metadata.Resource]*os.File)
		}
		nl.files[out] = bulkFile
		nl.mu.Unlock()
	}
	return out, nil
}

// Unload closes the bulk file of res. Pages can no longer be streamed afterwards.
func (nl *NaniteLoader) Unload(res *metadata.Resource) error {
	nl.mu.Lock()
	f, ok := nl.files[res]
	delete(nl.files, res)
	nl.mu.Unlock()
	if !ok {
		return nil
	}
	return f.Close()
}
