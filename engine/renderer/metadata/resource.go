package metadata

import (
	"fmt"

	"github.com/spaghettifunk/instancer/engine/core"
)

type ResourceType uint8

/** @brief Pre-defined resource types. */
const (
	/** @brief Text resource type. */
	ResourceTypeText ResourceType = iota
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Serialized instance data store. */
	ResourceTypeInstanceData
	/** @brief Nanite resource (root page, hierarchy and streaming descriptors). */
	ResourceTypeNanite
	/** @brief Application configuration. */
	ResourceTypeConfig
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeText:
		return "text"
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeInstanceData:
		return "instance data"
	case ResourceTypeNanite:
		return "nanite"
	case ResourceTypeConfig:
		return "config"
	case ResourceTypeCustom:
		return "custom"
	}
	return fmt.Sprintf("ResourceType(%d)", uint8(t))
}

/** @brief A magic number indicating the file as an instancer binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/**
 * @brief The header data for binary resource types.
 */
type ResourceHeader struct {
	/** @brief A magic number indicating the file as an instancer binary file. */
	MagicNumber uint32
	/** @brief The resource type. Maps to the enum resource_type. */
	ResourceType ResourceType
	/** @brief The format version this resource uses. */
	Version uint8
	/** @brief Reserved for future header data. */
	Reserved uint16
}

/**
 * @brief Checks that the header starts a resource of the given type written
 * with a format version no newer than maxVersion.
 */
func (h ResourceHeader) Check(resourceType ResourceType, maxVersion uint8) error {
	if h.MagicNumber != ResourceMagic {
		return core.ErrBadMagic
	}
	if h.ResourceType != resourceType {
		return fmt.Errorf("resource is %s, expected %s", h.ResourceType, resourceType)
	}
	if h.Version > maxVersion {
		return fmt.Errorf("%w: %s version %d, max supported %d", core.ErrUnsupportedVersion, resourceType, h.Version, maxVersion)
	}
	return nil
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The identifier of the loader which handles this resource. */
	LoaderID uint32
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
