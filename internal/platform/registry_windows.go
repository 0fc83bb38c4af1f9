//go:build windows

package platform

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// ReadRegistryValue opens the key under the HKLM or HKCU hive and reads the
// named string value. An empty valueName only verifies the key exists.
func (h *HostCapabilities) ReadRegistryValue(path, valueName string) (string, error) {
	hive, subkey, err := splitHive(path)
	if err != nil {
		return "", err
	}

	key, err := registry.OpenKey(hive, subkey, registry.QUERY_VALUE)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	defer key.Close()

	if valueName == "" {
		return "", nil
	}

	value, _, err := key.GetStringValue(valueName)
	if err != nil {
		return "", fmt.Errorf("%w: %s\\%s", ErrNotFound, path, valueName)
	}
	return value, nil
}

func splitHive(path string) (registry.Key, string, error) {
	for prefix, hive := range map[string]registry.Key{
		"HKEY_LOCAL_MACHINE\\": registry.LOCAL_MACHINE,
		"HKLM\\":               registry.LOCAL_MACHINE,
		"HKEY_CURRENT_USER\\":  registry.CURRENT_USER,
		"HKCU\\":               registry.CURRENT_USER,
	} {
		if strings.HasPrefix(path, prefix) {
			return hive, strings.TrimPrefix(path, prefix), nil
		}
	}
	return 0, "", fmt.Errorf("unsupported registry hive in path: %s", path)
}
