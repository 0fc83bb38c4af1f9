//go:build !windows

package platform

// ReadRegistryValue reports the registry capability as unsupported; the
// Windows registry does not exist on this platform.
func (h *HostCapabilities) ReadRegistryValue(path, valueName string) (string, error) {
	return "", ErrUnsupported
}
