//go:build !darwin

package archive

// ClearQuarantine is a no-op outside macOS.
func ClearQuarantine(root string) error {
	return nil
}
