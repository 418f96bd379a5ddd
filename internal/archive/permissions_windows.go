//go:build windows

package archive

// RepairPermissions is a no-op on Windows.
func RepairPermissions(root string) error {
	return nil
}
