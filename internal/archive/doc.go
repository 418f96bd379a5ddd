// Package archive extracts zip and tar.gz payloads into a directory and
// normalises the result.
//
// Extraction never writes outside the destination. Zip entries with
// non-local names are skipped; tar entries that would escape are rejected
// with a fault.ErrFormat error, as are symlinks pointing outside.
//
// After extraction callers typically run Flatten, which removes the single
// top-level wrapper directory most release archives carry, followed by the
// platform hooks RepairPermissions and ClearQuarantine.
package archive
