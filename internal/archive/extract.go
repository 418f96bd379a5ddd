package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Extract unpacks data of the given kind into destDir.
func Extract(kind Kind, data []byte, destDir string) error {
	switch kind {
	case Zip:
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil && !tolerable(zr, err) {
			return fault.Format("open zip archive", err)
		}
		return extractZip(zr, destDir)
	case TarGz:
		return extractTarGz(bytes.NewReader(data), destDir)
	default:
		return fault.Format("extract", fmt.Errorf("unsupported archive kind %s", kind))
	}
}

// ExtractZipFile unpacks the zip archive at path into destDir.
func ExtractZipFile(path, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil && (zr == nil || !errors.Is(err, zip.ErrInsecurePath)) {
		return fault.Format("open zip archive "+path, err)
	}
	defer zr.Close()
	return extractZip(&zr.Reader, destDir)
}

func extractZip(zr *zip.Reader, destDir string) error {
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fault.Filesystem("create dest dir", err)
	}

	for _, f := range zr.File {
		if !filepath.IsLocal(f.Name) {
			continue
		}
		target := filepath.Join(destDir, f.Name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fault.Filesystem("create directory "+target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fault.Filesystem("create parent dir for "+target, err)
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fault.Format("open zip entry "+f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fault.Filesystem("create file "+target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		if isReadErr(err) {
			return fault.Format("read zip entry "+f.Name, err)
		}
		return fault.Filesystem("write file "+target, err)
	}
	if err := out.Close(); err != nil {
		return fault.Filesystem("close file "+target, err)
	}
	return nil
}

func extractTarGz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fault.Format("open gzip stream", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fault.Filesystem("create dest dir", err)
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fault.Filesystem("resolve dest dir", err)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fault.Format("read tar header", err)
		}

		if !filepath.IsLocal(header.Name) {
			return fault.Format("extract tar", fmt.Errorf("illegal file path: %s", header.Name))
		}

		switch header.Typeflag {
		case tar.TypeDir:
			target, err := resolveInside(root, root, header.Name)
			if err != nil {
				return fault.Format("extract tar", err)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fault.Filesystem("create directory "+target, err)
			}

		case tar.TypeReg:
			// Resolved through any links already extracted, so a file can
			// never be written outside root.
			target, err := resolveInside(root, root, header.Name)
			if err != nil {
				return fault.Format("extract tar", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fault.Filesystem("create parent dir for "+target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fault.Filesystem("create file "+target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				if isReadErr(err) {
					return fault.Format("read tar entry "+header.Name, err)
				}
				return fault.Filesystem("write file "+target, err)
			}
			if err := out.Close(); err != nil {
				return fault.Filesystem("close file "+target, err)
			}

		case tar.TypeSymlink:
			// The link's own directory and its target are both resolved
			// from where they really sit on disk.
			parent, err := resolveInside(root, root, filepath.Dir(header.Name))
			if err != nil {
				return fault.Format("extract tar", err)
			}
			if filepath.IsAbs(header.Linkname) {
				return fault.Format("extract tar", fmt.Errorf("illegal symlink %s -> %s", header.Name, header.Linkname))
			}
			if _, err := resolveInside(root, parent, header.Linkname); err != nil {
				return fault.Format("extract tar", fmt.Errorf("illegal symlink %s -> %s: %w", header.Name, header.Linkname, err))
			}
			target := filepath.Join(parent, filepath.Base(header.Name))
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return fault.Filesystem("create parent dir for "+target, err)
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fault.Filesystem("replace "+target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fault.Filesystem("create symlink "+target, err)
			}

		default:
			// Hard links, devices and FIFOs are not used by supported payloads.
			continue
		}
	}
}

// tolerable reports whether a zip open error only flags insecure names.
// Those entries are skipped during extraction.
func tolerable(zr *zip.Reader, err error) bool {
	return zr != nil && errors.Is(err, zip.ErrInsecurePath)
}

// isReadErr reports whether a copy failure came from the decompressor
// rather than the destination file.
func isReadErr(err error) bool {
	var pe *os.PathError
	return !errors.As(err, &pe)
}
