package download

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/repofetch/repofetch/internal/safety"
)

// Archive format magic numbers.
var (
	magicZip  = []byte{0x50, 0x4b, 0x03, 0x04}
	magicGzip = []byte{0x1f, 0x8b}
	magicXz   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// extractArchive unpacks archivePath into destDir. The origin serves zip;
// some mirrors recompress into tar.gz or tar.xz, so the format is sniffed
// from the file header rather than trusted from the URL.
func extractArchive(archivePath, destDir string) error {
	header := make([]byte, 6)
	f, err := os.Open(archivePath)
	if err != nil {
		return NewError(ClassFileSystem, "opening archive", err)
	}
	n, _ := io.ReadFull(f, header)
	f.Close()
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicZip):
		return extractZip(archivePath, destDir)
	case bytes.HasPrefix(header, magicGzip):
		return extractTarCompressed(archivePath, destDir, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	case bytes.HasPrefix(header, magicXz):
		return extractTarCompressed(archivePath, destDir, func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		})
	default:
		return Errorf(ClassExtractionFailed, "unrecognized archive format (header % x)", header)
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return NewError(ClassExtractionFailed, "opening zip archive", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safety.EntryPath(destDir, entry.Name)
		if err != nil {
			return NewError(ClassExtractionFailed, "unsafe zip entry", err)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return NewError(ClassFileSystem, "creating directory", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return NewError(ClassFileSystem, "creating parent directory", err)
		}

		rc, err := entry.Open()
		if err != nil {
			return NewError(ClassExtractionFailed, fmt.Sprintf("opening zip entry %s", entry.Name), err)
		}
		err = writeEntry(target, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarCompressed(archivePath, destDir string, decompress func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return NewError(ClassFileSystem, "opening archive", err)
	}
	defer f.Close()

	dr, err := decompress(f)
	if err != nil {
		return NewError(ClassExtractionFailed, "opening compressed stream", err)
	}
	if closer, ok := dr.(io.Closer); ok {
		defer closer.Close()
	}

	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return NewError(ClassExtractionFailed, "reading tar stream", err)
		}

		target, err := safety.EntryPath(destDir, hdr.Name)
		if err != nil {
			return NewError(ClassExtractionFailed, "unsafe tar entry", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return NewError(ClassFileSystem, "creating directory", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return NewError(ClassFileSystem, "creating parent directory", err)
			}
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		default:
			// Symlinks and special files do not appear in origin
			// archives; skip anything unexpected.
		}
	}
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return NewError(ClassFileSystem, "creating file", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return NewError(ClassExtractionFailed, fmt.Sprintf("writing %s", filepath.Base(target)), err)
	}
	return out.Close()
}

// contentRoot returns the effective root of an extracted tree. Origin
// archives wrap everything in a single "<repo>-<ref>" directory; when
// that is the case the wrapper is the root.
func contentRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", NewError(ClassFileSystem, "reading extraction tree", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// moveContents relocates the entries of srcDir into destDir, replacing
// same-named destination entries. Moving contents rather than the
// directory itself sidesteps tools that refuse non-empty destinations.
func moveContents(srcDir, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return NewError(ClassFileSystem, "creating destination", err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return NewError(ClassFileSystem, "reading source directory", err)
	}

	for _, entry := range entries {
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(destDir, entry.Name())

		if err := os.RemoveAll(dst); err != nil {
			return NewError(ClassFileSystem, fmt.Sprintf("removing existing %s", entry.Name()), err)
		}
		if err := os.Rename(src, dst); err != nil {
			// Rename fails across filesystems; fall back to a copy.
			if err := copyTree(src, dst); err != nil {
				return err
			}
			if err := os.RemoveAll(src); err != nil {
				return NewError(ClassFileSystem, "cleaning up after copy", err)
			}
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return NewError(ClassFileSystem, "inspecting source", err)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return NewError(ClassFileSystem, "creating directory", err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return NewError(ClassFileSystem, "reading directory", err)
		}
		for _, entry := range entries {
			if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return NewError(ClassFileSystem, "opening source file", err)
	}
	defer in.Close()
	return writeEntry(dst, in, info.Mode())
}

// dirSize sums the file sizes under path. Used as the transfer size for
// clone-based methods where no archive byte count exists.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
