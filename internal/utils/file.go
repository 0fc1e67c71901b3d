package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(fs afero.Fs, dir string) error {
	if ok, _ := afero.DirExists(fs, dir); ok {
		return nil
	}
	return fs.MkdirAll(dir, 0755)
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp":
		return true
	}
	return false
}

// ListImageFiles lists the regular files in dir whose name ends in ext.
// The match is case-sensitive and the result is sorted by name.
func ListImageFiles(fs afero.Fs, dir, ext string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ext) {
			continue
		}
		files = append(files, info.Name())
	}
	return files, nil
}

// MaskName derives a label file name from an image file name by
// replacing every occurrence of from with to
func MaskName(imageName, from, to string) string {
	if from == "" {
		return imageName
	}
	return strings.ReplaceAll(imageName, from, to)
}

// FileExists checks if a file exists and is not a directory
func FileExists(fs afero.Fs, filename string) bool {
	info, err := fs.Stat(filename)
	if os.IsNotExist(err) || err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(fs afero.Fs, dirname string) bool {
	ok, err := afero.DirExists(fs, dirname)
	return err == nil && ok
}

// WriteFileAtomic writes data to a temporary file next to filename and renames it into place
func WriteFileAtomic(fs afero.Fs, filename string, write func(f afero.File) error) error {
	dir := filepath.Dir(filename)
	if err := EnsureDir(fs, dir); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(name)
		return err
	}
	if err := fs.Rename(name, filename); err != nil {
		fs.Remove(name)
		return err
	}
	return nil
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	// Replace invalid characters with underscores
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}
