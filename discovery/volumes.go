package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// bootVolumeMarker is the file the RP2040 UF2 bootloader places in the
// root of its mass-storage volume.
const bootVolumeMarker = "INFO_UF2.TXT"

// unixMountRoots are the directories scanned for bootloader volumes on
// Linux and macOS.
var unixMountRoots = []string{"/Volumes", "/media", "/run/media"}

// listBootVolumes returns the mount points of all attached boards in
// bootloader mode.
func listBootVolumes() ([]string, error) {
	if runtime.GOOS == "windows" {
		return listBootVolumesWindows(), nil
	}
	return listBootVolumesUnix(), nil
}

// listBootVolumesWindows scans drive letters for the bootloader marker.
func listBootVolumesWindows() []string {
	var found []string
	for letter := 'A'; letter <= 'Z'; letter++ {
		drive := string(letter) + `:\`
		if _, err := os.Stat(filepath.Join(drive, bootVolumeMarker)); err == nil {
			found = append(found, drive)
		}
	}
	return found
}

// listBootVolumesUnix walks the usual mount roots for the marker.
// Unreadable mount points are skipped rather than failing the scan.
func listBootVolumesUnix() []string {
	var found []string
	for _, root := range unixMountRoots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if _, err := os.Stat(filepath.Join(path, bootVolumeMarker)); err == nil {
				found = append(found, path)
				return fs.SkipDir
			}
			return nil
		})
	}
	return found
}
