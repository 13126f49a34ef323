package infra

import (
	"os"
	"path"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
)

const defaultDotPath = "~/.tgcaptcha"

// GetWorkDir expands root (or the default dot path when empty), appends
// path and makes sure the directory exists.
func GetWorkDir(root string, path ...string) string {
	if root == "" {
		root = defaultDotPath
	}
	parts := append([]string{root}, path...)
	workDir, err := homedir.Expand(filepath.Join(parts...))
	if err != nil {
		log.Fatalln(err)
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		log.Fatalln(err)
	}
	log.WithField("dir", workDir).Debug("work dir")
	return workDir
}

// GetResourcesPath builds a path inside the embedded resources FS, which
// always uses forward slashes.
func GetResourcesPath(elem ...string) string {
	return path.Join(elem...)
}
