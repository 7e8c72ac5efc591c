package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// BuildMeta is the content of meta.json, written last by a build.
type BuildMeta struct {
	LastBuild string `json:"last_build"`
	Docs      int    `json:"docs"`
}

// NewBuildMeta stamps a build of n documents at t.
func NewBuildMeta(t time.Time, n int) BuildMeta {
	return BuildMeta{
		LastBuild: t.UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		Docs:      n,
	}
}

// ReadBuildMeta reads meta.json. ok is false when the file is missing or
// unreadable.
func ReadBuildMeta(path string) (meta BuildMeta, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return BuildMeta{}, false, nil
	}
	if err != nil {
		return BuildMeta{}, false, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return BuildMeta{}, false, corruptIndex(path, err)
	}
	return meta, true, nil
}

// WriteBuildMeta writes meta.json atomically.
func WriteBuildMeta(path string, meta BuildMeta) error {
	return WriteJSONAtomic(path, meta)
}
