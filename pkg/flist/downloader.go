package flist

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Downloader fetches flist metadata files into a local directory keyed by
// content hash. The hub publishes an md5 sidecar next to every flist
// (<url>.md5) which is used to skip downloads of files already present.
type Downloader struct {
	dir    string
	client *http.Client
}

// NewDownloader creates a downloader storing flists in dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{dir: dir, client: http.DefaultClient}
}

// HashOfFlist fetches the published md5 of the flist at url.
func (d *Downloader) HashOfFlist(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+".md5", nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch flist hash: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch flist hash: %s returned %s", url+".md5", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return "", err
	}

	hash := strings.ToLower(strings.TrimSpace(string(data)))
	if hash == "" {
		return "", fmt.Errorf("empty flist hash from '%s'", url+".md5")
	}

	return hash, nil
}

// Get returns the local path of the flist at url, downloading it only when
// it is missing or its content no longer matches the published hash.
func (d *Downloader) Get(ctx context.Context, url string) (string, error) {
	hash, err := d.HashOfFlist(ctx, url)
	if err != nil {
		return "", err
	}

	path := filepath.Join(d.dir, hash)
	local, err := fileMD5(path)
	if err == nil && local == hash {
		return path, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read flist file '%s': %w", path, err)
	}

	return d.download(ctx, url, hash)
}

// download streams the flist to a temp file while hashing. The content must
// hash to the published value before the temp file is renamed into place;
// the rename is atomic, a concurrent reader never sees a partial file.
func (d *Downloader) download(ctx context.Context, url, hash string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download flist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download flist: %s returned %s", url, resp.Status)
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(d.dir, "*_flist_temp")
	if err != nil {
		return "", err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		return "", fmt.Errorf("failed to save flist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != hash {
		return "", fmt.Errorf("flist from '%s' hashes to %s, expected %s", url, got, hash)
	}

	path := filepath.Join(d.dir, hash)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store flist: %w", err)
	}

	return path, nil
}

func fileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
