package mountinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nodeos/storaged/pkg/log"
)

// ProcMounts is the default mount table source.
const ProcMounts = "/proc/mounts"

// Mount is a single entry of the system mount table.
type Mount struct {
	Source     string
	Target     string
	Filesystem string
	Options    string
	Dump       uint8
	Pass       uint8
}

// Option looks up a single mount option by key.
//
// For options = "ro,subvol=/abc":
//
//	Option("rw")     => "", false, false   (absent)
//	Option("ro")     => "", false, true    (flag, no value)
//	Option("subvol") => "/abc", true, true (key=value)
func (m *Mount) Option(key string) (value string, hasValue bool, found bool) {
	for _, opt := range strings.Split(m.Options, ",") {
		k, v, has := strings.Cut(opt, "=")
		if k != key {
			continue
		}
		return v, has, true
	}
	return "", false, false
}

// Table lists the mounts of a system. The production implementation reads
// /proc/mounts; tests provide literal text.
type Table interface {
	Mounts() ([]Mount, error)
}

// System is the Table backed by the kernel mount table.
type System struct {
	// Path overrides the mount table location, empty means /proc/mounts.
	Path string
}

func (s System) Mounts() ([]Mount, error) {
	path := s.Path
	if path == "" {
		path = ProcMounts
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mount table '%s': %w", path, err)
	}
	defer file.Close()

	return ParseReader(file)
}

// ParseReader parses mount-table text, six whitespace separated fields per
// line. Malformed lines are logged and skipped, not fatal.
func ParseReader(r io.Reader) ([]Mount, error) {
	logger := log.WithComponent("mountinfo")

	var mounts []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 6 {
			logger.Error().Str("line", line).Msg("invalid mount table line")
			continue
		}

		dump, err := strconv.ParseUint(parts[4], 10, 8)
		if err != nil {
			logger.Error().Str("line", line).Msg("invalid dump value in mount table line")
			continue
		}
		pass, err := strconv.ParseUint(parts[5], 10, 8)
		if err != nil {
			logger.Error().Str("line", line).Msg("invalid pass value in mount table line")
			continue
		}

		mounts = append(mounts, Mount{
			Source:     unescape(parts[0]),
			Target:     unescape(parts[1]),
			Filesystem: parts[2],
			Options:    unescape(parts[3]),
			Dump:       uint8(dump),
			Pass:       uint8(pass),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	return mounts, nil
}

// unescape decodes the octal escapes the kernel writes for whitespace in
// mount entries, `\040` for a space in a path for example.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// Mountpoint returns the mount at target, or nil if nothing is mounted
// there. With stacked mounts the last entry is the effective one, so the
// scan keeps the latest match.
func Mountpoint(table Table, target string) (*Mount, error) {
	mounts, err := table.Mounts()
	if err != nil {
		return nil, err
	}
	for i := len(mounts) - 1; i >= 0; i-- {
		if mounts[i].Target == target {
			return &mounts[i], nil
		}
	}
	return nil, nil
}

// MountInfo returns every mount of source. A device mounted multiple times
// yields more than one entry. Source is not necessarily a path.
func MountInfo(table Table, source string) ([]Mount, error) {
	mounts, err := table.Mounts()
	if err != nil {
		return nil, err
	}
	var matched []Mount
	for _, m := range mounts {
		if m.Source == source {
			matched = append(matched, m)
		}
	}
	return matched, nil
}
