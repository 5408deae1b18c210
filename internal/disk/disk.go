// Package disk provisions guest disk images.
package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// DefaultQemuImg is the image tool looked up on PATH.
const DefaultQemuImg = "qemu-img"

// ErrToolNotFound means the image tool is not installed.
var ErrToolNotFound = errors.New("disk image tool not found")

// Provisioner creates an empty disk image.
type Provisioner interface {
	Provision(ctx context.Context, path string, sizeBytes int64) error
}

// ParseSize accepts human sizes such as 64G, 512MiB or a plain byte count.
// Suffixes are binary multiples.
func ParseSize(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid disk size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid disk size %q: must be positive", s)
	}
	return n, nil
}

// HumanSize renders a byte count the way ParseSize reads it.
func HumanSize(n int64) string {
	return units.BytesSize(float64(n))
}

// QemuImg provisions qcow2 images with qemu-img.
type QemuImg struct {
	// Binary is the qemu-img executable, DefaultQemuImg when empty.
	Binary string
	Log    logrus.FieldLogger
}

// Provision creates a thin qcow2 image at path. An existing file is left
// untouched.
func (q *QemuImg) Provision(ctx context.Context, path string, sizeBytes int64) error {
	log := q.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	if _, err := os.Stat(path); err == nil {
		log.WithField("path", path).Debug("Disk image already exists, skipping provisioning")
		return nil
	}

	name := q.Binary
	if name == "" {
		name = DefaultQemuImg
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}

	args := []string{"create", "-f", "qcow2", path, strconv.FormatInt(sizeBytes, 10)}
	log.WithFields(logrus.Fields{"path": path, "size": HumanSize(sizeBytes)}).Info("Creating disk image")
	log.Debugf("Running %s %v", bin, args)

	cmd := exec.CommandContext(ctx, bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create disk image %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}
	return nil
}
