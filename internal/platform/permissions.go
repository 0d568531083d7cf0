package platform

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

// HostPermissions grants capabilities based on file system access: the
// camera needs a writable photo directory, the library a readable one.
type HostPermissions struct {
	PhotoDir   string
	LibraryDir string
}

func (p HostPermissions) Request(ctx context.Context, capability imagesource.Capability) (imagesource.Grant, error) {
	if err := ctx.Err(); err != nil {
		return imagesource.Unavailable, err
	}
	switch capability {
	case imagesource.CapabilityCamera:
		return grantFor(checkWritable(p.PhotoDir))
	case imagesource.CapabilityLibrary:
		if p.LibraryDir == "" {
			return imagesource.Unavailable, nil
		}
		return grantFor(checkReadable(p.LibraryDir))
	default:
		return imagesource.Unavailable, nil
	}
}

func grantFor(err error) (imagesource.Grant, error) {
	switch {
	case err == nil:
		return imagesource.Granted, nil
	case errors.Is(err, fs.ErrPermission):
		return imagesource.Denied, nil
	case errors.Is(err, fs.ErrNotExist):
		return imagesource.Unavailable, nil
	default:
		return imagesource.Unavailable, err
	}
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".access-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func checkReadable(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
