// SPDX-License-Identifier: Apache-2.0
package provision

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dsnet/compress/bzip2"
)

// Unpacker turns a downloaded payload into the micromamba executable.
type Unpacker interface {
	// Name returns the human-readable payload format.
	Name() string

	// Unpack reads the payload from src and writes the executable to dst.
	Unpack(src io.Reader, dst io.Writer) error
}

// RawUnpacker copies the payload unchanged; release downloads are the
// executable itself.
type RawUnpacker struct{}

func (RawUnpacker) Name() string { return "raw" }

func (RawUnpacker) Unpack(src io.Reader, dst io.Writer) error {
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy payload: %w", err)
	}
	return nil
}

// TarBz2Unpacker extracts one member of a bzip2 compressed tar archive,
// the layout of conda packages.
type TarBz2Unpacker struct {
	// Member is the slash separated path of the executable in the archive.
	Member string
}

// ErrMemberNotFound is returned when the archive has no matching member.
var ErrMemberNotFound = errors.New("member not found in archive")

func (u TarBz2Unpacker) Name() string { return "tar.bz2" }

func (u TarBz2Unpacker) Unpack(src io.Reader, dst io.Writer) error {
	br, err := bzip2.NewReader(src, &bzip2.ReaderConfig{})
	if err != nil {
		return fmt.Errorf("creating bzip2 reader: %w", err)
	}
	defer br.Close()

	want := cleanMember(u.Member)
	tr := tar.NewReader(br)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, u.Member)
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg || cleanMember(header.Name) != want {
			continue
		}
		if _, err := io.Copy(dst, tr); err != nil {
			return fmt.Errorf("extract %s: %w", u.Member, err)
		}
		return nil
	}
}

func cleanMember(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
