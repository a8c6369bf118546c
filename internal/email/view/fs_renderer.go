package view

import (
	"context"
	"io/fs"
	"strings"

	"github.com/dstam/groundwork/internal/email"
)

// FSRenderer renders email templates from a file system.
type FSRenderer struct {
	fs fs.FS
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(_ context.Context, name string, element email.TemplateElement, data any) (string, error) {
	v, err := Parse(r.fs, name)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := v.Render(&sb, element, data); err != nil {
		return "", err
	}

	return sb.String(), nil
}
