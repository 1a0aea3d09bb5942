//go:build !unix

package pdfread

import "log/slog"

func openSource(name string, _ *slog.Logger) (source, error) {
	return openFileSource(name)
}
