// SPDX-License-Identifier:Apache-2.0

// Package logging sets up structured logging in a uniform way.
package logging

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Levels returns the valid logging level names, in order of increasing
// severity.
func Levels() []string {
	return []string{"all", "debug", "info", "warn", "error", "none"}
}

// Init returns a logfmt logger on stdout, configured with common settings
// like timestamping and source code locations, filtered to the given level
// and above.
func Init(lvl string) (log.Logger, error) {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))

	filter, err := parseLevel(lvl)
	if err != nil {
		return nil, err
	}
	l = level.NewFilter(l, filter)

	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func parseLevel(lvl string) (level.Option, error) {
	switch lvl {
	case "all":
		return level.AllowAll(), nil
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	}
	return nil, errors.Errorf("invalid logging level %q", lvl)
}
