package testutils

import (
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/livecursor/pkg/object"
)

// NewLogger returns a development logger writing to the ginkgo writer at the given verbosity.
func NewLogger(loglevel int) logr.Logger {
	opts := zap.Options{
		Development:     true,
		DestWriter:      GinkgoWriter,
		StacktraceLevel: zapcore.Level(4),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(loglevel), //nolint:gosec
	}
	return zap.New(zap.UseFlagOptions(&opts))
}

// Todo returns a document of the "todos" collection used throughout the tests.
func Todo(name, title string, prio int64) object.Document {
	return object.NewWithContent("todos", "default", name, map[string]any{
		"title": title,
		"prio":  prio,
		"tags":  []any{"t-" + name},
	})
}
