package ctxlogger

import (
	"context"
	"fmt"
)

type key string

const loggerKey = key("hlsfeedLogger")

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// ExtractLogger returns the logger stored in ctx, or a logger that discards everything.
func ExtractLogger(ctx context.Context) Logger {
	if v := ctx.Value(loggerKey); v != nil {
		if l, ok := v.(Logger); ok {
			return l
		}
		panic(fmt.Errorf("unknown value found in context: %v", v))
	}
	return NewDummyLogger()
}

// Component returns the context logger tagged with a component name when the
// backend supports it.
func Component(ctx context.Context, name string) Logger {
	l := ExtractLogger(ctx)
	if c, ok := l.(interface{ WithComponent(string) Logger }); ok {
		return c.WithComponent(name)
	}
	return l
}
