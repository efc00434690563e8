package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/0xabstracted/token-basics/internal/observability"
)

// queryTracer records query latency and errors by statement kind.
type queryTracer struct{}

type traceKey struct{}

type traceStart struct {
	operation string
	start     time.Time
}

var _ pgx.QueryTracer = queryTracer{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{operation: operation(data.SQL), start: time.Now()})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	s, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	observability.RecordDBQuery("postgres", s.operation, time.Since(s.start).Seconds(), data.Err)
}

// operation returns the lowercased leading keyword of sql, e.g. "insert".
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
