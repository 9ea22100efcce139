package orchestrator

import (
	"context"
	"sync"

	"github.com/quic-interop/interop-harness/trace"
)

// lazyTraces decodes each capture the first time a check asks for it. Most checks only need
// the server side.
type lazyTraces struct {
	ctx       context.Context
	reader    trace.Reader
	workspace *Workspace

	serverOnce, clientOnce sync.Once
	server, client         *trace.Trace
	serverErr, clientErr   error
}

func newLazyTraces(ctx context.Context, reader trace.Reader, w *Workspace) *lazyTraces {
	return &lazyTraces{ctx: ctx, reader: reader, workspace: w}
}

func (l *lazyTraces) ServerSide() (*trace.Trace, error) {
	l.serverOnce.Do(func() {
		l.server, l.serverErr = l.reader.Read(l.ctx, l.workspace.ServerSideCapture(), l.workspace.KeylogFile())
	})
	return l.server, l.serverErr
}

func (l *lazyTraces) ClientSide() (*trace.Trace, error) {
	l.clientOnce.Do(func() {
		l.client, l.clientErr = l.reader.Read(l.ctx, l.workspace.ClientSideCapture(), l.workspace.KeylogFile())
	})
	return l.client, l.clientErr
}
