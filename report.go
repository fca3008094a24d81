package hotswap

import (
	"errors"
	"log/slog"
	"time"

	"github.com/chenyanchen/hotswap/internal/metrics"
)

// Reporter is the operator channel of a reloadable unit: every outcome is
// logged, counted and handed to OnEvent.
type Reporter struct {
	Logger  *slog.Logger
	OnEvent func(Event)
	Kind    string // metrics kind label
	Unit    string
}

// Reloaded reports a published generation.
func (r Reporter) Reloaded(gen int, namespace string, started time.Time) {
	metrics.ObserveReload(r.Kind, r.Unit, metrics.ResultOK, time.Since(started))
	metrics.SetGeneration(r.Kind, r.Unit, gen)
	r.logger().Info("generation published", "generation", gen, "namespace", namespace,
		"elapsed", time.Since(started))
	r.emit(Event{Kind: EventReloaded, Generation: gen, Namespace: namespace})
}

// CompileFailed reports a rejected generation. The live one stays in place.
func (r Reporter) CompileFailed(err error, started time.Time) {
	result := metrics.ResultCompileError
	var nf NotFoundError
	if errors.As(err, &nf) {
		result = metrics.ResultNotFound
	}
	metrics.ObserveReload(r.Kind, r.Unit, result, time.Since(started))
	r.logger().Error("compilation failed", "error", err)
	e := Event{Kind: EventCompileFailed, Error: err.Error()}
	var ce CompileError
	if errors.As(err, &ce) {
		e.Namespace = ce.Namespace
	}
	r.emit(e)
}

// StateTransferFailed reports a state load failure for one handle.
func (r Reporter) StateTransferFailed(err error, handle string) {
	metrics.StateTransferFailed(r.Unit)
	r.logger().Error("state transfer failed", "handle", handle, "error", err)
	r.emit(Event{Kind: EventStateTransferFailed, Handle: handle, Error: err.Error()})
}

func (r Reporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r Reporter) emit(e Event) {
	if r.OnEvent == nil {
		return
	}
	e.Unit = r.Unit
	e.Time = time.Now()
	r.OnEvent(e)
}
