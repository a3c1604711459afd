package main

import (
	"context"
	"io"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
	"github.com/lostsec/lostsec/pkg/ui"
)

var _ dispatcher.Hook = (*consoleHook)(nil)

// consoleHook prints vulnerable results as they arrive, clearing the
// progress line first so the two do not interleave.
type consoleHook struct {
	w        io.Writer
	progress *ui.ProgressLine
}

func (h *consoleHook) OnEvent(_ context.Context, event events.Event) error {
	e, ok := event.(*events.ResultEvent)
	if !ok || e.Result.Status != finding.Vulnerable.String() {
		return nil
	}
	if h.progress != nil {
		h.progress.Clear()
	}
	ui.PrintFinding(h.w, string(e.Phase), e.Task.URL, e.Result.Evidence, e.Phase == events.PhaseConfirm)
	return nil
}

func (h *consoleHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeResult}
}
