package service

import (
	"context"
	"sync"
	"time"

	"idcapture/internal/identity/models"
)

// StepHook observes step transitions. OnEnter runs after the store shows the
// new step; an error keeps the flow on that step and is recorded as the
// session error. OnExit runs before the store leaves the step and must not
// call back into the Controller.
type StepHook interface {
	OnEnter(ctx context.Context, step models.Step) error
	OnExit(ctx context.Context, step models.Step)
}

// cameraHook starts the camera for capture steps and stops it on exit.
type cameraHook struct {
	c *Controller
}

func (h cameraHook) OnEnter(ctx context.Context, step models.Step) error {
	purpose, ok := step.Purpose()
	if !ok {
		return nil
	}
	return h.c.startCamera(ctx, purpose)
}

func (h cameraHook) OnExit(_ context.Context, step models.Step) {
	if step.IsCapture() {
		h.c.camera.Stop()
	}
}

// autoReturnHook arms the success timeout and disarms it when the step is
// left by any other route.
type autoReturnHook struct {
	c *Controller

	mu    sync.Mutex
	timer *time.Timer
}

func (h *autoReturnHook) OnEnter(_ context.Context, step models.Step) error {
	if step != models.StepSuccess || h.c.successDelay <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	epoch := h.c.epochSnapshot()
	h.timer = time.AfterFunc(h.c.successDelay, func() {
		h.c.autoReturn(epoch)
	})
	return nil
}

func (h *autoReturnHook) OnExit(_ context.Context, step models.Step) {
	if step != models.StepSuccess {
		return
	}
	h.disarm()
}

func (h *autoReturnHook) disarm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
