package reporter

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/clock"
	"github.com/idohaver7/PatrolVision/internal/models"
)

const (
	DefaultDismissAfter  = 5000 * time.Millisecond
	DefaultSubmitTimeout = 30 * time.Second
)

// Presenter shows the informational notice for an auto-submitted report.
type Presenter interface {
	ShowDetection(r Report)
	Dismiss()
}

// AutoPolicy submits every report in the background and shows a notice that
// dismisses itself after DismissAfter whatever the submit outcome.
type AutoPolicy struct {
	submitter Submitter
	presenter Presenter
	clock     clock.Clock

	DismissAfter  time.Duration
	SubmitTimeout time.Duration

	wg sync.WaitGroup
}

func NewAutoPolicy(submitter Submitter, presenter Presenter, clk clock.Clock) *AutoPolicy {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AutoPolicy{
		submitter:     submitter,
		presenter:     presenter,
		clock:         clk,
		DismissAfter:  DefaultDismissAfter,
		SubmitTimeout: DefaultSubmitTimeout,
	}
}

func (p *AutoPolicy) Handle(ctx context.Context, r Report) Outcome {
	if r.LicensePlate == "" {
		r.LicensePlate = models.UnidentifiedPlate
	}

	p.wg.Add(1)
	go p.submit(ctx, r)

	p.presenter.ShowDetection(r)
	timer := p.clock.NewTimer(p.DismissAfter)
	select {
	case <-timer.C():
	case <-ctx.Done():
		timer.Stop()
	}
	p.presenter.Dismiss()
	return OutcomeQueued
}

// submit outlives the session context so a detected violation is still
// recorded when capture stops; Wait covers it.
func (p *AutoPolicy) submit(ctx context.Context, r Report) {
	defer p.wg.Done()
	defer r.release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.SubmitTimeout)
	defer cancel()

	v, err := p.submitter.SubmitViolation(ctx, r.upload(r.LicensePlate))
	if err != nil {
		log.WithError(err).WithField("type", r.ViolationType).Error("❌ auto report failed")
		return
	}
	log.WithFields(log.Fields{
		"id":      v.ID,
		"type":    v.ViolationType,
		"address": v.Address,
	}).Info("✅ violation reported")
}

func (p *AutoPolicy) Wait() {
	p.wg.Wait()
}
