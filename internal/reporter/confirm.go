package reporter

import (
	"context"
	"strings"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/models"
)

type Action int

const (
	ActionConfirm Action = iota
	ActionDiscard
)

// Decision is the driver's answer to a review. LicensePlate is the edited
// plate; the violation type cannot be changed.
type Decision struct {
	Action       Action
	LicensePlate string
}

// Reviewer presents a staged report and collects the driver's decision.
type Reviewer interface {
	Review(ctx context.Context, r Report) (Decision, error)
	ShowError(message string)
	ShowSubmitted(v *models.Violation)
}

// ConfirmPolicy submits only what the driver confirms.
type ConfirmPolicy struct {
	submitter Submitter
	reviewer  Reviewer
}

func NewConfirmPolicy(submitter Submitter, reviewer Reviewer) *ConfirmPolicy {
	return &ConfirmPolicy{submitter: submitter, reviewer: reviewer}
}

func (p *ConfirmPolicy) Handle(ctx context.Context, r Report) Outcome {
	defer r.release()

	for {
		decision, err := p.reviewer.Review(ctx, r)
		if err != nil || ctx.Err() != nil {
			return OutcomeCancelled
		}
		if decision.Action == ActionDiscard {
			log.WithField("type", r.ViolationType).Info("report discarded")
			return OutcomeDiscarded
		}

		r.LicensePlate = strings.TrimSpace(decision.LicensePlate)
		if r.LicensePlate == "" {
			p.reviewer.ShowError(ErrPlateRequired.Error())
			continue
		}

		v, err := p.submitter.SubmitViolation(ctx, r.upload(r.LicensePlate))
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		if err != nil {
			log.WithError(err).Warn("report submit failed")
			p.reviewer.ShowError(ErrorMessage(err))
			continue
		}

		log.WithFields(log.Fields{"id": v.ID, "type": v.ViolationType}).Info("✅ violation reported")
		p.reviewer.ShowSubmitted(v)
		return OutcomeSubmitted
	}
}

// Wait is a no-op: confirmed reports are submitted synchronously.
func (p *ConfirmPolicy) Wait() {}
