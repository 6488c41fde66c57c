package airdrop

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/spl-airdrop/pkg/metrics"
	"github.com/code-payments/spl-airdrop/pkg/pointer"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// Verify checks that every destination's associated account holds at least
// its count. Nothing is transferred, but missing accounts are created unless
// the service is configured with no_create, in which case they count as a
// zero balance.
func (s *Service) Verify(ctx context.Context, destinations []*Destination) (*Report, error) {
	span := metrics.StartSpan(ctx, metricsComponent, "Verify")
	defer span.End()

	log := s.log.WithFields(logrus.Fields{
		"method":       "Verify",
		"mint":         s.mint.String(),
		"destinations": len(destinations),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total, err := TotalCount(destinations)
	if err != nil {
		span.Fail(err)
		return nil, err
	}

	tc := s.tokenClient(context.WithoutCancel(ctx))
	create := !s.conf.noCreate.Get(ctx)
	span.Set(map[string]any{
		"destinations": len(destinations),
		"create":       create,
	})

	log.Info("verifying airdrop")

	results := s.run(ctx, destinations, func(workCtx context.Context, i int, d *Destination) *result {
		res := s.verify(workCtx, log, tc, create, i, d)
		recordDestinationOutcome(workCtx, ActionVerify, res)
		return res
	})

	report := s.report(ActionVerify, results)
	recordRunSummary(ctx, report, total)
	logSummary(log, report)

	return report, nil
}

func (s *Service) verify(ctx context.Context, log *logrus.Entry, tc *token.Client, create bool, i int, d *Destination) *result {
	log = log.WithFields(logrus.Fields{
		"index":       i,
		"destination": d.Owner.String(),
		"expected":    d.Count,
	})
	log.Info("checking balance")

	addr, err := s.resolve(ctx, log, tc, d.Owner, create)
	if !create && errors.Is(err, token.ErrAccountNotFound) {
		log.Info("token account does not exist")
		return classify(d, 0)
	} else if err != nil {
		log.WithError(err).Warn("failed to resolve destination token account")
		return failed(d, nil, err)
	}
	log = log.WithField("token_account", base58.Encode(addr))

	balance, err := s.getBalance(ctx, log, tc, addr)
	if err != nil {
		log.WithError(err).Warn("failed to get balance")
		return failed(d, nil, err)
	}

	log.WithField("balance", balance).Info("balance retrieved")
	return classify(d, balance)
}

// classify succeeds iff the balance covers the expected count.
func classify(d *Destination, balance uint64) *result {
	if balance >= d.Count {
		return succeeded()
	}
	return failed(d, pointer.Uint64(balance), nil)
}
