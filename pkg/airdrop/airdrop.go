package airdrop

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/spl-airdrop/pkg/metrics"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

// Airdrop transfers each destination's count from the wallet's associated
// account to the destination owner's associated account, creating it if
// needed.
//
// The source balance is checked once, up front, against the sum of all
// counts. Failures after that are per destination and don't stop the run. A
// transfer that failed may still land, since it could have been submitted
// before the error.
func (s *Service) Airdrop(ctx context.Context, destinations []*Destination) (*Report, error) {
	span := metrics.StartSpan(ctx, metricsComponent, "Airdrop")
	defer span.End()

	log := s.log.WithFields(logrus.Fields{
		"method":       "Airdrop",
		"wallet":       s.wallet.String(),
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
	span.Set(map[string]any{
		"destinations": len(destinations),
		"total":        total,
	})

	workCtx := context.WithoutCancel(ctx)
	tc := s.tokenClient(workCtx)

	source, err := s.resolve(workCtx, log, tc, s.wallet, true)
	if err != nil {
		span.Fail(err)
		log.WithError(err).Warn("failed to get source token account")
		return nil, errors.Wrap(err, "failed to get source token account")
	}
	log = log.WithField("source", base58.Encode(source))

	balance, err := s.getBalance(workCtx, log, tc, source)
	if err != nil {
		span.Fail(err)
		log.WithError(err).Warn("failed to get source balance")
		return nil, errors.Wrap(err, "failed to get source balance")
	}

	log = log.WithFields(logrus.Fields{
		"balance": balance,
		"total":   total,
	})
	if total > balance {
		err := errors.Wrapf(ErrInsufficientBalance, "balance %d < total %d", balance, total)
		span.Fail(err)
		log.WithError(err).Warn("source account cannot cover the airdrop")
		return nil, err
	}
	log.Info("starting airdrop")

	results := s.run(ctx, destinations, func(destCtx context.Context, i int, d *Destination) *result {
		res := s.airdropTo(ctx, destCtx, log, tc, source, i, d)
		recordDestinationOutcome(destCtx, ActionAirdrop, res)
		return res
	})

	report := s.report(ActionAirdrop, results)
	recordRunSummary(ctx, report, total)
	logSummary(log, report)

	return report, nil
}

func (s *Service) airdropTo(ctx, workCtx context.Context, log *logrus.Entry, tc *token.Client, source ed25519.PublicKey, i int, d *Destination) *result {
	log = log.WithFields(logrus.Fields{
		"index":       i,
		"destination": d.Owner.String(),
		"count":       d.Count,
	})
	log.Info("sending tokens")

	dest, err := s.resolve(workCtx, log, tc, d.Owner, true)
	if err != nil {
		log.WithError(err).Warn("failed to resolve destination token account")
		return failed(d, nil, err)
	}
	log = log.WithField("token_account", base58.Encode(dest))

	sig, err := tc.Transfer(s.wallet.Signer(), source, dest, d.Count)
	if err != nil {
		log.WithError(err).WithField("signature", sig.String()).Warnf("potentially failed to transfer %d tokens", d.Count)
		sleep(ctx, s.conf.transferFailureDelay.Get(workCtx))
		return failed(d, nil, err)
	}

	log.WithField("signature", sig.String()).Info("tokens sent")
	return succeeded()
}
