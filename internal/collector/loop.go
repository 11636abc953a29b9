package collector

import (
	"context"
	"errors"
	"os"
)

// RefreshLoop exports the core datasets repeatedly, pausing between rounds,
// until stopFile exists or ctx is cancelled. A failed round is logged and the
// loop carries on. Returns the number of completed rounds.
func (c *Collector) RefreshLoop(ctx context.Context, pacer *Pacer, stopFile string) (int, error) {
	c.logger.Info().Msg("starting continuous data refresh loop")
	rounds := 0
	for {
		if _, err := os.Stat(stopFile); err == nil {
			c.logger.Info().Str("file", stopFile).Msg("stop signal detected, exiting loop")
			return rounds, nil
		}

		if err := c.ExportAll(ctx, CoreDatasets); err != nil {
			if ctx.Err() != nil {
				return rounds, nil
			}
			c.logger.Error().Err(err).Msg("refresh round failed")
		} else {
			rounds++
			c.logger.Info().Int("round", rounds).Msg("all datasets refreshed")
		}

		if err := pacer.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info().Msg("loop interrupted, exiting")
				return rounds, nil
			}
			return rounds, err
		}
	}
}
