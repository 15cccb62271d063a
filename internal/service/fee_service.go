package service

import (
	"fmt"

	"trustbridge/config"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/money"

	"github.com/shopspring/decimal"
)

// FeeServiceImpl implements ports.FeeCalculator from a configured fee
// schedule. It is pure: no I/O, no clock, no state beyond the rates.
type FeeServiceImpl struct {
	platformRate  decimal.Decimal
	processorRate decimal.Decimal
}

// NewFeeService builds a fee calculator from the configured schedule.
func NewFeeService(cfg config.FeesConfig) (*FeeServiceImpl, error) {
	platform, err := cfg.PlatformRateDecimal()
	if err != nil {
		return nil, fmt.Errorf("platform rate: %w", err)
	}
	processor, err := cfg.ProcessorRateDecimal()
	if err != nil {
		return nil, fmt.Errorf("processor rate: %w", err)
	}
	return &FeeServiceImpl{
		platformRate:  platform,
		processorRate: processor,
	}, nil
}

// Compute splits amount into platform fee, processor fee and net payout.
// The two fees are each rounded half-to-even; the net payout takes whatever
// remains, so the three parts always sum exactly to the amount. Because the
// rates are non-negative and sum below 1, each rounded fee is at most half
// a smallest unit above its exact value, which keeps every part
// non-negative even at smallest-unit amounts.
func (s *FeeServiceImpl) Compute(amount money.Money) ports.FeeBreakdown {
	platformFee := amount.MulRate(s.platformRate)
	processorFee := amount.MulRate(s.processorRate)
	netPayout := amount.Sub(platformFee).Sub(processorFee)

	return ports.FeeBreakdown{
		PlatformFee:  platformFee,
		ProcessorFee: processorFee,
		NetPayout:    netPayout,
	}
}
