package chain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("chain relayer not configured")

// Options describe el cliente a construir al arrancar.
type Options struct {
	Production     bool
	RelayerURL     string
	RelayerToken   string
	SimulatedDelay time.Duration
}

// New elige el cliente una sola vez:
//   - con relayer: RelayerClient.
//   - producción sin relayer: todas las llamadas fallan con ErrNotConfigured.
//   - desarrollo sin relayer: SimulatedClient.
func New(logger *zap.Logger, opts Options) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case opts.RelayerURL != "":
		return NewRelayerClient(opts.RelayerURL, opts.RelayerToken, logger)
	case opts.Production:
		logger.Error("chain relayer is not configured; minting and name registration are disabled")
		return unavailableClient{}
	default:
		logger.Warn("chain relayer not configured, using simulated chain")
		return NewSimulatedClient(opts.SimulatedDelay)
	}
}

type unavailableClient struct{}

func (unavailableClient) SubmitMint(context.Context, string, string) (MintResult, error) {
	return MintResult{}, ErrNotConfigured
}

func (unavailableClient) SubmitNameRegistration(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
