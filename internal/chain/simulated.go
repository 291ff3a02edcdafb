package chain

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// SimulatedClient reemplaza al relayer fuera de producción. Espera un delay
// fijo que imita la latencia de confirmación y devuelve hashes deterministas
// por llamada.
type SimulatedClient struct {
	delay   time.Duration
	counter atomic.Int64
}

func NewSimulatedClient(delay time.Duration) *SimulatedClient {
	c := &SimulatedClient{delay: delay}
	c.counter.Store(time.Now().Unix())
	return c
}

func (c *SimulatedClient) SubmitMint(ctx context.Context, recipient, metadataURI string) (MintResult, error) {
	if err := c.wait(ctx); err != nil {
		return MintResult{}, err
	}
	id := c.counter.Add(1)
	return MintResult{
		TokenID: strconv.FormatInt(id, 10),
		TxHash:  fakeTxHash("mint", recipient, metadataURI, id),
	}, nil
}

func (c *SimulatedClient) SubmitNameRegistration(ctx context.Context, label, owner string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return fakeTxHash("name", label, owner, c.counter.Add(1)), nil
}

func (c *SimulatedClient) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fakeTxHash(kind, a, b string, seq int64) string {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s|%s|%s|%d", kind, a, b, seq))).Hex()
}
