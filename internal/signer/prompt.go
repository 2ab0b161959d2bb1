package signer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityDesk/internal/model"
)

// PromptSigner asks for console confirmation before each signature or
// transaction, the way a wallet would. A declined prompt fails with
// model.ErrUserRejected.
type PromptSigner struct {
	inner Signer

	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptSigner wraps inner, reading answers from in and writing prompts to out.
func NewPromptSigner(inner Signer, in io.Reader, out io.Writer) *PromptSigner {
	return &PromptSigner{inner: inner, in: bufio.NewReader(in), out: out}
}

// Address returns the wrapped account.
func (p *PromptSigner) Address() common.Address {
	return p.inner.Address()
}

// SignTypedData confirms, then signs.
func (p *PromptSigner) SignTypedData(ctx context.Context, digest []byte) ([]byte, error) {
	if err := p.confirm(ctx, fmt.Sprintf("Sign typed data digest 0x%x?", digest)); err != nil {
		return nil, err
	}
	return p.inner.SignTypedData(ctx, digest)
}

// SendTransaction confirms, then sends.
func (p *PromptSigner) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	selector := ""
	if len(data) >= 4 {
		selector = fmt.Sprintf(" selector 0x%x", data[:4])
	}
	if err := p.confirm(ctx, fmt.Sprintf("Send transaction to %s%s (%d bytes)?", to.Hex(), selector, len(data))); err != nil {
		return common.Hash{}, err
	}
	return p.inner.SendTransaction(ctx, to, data, value)
}

func (p *PromptSigner) confirm(ctx context.Context, question string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%w: no answer: %v", model.ErrUserRejected, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return model.ErrUserRejected
	}
}
