//go:build rp2040

package bridge

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// On the RP2040 the UART dialler is wired at init so a plain
// {"transport":{"type":"uart"}} config works without platform glue in main.
func init() {
	UARTDial = rp2UARTDial
}

func rp2UARTDial(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error) {
	// TX pin selects the UART instance: GP0/GP1 belong to UART0, GP4/GP5 and
	// GP8/GP9 to UART1 on the usual pinouts.
	var hw *uartx.UART
	switch u.TxPin {
	case 0, 12, 16:
		hw = uartx.UART0
	case 4, 8:
		hw = uartx.UART1
	default:
		return nil, errors.New("bridge: no UART instance for tx pin")
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return &rp2Port{u: hw}, nil
}

// rp2Port adapts uartx to io.ReadWriteCloser. The UART is a shared hardware
// resource, so Close only detaches the wrapper.
type rp2Port struct {
	u      *uartx.UART
	closed bool
}

func (p *rp2Port) Write(b []byte) (int, error) {
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.u.Write(b)
}

func (p *rp2Port) Read(b []byte) (int, error) {
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.u.RecvSomeContext(context.Background(), b)
}

func (p *rp2Port) Close() error {
	p.closed = true
	return nil
}
