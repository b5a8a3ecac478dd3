package meter

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	funcReadInput   = 0x04
	funcResetEnergy = 0x42
	exceptionFlag   = 0x80

	regEnergy   = 0x0005 // low word; high word at 0x0006
	energyWords = 2
)

// DefaultBaudRate is the fixed UART speed of the PZEM-004T v3.
const DefaultBaudRate = 9600

// DefaultReadTimeout bounds one reply.
const DefaultReadTimeout = 60 * time.Millisecond

// Port is the byte stream to the meters.
type Port interface {
	io.ReadWriter
}

type inputResetter interface {
	ResetInputBuffer() error
}

// PZEM speaks Modbus-RTU to PZEM-004T meters sharing one UART.
type PZEM struct {
	mu   sync.Mutex
	port Port
}

// NewPZEM wraps an open port. Reads on port must return (0, nil) or an
// error on timeout rather than block forever.
func NewPZEM(port Port) *PZEM {
	return &PZEM{port: port}
}

// OpenSerial opens name at 9600 8N1 with the given reply timeout.
func OpenSerial(name string, baud int, timeout time.Duration) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return p, nil
}

// ReadEnergy reads the 32-bit energy register (Wh).
func (m *PZEM) ReadEnergy(addr uint8) (uint32, error) {
	req := []byte{addr, funcReadInput, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(req[2:], regEnergy)
	binary.BigEndian.PutUint16(req[4:], energyWords)

	m.mu.Lock()
	defer m.mu.Unlock()

	payload, err := m.transact(addr, funcReadInput, req, 1+2*energyWords)
	if err != nil {
		return 0, err
	}
	if payload[0] != 2*energyWords {
		return 0, fmt.Errorf("%w: byte count %d", ErrUnexpectedReply, payload[0])
	}
	low := binary.BigEndian.Uint16(payload[1:3])
	high := binary.BigEndian.Uint16(payload[3:5])
	return uint32(high)<<16 | uint32(low), nil
}

// ResetEnergy clears the energy register.
func (m *PZEM) ResetEnergy(addr uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.transact(addr, funcResetEnergy, []byte{addr, funcResetEnergy}, 0)
	return err
}

// transact sends pdu with its CRC and returns the reply bytes between the
// function code and the CRC.
func (m *PZEM) transact(addr, fn uint8, pdu []byte, payloadLen int) ([]byte, error) {
	if r, ok := m.port.(inputResetter); ok {
		// Drop a late reply from a previous timed-out request.
		_ = r.ResetInputBuffer()
	}

	frame := appendCRC(pdu)
	if _, err := m.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write meter 0x%02x: %w", addr, err)
	}

	head := make([]byte, 2)
	if err := m.readFull(head); err != nil {
		return nil, err
	}
	if head[0] != addr {
		return nil, fmt.Errorf("%w: address 0x%02x, want 0x%02x", ErrUnexpectedReply, head[0], addr)
	}

	if head[1] == fn|exceptionFlag {
		rest := make([]byte, 3)
		if err := m.readFull(rest); err != nil {
			return nil, err
		}
		if !checkCRC(append(head, rest...)) {
			return nil, ErrCRC
		}
		return nil, &ExceptionError{Addr: addr, Function: fn, Code: rest[0]}
	}
	if head[1] != fn {
		return nil, fmt.Errorf("%w: function 0x%02x, want 0x%02x", ErrUnexpectedReply, head[1], fn)
	}

	rest := make([]byte, payloadLen+2)
	if err := m.readFull(rest); err != nil {
		return nil, err
	}
	if !checkCRC(append(head, rest...)) {
		return nil, ErrCRC
	}
	return rest[:payloadLen], nil
}

func (m *PZEM) readFull(buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := m.port.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("read meter: %w", err)
		}
		if n == 0 {
			return ErrShortFrame
		}
		got += n
	}
	return nil
}

// crc16 computes CRC-16/MODBUS.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(pdu []byte) []byte {
	out := make([]byte, len(pdu), len(pdu)+2)
	copy(out, pdu)
	return binary.LittleEndian.AppendUint16(out, crc16(pdu))
}

func checkCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	return binary.LittleEndian.Uint16(frame[n:]) == crc16(frame[:n])
}
