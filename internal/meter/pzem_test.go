package meter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptPort replies with one queued frame per request.
type scriptPort struct {
	requests [][]byte
	replies  [][]byte
	pending  bytes.Buffer
	resets   int
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.requests = append(p.requests, append([]byte(nil), b...))
	if len(p.replies) > 0 {
		p.pending.Write(p.replies[0])
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *scriptPort) Read(b []byte) (int, error) {
	if p.pending.Len() == 0 {
		return 0, nil // timeout
	}
	// Deliver a byte at a time to exercise partial reads.
	return p.pending.Read(b[:1])
}

func (p *scriptPort) ResetInputBuffer() error {
	p.resets++
	p.pending.Reset()
	return nil
}

func TestCRC16KnownFrames(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0D},
		appendCRC([]byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A}))
	assert.Equal(t, []byte{0x01, 0x42, 0x80, 0x11}, appendCRC([]byte{0x01, 0x42}))
	assert.True(t, checkCRC([]byte{0x01, 0x42, 0x80, 0x11}))
	assert.False(t, checkCRC([]byte{0x01, 0x42, 0x80, 0x12}))
}

func TestReadEnergy(t *testing.T) {
	// 0x0001_2345 Wh: low word 0x2345 first, then high word 0x0001.
	port := &scriptPort{replies: [][]byte{
		appendCRC([]byte{0x02, 0x04, 0x04, 0x23, 0x45, 0x00, 0x01}),
	}}
	m := NewPZEM(port)

	wh, err := m.ReadEnergy(AddrRight)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00012345), wh)

	require.Len(t, port.requests, 1)
	assert.Equal(t, appendCRC([]byte{0x02, 0x04, 0x00, 0x05, 0x00, 0x02}), port.requests[0])
	assert.Equal(t, 1, port.resets)
}

func TestReadEnergyErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		check func(t *testing.T, err error)
	}{
		{
			name:  "no reply",
			reply: nil,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrShortFrame) },
		},
		{
			name:  "truncated",
			reply: []byte{0x01, 0x04, 0x04, 0x00},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrShortFrame) },
		},
		{
			name:  "bad crc",
			reply: []byte{0x01, 0x04, 0x04, 0x00, 0x01, 0x00, 0x00, 0xDE, 0xAD},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrCRC) },
		},
		{
			name:  "wrong address",
			reply: appendCRC([]byte{0x02, 0x04, 0x04, 0x00, 0x01, 0x00, 0x00}),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnexpectedReply) },
		},
		{
			name:  "wrong byte count",
			reply: appendCRC([]byte{0x01, 0x04, 0x02, 0x00, 0x01, 0x00, 0x00}),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnexpectedReply) },
		},
		{
			name:  "exception",
			reply: appendCRC([]byte{0x01, 0x84, 0x02}),
			check: func(t *testing.T, err error) {
				var ex *ExceptionError
				require.True(t, errors.As(err, &ex), "got %v", err)
				assert.Equal(t, uint8(0x02), ex.Code)
				assert.Equal(t, uint8(funcReadInput), ex.Function)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &scriptPort{}
			if tt.reply != nil {
				port.replies = [][]byte{tt.reply}
			}
			_, err := NewPZEM(port).ReadEnergy(AddrLeft)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestResetEnergy(t *testing.T) {
	port := &scriptPort{replies: [][]byte{appendCRC([]byte{0x01, 0x42})}}
	require.NoError(t, NewPZEM(port).ResetEnergy(AddrLeft))
	assert.Equal(t, [][]byte{{0x01, 0x42, 0x80, 0x11}}, port.requests)

	port = &scriptPort{replies: [][]byte{appendCRC([]byte{0x01, 0xC2, 0x03})}}
	err := NewPZEM(port).ResetEnergy(AddrLeft)
	var ex *ExceptionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, uint8(funcResetEnergy), ex.Function)
}

func TestFakeMeter(t *testing.T) {
	f := NewFakeMeter()
	f.Set(AddrLeft, 100)
	f.Add(AddrLeft, 5)

	wh, err := f.ReadEnergy(AddrLeft)
	require.NoError(t, err)
	assert.Equal(t, uint32(105), wh)

	f.Fail(AddrLeft, ErrNoReply)
	_, err = f.ReadEnergy(AddrLeft)
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, 2, f.Reads(AddrLeft))

	f.Fail(AddrLeft, nil)
	require.NoError(t, f.ResetEnergy(AddrLeft))
	wh, _ = f.ReadEnergy(AddrLeft)
	assert.Zero(t, wh)
	assert.Equal(t, 1, f.Resets(AddrLeft))
}
