// SPDX-License-Identifier: MIT

// Package udp sends band frames as compact binary datagrams.
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	applog "spectral/internal/log"
	"spectral/internal/transport"
)

// Size limits of the packet fields.
const (
	MaxSourceIDLen = math.MaxUint8
	MaxBands       = math.MaxUint16
	headerLen      = 4 + 8 + 4 + 1 // seq, ts, level, id length
)

// ErrMalformedPacket is returned by DecodeFrame for truncated or
// inconsistent packets.
var ErrMalformedPacket = errors.New("malformed band packet")

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Per-source, increasing  |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Level             | float32        | 4            | RMS of latest window    |
| Source ID Length  | uint8          | 1            | Bytes in Source ID (L)  |
| Source ID         | []byte         | L            | UTF-8 source identifier |
| Band Count        | uint16         | 2            | Number of floats (N)    |
| Bands             | []float32      | N * 4        | Smoothed band values    |
+-----------------------------------------------------------------------------+
*/

// UDPPublisher packs each frame into the binary format above and sends it as
// one datagram through a UDPSender. It is driven by the render loop; Send is
// not meant to be called from several goroutines at once.
type UDPPublisher struct {
	sender *UDPSender

	mu           sync.Mutex    // Serializes packing into packetBuffer.
	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.
}

// NewUDPPublisher creates a publisher on top of sender.
func NewUDPPublisher(sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	applog.Infof("UDPPublisher: Initializing (Target: %s)", sender.targetAddr)
	return &UDPPublisher{
		sender:       sender,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send packs and transmits frame.
func (p *UDPPublisher) Send(frame transport.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.packetBuffer.Reset()
	if err := EncodeFrame(p.packetBuffer, frame); err != nil {
		applog.Errorf("UDPPublisher: Error packing frame for %q: %v", frame.Source, err)
		return err
	}

	packetBytes := p.packetBuffer.Bytes()
	if err := p.sender.Send(packetBytes); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent %s #%d (%d bytes)", frame.Source, frame.Sequence, len(packetBytes))
	return nil
}

// Close closes the underlying sender.
func (p *UDPPublisher) Close() error {
	applog.Debugf("UDPPublisher: Close called, closing sender...")
	return p.sender.Close()
}

// EncodeFrame appends the binary packet for frame to buf.
func EncodeFrame(buf *bytes.Buffer, frame transport.Frame) error {
	if len(frame.Source) > MaxSourceIDLen {
		return fmt.Errorf("source id %q longer than %d bytes", frame.Source, MaxSourceIDLen)
	}
	if len(frame.Bands) > MaxBands {
		return fmt.Errorf("%d bands exceed packet limit %d", len(frame.Bands), MaxBands)
	}

	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[0:4], frame.Sequence)
	binary.BigEndian.PutUint64(header[4:12], uint64(frame.Timestamp))
	binary.BigEndian.PutUint32(header[12:16], math.Float32bits(frame.Level))
	header[16] = uint8(len(frame.Source))
	buf.Write(header[:])
	buf.WriteString(frame.Source)

	var word [4]byte
	binary.BigEndian.PutUint16(word[:2], uint16(len(frame.Bands)))
	buf.Write(word[:2])
	for _, v := range frame.Bands {
		binary.BigEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return nil
}

// DecodeFrame parses a packet produced by EncodeFrame.
func DecodeFrame(packet []byte) (transport.Frame, error) {
	var frame transport.Frame
	if len(packet) < headerLen {
		return frame, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedPacket, len(packet), headerLen)
	}

	frame.Sequence = binary.BigEndian.Uint32(packet[0:4])
	frame.Timestamp = int64(binary.BigEndian.Uint64(packet[4:12]))
	frame.Level = math.Float32frombits(binary.BigEndian.Uint32(packet[12:16]))
	idLen := int(packet[16])
	rest := packet[headerLen:]

	if len(rest) < idLen+2 {
		return frame, fmt.Errorf("%w: truncated source id", ErrMalformedPacket)
	}
	frame.Source = string(rest[:idLen])
	rest = rest[idLen:]

	count := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) != count*4 {
		return frame, fmt.Errorf("%w: %d payload bytes for %d bands", ErrMalformedPacket, len(rest), count)
	}

	frame.Bands = make([]float32, count)
	for i := range frame.Bands {
		frame.Bands[i] = math.Float32frombits(binary.BigEndian.Uint32(rest[i*4:]))
	}
	return frame, nil
}

var _ transport.Transport = (*UDPPublisher)(nil)
