package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"

	"github.com/usbshark/usbshark/capture"
)

// Sample stream byte format, one byte per observed line state:
//
//	bit 0    D+ level
//	bit 1    D- level
//	bits 2-7 bit periods the state persisted (0 encodes 64)
//
// The sampling front end emits a byte only on line transitions, so a
// long idle costs a handful of bytes rather than one per period.
const maxEncodedPeriods = 64

func decodeSample(b byte) capture.Sample {
	periods := uint32(b >> 2)
	if periods == 0 {
		periods = maxEncodedPeriods
	}
	return capture.Sample{
		DPlus:   b&0x01 != 0,
		DMinus:  b&0x02 != 0,
		Periods: periods,
	}
}

// sampleSource yields line samples from a capture front end.
type sampleSource struct {
	r     *bufio.Reader
	close func() error
}

func (s *sampleSource) Next() (capture.Sample, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return capture.Sample{}, err
	}
	return decodeSample(b), nil
}

func (s *sampleSource) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openSampleFile replays a recorded sample stream. Used for development
// and regression runs without capture hardware attached.
func openSampleFile(path string) (*sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	return &sampleSource{r: bufio.NewReader(f), close: f.Close}, nil
}

// openSamplePort reads the live sample stream from the front end's
// dedicated serial channel.
func openSamplePort(device string, baud int) (*sampleSource, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open sample port %s: %w", device, err)
	}
	return &sampleSource{r: bufio.NewReaderSize(port, 4096), close: port.Close}, nil
}

var _ io.Closer = (*sampleSource)(nil)
