package protocol

// parseState is the section of the envelope the parser expects next.
type parseState uint8

const (
	stateHeader parseState = iota
	stateType1
	stateType2
	stateLength1
	stateLength2
	stateLength3
	stateLength4
	stateData
	stateChecksum1
	stateChecksum2
	stateChecksum3
	stateChecksum4
)

// maxPreallocation caps the payload capacity reserved from a declared
// length before the bytes have actually arrived.
const maxPreallocation = 64 * 1024

// Parser turns an unbounded byte stream into validated envelopes.
//
// Bytes may arrive in chunks of any size; state carries over between
// calls to Parse. A frame whose checksum does not match is dropped
// without error and the parser resumes scanning for a header byte.
// A Parser is not safe for concurrent use.
type Parser struct {
	onMessage func(Envelope)
	limit     uint32

	state    parseState
	msgType  uint16
	length   uint32
	payload  []byte
	received uint32
	crc      uint32

	// currentSize is the declared length of the frame in progress.
	currentSize uint32

	accepted uint64
	dropped  uint64
}

// NewParser creates a parser that calls onMessage for every envelope
// whose checksum validates. onMessage may be nil.
func NewParser(onMessage func(Envelope)) *Parser {
	return &Parser{onMessage: onMessage}
}

// SetMessageHandler replaces the callback invoked for each envelope.
func (p *Parser) SetMessageHandler(fn func(Envelope)) {
	p.onMessage = fn
}

// SetLimit sets the largest declared payload length Parse will accept.
// Zero disables the check.
func (p *Parser) SetLimit(limit uint32) {
	p.limit = limit
}

// CurrentMessageSize returns the declared payload length of the frame
// being assembled, or zero while scanning for a header.
func (p *Parser) CurrentMessageSize() uint32 {
	return p.currentSize
}

// Accepted returns how many envelopes have been delivered.
func (p *Parser) Accepted() uint64 {
	return p.accepted
}

// Dropped returns how many complete frames failed checksum validation.
func (p *Parser) Dropped() uint64 {
	return p.dropped
}

// Reset discards any partially assembled frame.
func (p *Parser) Reset() {
	p.state = stateHeader
	p.msgType = 0
	p.length = 0
	p.payload = nil
	p.received = 0
	p.crc = 0
	p.currentSize = 0
}

// Write feeds data to the parser. It implements io.Writer so a parser
// can sit at the end of an io.Copy.
func (p *Parser) Write(data []byte) (int, error) {
	if err := p.Parse(data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Parse consumes data byte by byte. It returns ErrMessageTooLarge as
// soon as a frame declares a length above the configured limit; the
// remaining bytes are not consumed and the stream should be abandoned.
// Checksum mismatches are not errors.
func (p *Parser) Parse(data []byte) error {
	for i := 0; i < len(data); i++ {
		b := data[i]

		switch p.state {
		case stateHeader:
			if b != HeaderByte {
				p.Reset()
				continue
			}
			p.crc = UpdateChecksum(0, b)
			p.state = stateType1

		case stateType1:
			p.msgType = uint16(b) << 8
			p.crc = UpdateChecksum(p.crc, b)
			p.state = stateType2

		case stateType2:
			p.msgType |= uint16(b)
			p.crc = UpdateChecksum(p.crc, b)
			p.state = stateLength1

		case stateLength1:
			p.length = uint32(b) << 24
			p.crc = UpdateChecksum(p.crc, b)
			p.state = stateLength2

		case stateLength2:
			p.length |= uint32(b) << 16
			p.crc = UpdateChecksum(p.crc, b)
			p.state = stateLength3

		case stateLength3:
			p.length |= uint32(b) << 8
			p.crc = UpdateChecksum(p.crc, b)
			p.state = stateLength4

		case stateLength4:
			p.length |= uint32(b)
			p.crc = UpdateChecksum(p.crc, b)
			p.currentSize = p.length
			if p.limit > 0 && p.length > p.limit {
				return ErrMessageTooLarge
			}
			p.payload = make([]byte, 0, min(p.length, maxPreallocation))
			if p.length == 0 {
				p.state = stateChecksum1
			} else {
				p.state = stateData
			}

		case stateData:
			// Copy as much of the payload as this chunk holds in one go.
			n := min(int(p.length)-len(p.payload), len(data)-i)
			chunk := data[i : i+n]
			p.payload = append(p.payload, chunk...)
			p.crc = AppendChecksum(p.crc, chunk)
			i += n - 1
			if len(p.payload) == int(p.length) {
				p.state = stateChecksum1
			}

		case stateChecksum1:
			p.received = uint32(b) << 24
			p.state = stateChecksum2

		case stateChecksum2:
			p.received |= uint32(b) << 16
			p.state = stateChecksum3

		case stateChecksum3:
			p.received |= uint32(b) << 8
			p.state = stateChecksum4

		case stateChecksum4:
			p.received |= uint32(b)
			if p.received == p.crc {
				env := Envelope{Type: MessageType(p.msgType), Payload: p.payload}
				p.accepted++
				p.Reset()
				if p.onMessage != nil {
					p.onMessage(env)
				}
			} else {
				p.dropped++
				p.Reset()
			}
		}
	}
	return nil
}
