package framing

import "io"

// Zmodem ZDLE escape character and the subpacket/cancel sequences that
// ride inside it. Kept here, rather than in protocol/zmodem, because any
// future protocol needing ZDLE-style control-byte transparency (this
// module's Kermit engine does not; it uses 7-bit printable quoting
// instead) can reuse the same escaper/unescaper pair.
const (
	ZDLE  = 0x18 // Ctrl-X, the escape character itself
	ZDLEE = ZDLE ^ 0x40

	ZCRCE = 'h' // CRC next, frame ends, header packet follows
	ZCRCG = 'i' // CRC next, frame continues nonstop
	ZCRCQ = 'j' // CRC next, frame continues, ACK expected
	ZCRCW = 'k' // CRC next, ACK expected, end of frame
	ZRUB0 = 'l' // translates to rubout 0177
	ZRUB1 = 'm' // translates to rubout 0377
)

// Sentinel values returned by Unescaper.ReadByte when an escape sequence
// resolves to something other than a literal data byte.
const (
	GOTOR   = 0x400
	GOTCRCE = ZCRCE | GOTOR
	GOTCRCG = ZCRCG | GOTOR
	GOTCRCQ = ZCRCQ | GOTOR
	GOTCRCW = ZCRCW | GOTOR
	GOTCAN  = GOTOR | CAN
)

type escapeKind int

const (
	escapeNone escapeKind = iota
	escapeAlways
	escapeConditional
)

// buildEscapeTable matches zsendline_init() from zm.c: bytes with bit 5 or
// 6 set never need escaping; everything else is looked up individually.
func buildEscapeTable(ctlEscape, turbo bool) [256]escapeKind {
	var tab [256]escapeKind
	for i := 0; i < 256; i++ {
		if i&0x60 != 0 {
			tab[i] = escapeNone
			continue
		}
		switch i {
		case ZDLE, XOFF, XON, XOFF | 0x80, XON | 0x80:
			tab[i] = escapeAlways
		case 0x20, 0xA0:
			if turbo {
				tab[i] = escapeNone
			} else {
				tab[i] = escapeAlways
			}
		case 0x0D, 0x8D:
			switch {
			case ctlEscape:
				tab[i] = escapeAlways
			case !turbo:
				tab[i] = escapeConditional
			default:
				tab[i] = escapeNone
			}
		default:
			if ctlEscape {
				tab[i] = escapeAlways
			} else {
				tab[i] = escapeNone
			}
		}
	}
	return tab
}

// Escaper writes bytes to an underlying io.Writer, ZDLE-escaping anything
// the escape table marks, and tracking the last byte actually sent for
// conditional (CR-following-'@') escaping.
type Escaper struct {
	w        io.Writer
	lastSent byte
	table    [256]escapeKind
}

// NewEscaper builds an Escaper. ctlEscape forces escaping of every control
// character; turbo trims the escape set for links with no XON/XOFF.
func NewEscaper(w io.Writer, ctlEscape, turbo bool) *Escaper {
	return &Escaper{w: w, table: buildEscapeTable(ctlEscape, turbo)}
}

// WriteByte escapes and writes a single byte.
func (e *Escaper) WriteByte(c byte) error {
	switch e.table[c] {
	case escapeAlways:
		return e.sendEscaped(c)
	case escapeConditional:
		if e.lastSent&0x7F == '@' {
			return e.sendEscaped(c)
		}
		return e.sendRaw(c)
	default:
		return e.sendRaw(c)
	}
}

func (e *Escaper) sendRaw(c byte) error {
	if _, err := e.w.Write([]byte{c}); err != nil {
		return err
	}
	e.lastSent = c
	return nil
}

func (e *Escaper) sendEscaped(c byte) error {
	if _, err := e.w.Write([]byte{ZDLE}); err != nil {
		return err
	}
	escaped := c ^ 0x40
	if _, err := e.w.Write([]byte{escaped}); err != nil {
		return err
	}
	e.lastSent = escaped
	return nil
}

// Write escapes and writes every byte in buf.
func (e *Escaper) Write(buf []byte) (int, error) {
	for i, b := range buf {
		if err := e.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Unescaper reads ZDLE-escaped bytes from an underlying io.Reader,
// resolving escape sequences to their original byte, to a GOT* sentinel,
// or to an error.
type Unescaper struct {
	r io.Reader
}

// NewUnescaper builds an Unescaper over r.
func NewUnescaper(r io.Reader) *Unescaper {
	return &Unescaper{r: r}
}

func (u *Unescaper) readRaw() (byte, error) {
	var buf [1]byte
	n, err := u.r.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return 0, err
}

// ReadByte reads one logical byte, following ZDLE escapes and flow
// control transparently. The int return carries either a plain byte
// value (0-255) or one of the GOT* sentinels above.
func (u *Unescaper) ReadByte() (int, error) {
	c, err := u.readRaw()
	if err != nil {
		return 0, err
	}
	if c&0x60 != 0 {
		return int(c), nil
	}
	return u.afterControlByte(c)
}

func (u *Unescaper) afterControlByte(c byte) (int, error) {
	switch c {
	case ZDLE:
		return u.readEscapeSequence()
	case XON, XON | 0x80, XOFF, XOFF | 0x80:
		return u.ReadByte()
	default:
		return int(c), nil
	}
}

func (u *Unescaper) readEscapeSequence() (int, error) {
	c, err := u.readRaw()
	if err != nil {
		return 0, err
	}

	if c == CAN {
		for i := 0; i < 4; i++ {
			next, err := u.readRaw()
			if err != nil {
				return 0, err
			}
			if next != CAN {
				return int(c), nil
			}
		}
		return GOTCAN, nil
	}

	switch c {
	case ZCRCE:
		return GOTCRCE, nil
	case ZCRCG:
		return GOTCRCG, nil
	case ZCRCQ:
		return GOTCRCQ, nil
	case ZCRCW:
		return GOTCRCW, nil
	case ZRUB0:
		return 0x7F, nil
	case ZRUB1:
		return 0xFF, nil
	case XON, XON | 0x80, XOFF, XOFF | 0x80:
		return u.readEscapeSequence()
	default:
		if c&0x60 == 0x40 {
			return int(c ^ 0x40), nil
		}
		return 0, ErrBadEscapeSequence
	}
}
