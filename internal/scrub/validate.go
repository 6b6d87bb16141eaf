package scrub

import "fmt"

// validateInput rejects oversized or malformed input before any detector
// executes. Tab, newline and carriage return are the only control
// characters tolerated.
func validateInput(text string, maxSize int) error {
	if len(text) > maxSize {
		return fmt.Errorf("%w: %d > %d", ErrInputTooLarge, len(text), maxSize)
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidControlChars, c, i)
		}
		if c == 0x7f {
			return fmt.Errorf("%w: DEL at offset %d", ErrInvalidControlChars, i)
		}
	}

	return nil
}
