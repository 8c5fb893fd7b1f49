package memory

import (
	"fmt"
	"log/slog"
)

const titleLength = 15

const (
	entryPointAddress      = 0x100
	logoAddress            = 0x104
	titleAddress           = 0x134
	cgbFlagAddress         = 0x143
	sgbFlagAddress         = 0x146
	cartridgeTypeAddress   = 0x147
	romSizeAddress         = 0x148
	ramSizeAddress         = 0x149
	destinationCodeAddress = 0x14A
	versionNumberAddress   = 0x14C
	headerChecksumAddress  = 0x14D
	headerLength           = 0x150
)

// MBCKind identifies which memory bank controller a cartridge carries.
type MBCKind uint8

const (
	NoMBCKind MBCKind = iota
	MBC1Kind
	MBC2Kind
	MBC3Kind
	MBC5Kind
	MBCUnknownKind
)

// ramBankCounts maps header byte 0x149 to the number of 8KB RAM banks.
var ramBankCounts = [6]uint8{0, 0, 1, 4, 16, 8}

// Cartridge holds a ROM image and the metadata decoded from its header.
type Cartridge struct {
	data         []byte
	title        string
	cartType     uint8
	mbcKind      MBCKind
	ramBankCount uint8
	hasBattery   bool
	hasRumble    bool
	hasRTC       bool
	cgb          bool
}

// NewCartridge creates an empty cartridge, equivalent to powering on with
// nothing inserted. All reads through an MBC built from it return open-bus.
func NewCartridge() *Cartridge {
	return &Cartridge{}
}

// NewCartridgeWithData decodes the header of a ROM image.
// The image must at least contain a full header.
func NewCartridgeWithData(data []byte) (*Cartridge, error) {
	if len(data) < headerLength {
		return nil, fmt.Errorf("ROM image too small: %d bytes", len(data))
	}

	cart := &Cartridge{
		data:     make([]byte, len(data)),
		title:    decodeTitle(data[titleAddress : titleAddress+titleLength]),
		cartType: data[cartridgeTypeAddress],
		cgb:      data[cgbFlagAddress]&0x80 != 0,
	}
	copy(cart.data, data)

	ramSize := data[ramSizeAddress]
	if int(ramSize) >= len(ramBankCounts) {
		return nil, fmt.Errorf("unknown RAM size byte 0x%02X", ramSize)
	}
	cart.ramBankCount = ramBankCounts[ramSize]

	switch cart.cartType {
	case 0x00:
		cart.mbcKind = NoMBCKind
	case 0x01:
		cart.mbcKind = MBC1Kind
	case 0x02:
		cart.mbcKind = MBC1Kind
	case 0x03:
		cart.mbcKind = MBC1Kind
		cart.hasBattery = true
	case 0x05:
		cart.mbcKind = MBC2Kind
	case 0x06:
		cart.mbcKind = MBC2Kind
		cart.hasBattery = true
	case 0x08, 0x09:
		// ROM+RAM oddballs, treated as unbanked
		cart.mbcKind = NoMBCKind
		cart.hasBattery = cart.cartType == 0x09
	case 0x0F:
		cart.mbcKind = MBC3Kind
		cart.hasRTC = true
		cart.hasBattery = true
	case 0x10:
		cart.mbcKind = MBC3Kind
		cart.hasRTC = true
		cart.hasBattery = true
	case 0x11, 0x12:
		cart.mbcKind = MBC3Kind
	case 0x13:
		cart.mbcKind = MBC3Kind
		cart.hasBattery = true
	case 0x19, 0x1A:
		cart.mbcKind = MBC5Kind
	case 0x1B:
		cart.mbcKind = MBC5Kind
		cart.hasBattery = true
	case 0x1C, 0x1D:
		cart.mbcKind = MBC5Kind
		cart.hasRumble = true
	case 0x1E:
		cart.mbcKind = MBC5Kind
		cart.hasRumble = true
		cart.hasBattery = true
	default:
		return nil, fmt.Errorf("unknown cartridge type byte 0x%02X", cart.cartType)
	}

	slog.Debug("Decoded cartridge header",
		"title", cart.title,
		"type", fmt.Sprintf("0x%02X", cart.cartType),
		"ram_banks", cart.ramBankCount,
		"battery", cart.hasBattery,
		"cgb", cart.cgb)

	return cart, nil
}

// Title returns the cartridge title, truncated at the first NUL.
func (c *Cartridge) Title() string {
	return c.title
}

// HasBattery reports whether the cartridge RAM is battery backed.
func (c *Cartridge) HasBattery() bool {
	return c.hasBattery
}

// IsCGB reports whether the header requests Color Game Boy mode.
func (c *Cartridge) IsCGB() bool {
	return c.cgb
}

func decodeTitle(raw []byte) string {
	end := len(raw)
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	return string(raw[:end])
}
